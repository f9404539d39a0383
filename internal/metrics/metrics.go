package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

// Recorder owns the service's collectors on a private registry.
type Recorder struct {
	registry        *prometheus.Registry
	backendFailures *prometheus.CounterVec
	enrichBatches   prometheus.Counter
	enrichBatchSize prometheus.Histogram
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
}

// NewRecorder registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_backend_failures_total",
			Help:      "Search backend failures swallowed by the failure policy, by operation.",
		}, []string{"operation"}),
		enrichBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_batches_total",
			Help:      "Promotion enrichment batches that reached the promotion store.",
		}),
		enrichBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_batch_size",
			Help:      "Number of distinct games resolved per enrichment batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	r.registry.MustRegister(
		r.backendFailures,
		r.enrichBatches,
		r.enrichBatchSize,
		r.requests,
		r.requestLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// SearchBackendFailure counts one swallowed backend failure.
func (r *Recorder) SearchBackendFailure(operation string) {
	if r == nil {
		return
	}
	r.backendFailures.WithLabelValues(operation).Inc()
}

// EnrichmentBatch records one promotion lookup for size distinct games.
func (r *Recorder) EnrichmentBatch(size int) {
	if r == nil {
		return
	}
	r.enrichBatches.Inc()
	r.enrichBatchSize.Observe(float64(size))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
