package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"games-catalog-service/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeES is a minimal Elasticsearch stand-in that records every request.
type fakeES struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(w http.ResponseWriter, r recordedRequest)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.respond
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if respond == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
		return
	}
	respond(w, req)
}

func (f *fakeES) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

type countingFailures struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingFailures) SearchBackendFailure(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[op]++
}

func (c *countingFailures) Count(op Operation) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[string(op)]
}

func newTestGateway(t *testing.T, policies Policies, respond func(w http.ResponseWriter, r recordedRequest)) (*Gateway, *fakeES, *countingFailures) {
	t.Helper()
	fake := &fakeES{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{srv.URL},
		DisableRetry: true,
	})
	require.NoError(t, err)

	failures := &countingFailures{}
	gw := NewGateway(es, Options{Policies: policies, Failures: failures})
	return gw, fake, failures
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func decodeBody(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func TestGateway_SearchFuzzy_BlankTextSkipsBackend(t *testing.T) {
	gw, fake, _ := newTestGateway(t, nil, nil)

	for _, text := range []string{"", "   ", "\t\n"} {
		hits, err := gw.SearchFuzzy(context.Background(), text, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
		assert.NotNil(t, hits)
	}
	assert.Empty(t, fake.Requests())
}

func TestGateway_SearchFuzzy_DecodesLooseHits(t *testing.T) {
	good := uuid.New()
	fromMeta := uuid.New()
	gw, fake, _ := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, `{"hits":{"hits":[
			{"_id":"`+good.String()+`","_score":7.5,"_source":{"id":"`+good.String()+`","title":"Hollow Path","description":"dig","price":"49.90","genre":"3"}},
			{"_id":"not-a-uuid","_score":5,"_source":{"id":"also-bad","title":"Broken"}},
			{"_id":"`+fromMeta.String()+`","_score":"2.25","_source":{"title":"No Id Field","price":{"amount":1},"genre":2.5}}
		]}}`)
	})

	hits, err := gw.SearchFuzzy(context.Background(), "holow", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, good, hits[0].ID)
	assert.Equal(t, "Hollow Path", hits[0].Title)
	assert.Equal(t, "49.90", hits[0].Price.StringFixed(2))
	assert.Equal(t, 3, hits[0].Genre)
	require.NotNil(t, hits[0].Score)
	assert.Equal(t, 7.5, *hits[0].Score)

	// Malformed fields are dropped, the document is kept.
	assert.Equal(t, fromMeta, hits[1].ID)
	assert.True(t, hits[1].Price.IsZero())
	assert.Equal(t, 0, hits[1].Genre)
	require.NotNil(t, hits[1].Score)
	assert.Equal(t, 2.25, *hits[1].Score)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/games/_search", reqs[0].Path)

	body := decodeBody(t, reqs[0].Body)
	assert.EqualValues(t, 5, body["size"])
	mm := body["query"].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "holow", mm["query"])
	assert.Equal(t, "AUTO", mm["fuzziness"])
	assert.Equal(t, []interface{}{"title^3", "description"}, mm["fields"])
}

func TestGateway_SearchFiltered_QueryShapes(t *testing.T) {
	genre := 4
	id := uuid.New()
	gw, fake, _ := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, `{"hits":{"hits":[{"_id":"`+id.String()+`","_score":1.0,"_source":{"id":"`+id.String()+`","genre":4}}]}}`)
	})
	ctx := context.Background()

	hits, err := gw.SearchFiltered(ctx, "", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, fake.Requests(), "no text and no genre must not reach the backend")

	hits, err = gw.SearchFiltered(ctx, "", &genre, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Nil(t, hits[0].Score, "genre-only matches are unranked")

	hits, err = gw.SearchFiltered(ctx, "space", &genre, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.NotNil(t, hits[0].Score)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)

	genreOnly := decodeBody(t, reqs[0].Body)["query"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"genre": float64(4)}, genreOnly["term"])

	combined := decodeBody(t, reqs[1].Body)["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := combined["must"].([]interface{})
	filter := combined["filter"].([]interface{})
	require.Len(t, must, 1)
	require.Len(t, filter, 1)
	assert.Contains(t, must[0], "multi_match")
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"genre": float64(4)}}, filter[0])
}

func TestGateway_SampleByGenre_UsesGivenSeed(t *testing.T) {
	gw, fake, _ := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, `{"hits":{"hits":[]}}`)
	})

	_, err := gw.SampleByGenre(context.Background(), 2, 5, 424242)
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	fs := decodeBody(t, reqs[0].Body)["query"].(map[string]interface{})["function_score"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"seed": float64(424242)}, fs["random_score"])
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"genre": float64(2)}}, fs["query"])
}

func TestGateway_Upsert_IsIdempotentPut(t *testing.T) {
	gw, fake, _ := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, `{"result":"updated"}`)
	})

	game := domain.Game{ID: uuid.New(), Title: "Orbit", Description: "d", Price: domain.MustAmount("12.5"), Genre: 1}
	require.NoError(t, gw.Upsert(context.Background(), game))
	require.NoError(t, gw.Upsert(context.Background(), game))

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/games/_doc/"+game.ID.String(), r.Path)
	}
	assert.Equal(t, reqs[0].Body, reqs[1].Body)
	assert.JSONEq(t, `{"id":"`+game.ID.String()+`","title":"Orbit","description":"d","price":12.50,"genre":1}`, reqs[0].Body)
}

func TestGateway_Delete(t *testing.T) {
	t.Run("missing document is success", func(t *testing.T) {
		gw, _, failures := newTestGateway(t, StrictPolicies(), func(w http.ResponseWriter, r recordedRequest) {
			writeJSON(w, http.StatusNotFound, `{"result":"not_found"}`)
		})
		assert.NoError(t, gw.Delete(context.Background(), uuid.New()))
		assert.Zero(t, failures.Count(OpDelete))
	})

	t.Run("backend error is logged and swallowed by default", func(t *testing.T) {
		gw, _, failures := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
			writeJSON(w, http.StatusInternalServerError, `{"error":"boom"}`)
		})
		assert.NoError(t, gw.Delete(context.Background(), uuid.New()))
		assert.Equal(t, 1, failures.Count(OpDelete))
	})

	t.Run("strict policy propagates", func(t *testing.T) {
		gw, _, _ := newTestGateway(t, StrictPolicies(), func(w http.ResponseWriter, r recordedRequest) {
			writeJSON(w, http.StatusInternalServerError, `{"error":"boom"}`)
		})
		err := gw.Delete(context.Background(), uuid.New())
		var bErr *BackendError
		require.True(t, errors.As(err, &bErr))
		assert.Equal(t, OpDelete, bErr.Op)
		assert.Equal(t, http.StatusInternalServerError, bErr.Status)
	})
}

func TestGateway_EnsureIndex(t *testing.T) {
	t.Run("existing index is left alone", func(t *testing.T) {
		gw, fake, _ := newTestGateway(t, StrictPolicies(), func(w http.ResponseWriter, r recordedRequest) {
			w.WriteHeader(http.StatusOK)
		})
		require.NoError(t, gw.EnsureIndex(context.Background(), "games", GamesMapping))
		reqs := fake.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodHead, reqs[0].Method)
	})

	t.Run("absent index is created with mapping", func(t *testing.T) {
		gw, fake, _ := newTestGateway(t, StrictPolicies(), func(w http.ResponseWriter, r recordedRequest) {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, `{"acknowledged":true}`)
		})
		require.NoError(t, gw.EnsureIndex(context.Background(), "search-hits", HitsMapping))

		reqs := fake.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, http.MethodPut, reqs[1].Method)
		assert.Equal(t, "/search-hits", reqs[1].Path)
		assert.JSONEq(t, `{"mappings":{"properties":{"gameId":{"type":"keyword"},"timestamp":{"type":"date"}}}}`, reqs[1].Body)
	})

	t.Run("concurrent creation downgrades to a warning", func(t *testing.T) {
		gw, _, failures := newTestGateway(t, StrictPolicies(), func(w http.ResponseWriter, r recordedRequest) {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusBadRequest, `{"error":{"type":"resource_already_exists_exception"},"status":400}`)
		})
		assert.NoError(t, gw.EnsureIndex(context.Background(), "games", GamesMapping))
		assert.Zero(t, failures.Count(OpEnsureIndex))
	})
}

func TestGateway_RecordHits(t *testing.T) {
	gw, fake, _ := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, `{"errors":false,"items":[]}`)
	})
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	require.NoError(t, gw.RecordHits(ctx, nil, at))
	require.NoError(t, gw.RecordHits(ctx, []uuid.UUID{uuid.Nil}, at))
	assert.Empty(t, fake.Requests())

	a, b := uuid.New(), uuid.New()
	require.NoError(t, gw.RecordHits(ctx, []uuid.UUID{a, uuid.Nil, b}, at))

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/search-hits/_bulk", reqs[0].Path)

	lines := strings.Split(strings.TrimSpace(reqs[0].Body), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{}}`, lines[0])
	assert.JSONEq(t, `{"gameId":"`+a.String()+`","timestamp":"2025-03-01T10:30:00Z"}`, lines[1])
	assert.JSONEq(t, `{"index":{}}`, lines[2])
	assert.JSONEq(t, `{"gameId":"`+b.String()+`","timestamp":"2025-03-01T10:30:00Z"}`, lines[3])
}

func TestGateway_RecordHits_ItemErrorsAreSwallowed(t *testing.T) {
	gw, _, failures := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, `{"errors":true,"items":[]}`)
	})
	require.NoError(t, gw.RecordHits(context.Background(), []uuid.UUID{uuid.New()}, time.Now()))
	assert.Equal(t, 1, failures.Count(OpRecordHits))
}

func TestGateway_TopByHitCount(t *testing.T) {
	g1, g2 := uuid.New(), uuid.New()
	gw, fake, _ := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, `{"hits":{"hits":[]},"aggregations":{"top":{"buckets":[
			{"key":"`+g1.String()+`","doc_count":3},
			{"key":"garbage","doc_count":2},
			{"key":"`+g2.String()+`","doc_count":"1"}
		]}}}`)
	})

	top, err := gw.TopByHitCount(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.HitCount{{GameID: g1, Count: 3}, {GameID: g2, Count: 1}}, top)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/search-hits/_search", reqs[0].Path)
	assert.JSONEq(t, `{"size":0,"aggs":{"top":{"terms":{"field":"gameId","size":10}}}}`, reqs[0].Body)
}

func TestGateway_ReadFailures(t *testing.T) {
	failing := func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusInternalServerError, `{"error":"cluster unavailable"}`)
	}

	t.Run("default policy degrades to empty", func(t *testing.T) {
		gw, _, failures := newTestGateway(t, nil, failing)
		hits, err := gw.SearchFuzzy(context.Background(), "anything", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)

		top, err := gw.TopByHitCount(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, top)

		assert.Equal(t, 1, failures.Count(OpSearchFuzzy))
		assert.Equal(t, 1, failures.Count(OpTopHits))
	})

	t.Run("malformed body degrades to empty", func(t *testing.T) {
		gw, _, _ := newTestGateway(t, nil, func(w http.ResponseWriter, r recordedRequest) {
			writeJSON(w, http.StatusOK, `{"hits":`)
		})
		hits, err := gw.SampleByGenre(context.Background(), 1, 3, 1)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("strict policy propagates", func(t *testing.T) {
		gw, _, _ := newTestGateway(t, StrictPolicies(), failing)
		_, err := gw.SearchFuzzy(context.Background(), "anything", 10)
		var bErr *BackendError
		require.True(t, errors.As(err, &bErr))
		assert.Equal(t, OpSearchFuzzy, bErr.Op)
	})
}

func TestPolicies(t *testing.T) {
	def := DefaultPolicies()
	for _, op := range []Operation{OpEnsureIndex, OpUpsert, OpDelete, OpRecordHits} {
		assert.Equal(t, LogAndContinue, def.For(op), op)
	}
	for _, op := range []Operation{OpSearchFuzzy, OpSearchFiltered, OpSample, OpTopHits} {
		assert.Equal(t, EmptyResult, def.For(op), op)
	}
	for _, op := range Operations {
		assert.Equal(t, Propagate, StrictPolicies().For(op), op)
	}
	assert.Equal(t, Propagate, Policies{}.For(OpUpsert))
}
