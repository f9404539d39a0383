package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"games-catalog-service/internal/domain"
	"games-catalog-service/internal/logging"
)

// FailureCounter is notified of every backend failure the policy table swallows.
type FailureCounter interface {
	SearchBackendFailure(operation string)
}

type noopCounter struct{}

func (noopCounter) SearchBackendFailure(string) {}

// Options configures a Gateway. Zero values fall back to the defaults.
type Options struct {
	GamesIndex string
	HitsIndex  string
	Policies   Policies
	Failures   FailureCounter
}

// Gateway owns the games index and the search-hits analytics index. It is the
// only component that talks to the search backend; the index is a derived
// cache of the catalog store and may be rebuilt from it at any time.
type Gateway struct {
	es         *elasticsearch.Client
	gamesIndex string
	hitsIndex  string
	policies   Policies
	failures   FailureCounter
}

// NewGateway wraps an Elasticsearch client.
func NewGateway(es *elasticsearch.Client, opts Options) *Gateway {
	g := &Gateway{
		es:         es,
		gamesIndex: opts.GamesIndex,
		hitsIndex:  opts.HitsIndex,
		policies:   opts.Policies,
		failures:   opts.Failures,
	}
	if g.gamesIndex == "" {
		g.gamesIndex = "games"
	}
	if g.hitsIndex == "" {
		g.hitsIndex = "search-hits"
	}
	if g.policies == nil {
		g.policies = DefaultPolicies()
	}
	if g.failures == nil {
		g.failures = noopCounter{}
	}
	return g
}

// GamesIndex returns the name of the games index.
func (g *Gateway) GamesIndex() string { return g.gamesIndex }

// HitsIndex returns the name of the search-hits index.
func (g *Gateway) HitsIndex() string { return g.hitsIndex }

// handle applies the failure policy of op to err. A nil return means the
// failure was swallowed and the caller should carry on with an empty result.
func (g *Gateway) handle(ctx context.Context, op Operation, index string, err error) error {
	if g.policies.For(op) == Propagate {
		return err
	}
	g.failures.SearchBackendFailure(string(op))
	logger := logging.Ctx(ctx)
	logger.Warn().Err(err).
		Str(logging.FieldOperation, string(op)).
		Str(logging.FieldIndex, index).
		Msg("search backend call failed, continuing")
	return nil
}

func backendErr(op Operation, res *esapi.Response) *BackendError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &BackendError{Op: op, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
}

func encode(v interface{}) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// EnsureIndices creates the games and search-hits indices when absent.
func (g *Gateway) EnsureIndices(ctx context.Context) error {
	if err := g.EnsureIndex(ctx, g.gamesIndex, GamesMapping); err != nil {
		return err
	}
	return g.EnsureIndex(ctx, g.hitsIndex, HitsMapping)
}

// EnsureIndex probes for name and creates it with mapping if absent. Losing a
// creation race to another caller is not an error.
func (g *Gateway) EnsureIndex(ctx context.Context, name string, mapping map[string]string) error {
	if err := g.ensureIndex(ctx, name, mapping); err != nil {
		return g.handle(ctx, OpEnsureIndex, name, err)
	}
	return nil
}

func (g *Gateway) ensureIndex(ctx context.Context, name string, mapping map[string]string) error {
	res, err := g.es.Indices.Exists([]string{name}, g.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return &BackendError{Op: OpEnsureIndex, Err: err}
	}
	res.Body.Close()
	switch {
	case !res.IsError():
		return nil
	case res.StatusCode != http.StatusNotFound:
		return &BackendError{Op: OpEnsureIndex, Status: res.StatusCode}
	}

	body, err := encode(mappingBody(mapping))
	if err != nil {
		return err
	}
	res, err = g.es.Indices.Create(name,
		g.es.Indices.Create.WithBody(body),
		g.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return &BackendError{Op: OpEnsureIndex, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		bErr := backendErr(OpEnsureIndex, res)
		if strings.Contains(bErr.Body, "resource_already_exists_exception") {
			logger := logging.Ctx(ctx)
			logger.Warn().Str(logging.FieldIndex, name).Msg("index created concurrently")
			return nil
		}
		return bErr
	}
	logger := logging.Ctx(ctx)
	logger.Info().Str(logging.FieldIndex, name).Msg("index created")
	return nil
}

// Upsert indexes game under its own identifier, replacing any previous version.
func (g *Gateway) Upsert(ctx context.Context, game domain.Game) error {
	if err := g.upsert(ctx, game); err != nil {
		return g.handle(ctx, OpUpsert, g.gamesIndex, err)
	}
	return nil
}

func (g *Gateway) upsert(ctx context.Context, game domain.Game) error {
	body, err := encode(game)
	if err != nil {
		return err
	}
	res, err := g.es.Index(g.gamesIndex, body,
		g.es.Index.WithDocumentID(game.ID.String()),
		g.es.Index.WithContext(ctx),
	)
	if err != nil {
		return &BackendError{Op: OpUpsert, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return backendErr(OpUpsert, res)
	}
	return nil
}

// Delete removes the document for id. A missing document counts as deleted.
func (g *Gateway) Delete(ctx context.Context, id uuid.UUID) error {
	if err := g.delete(ctx, id); err != nil {
		return g.handle(ctx, OpDelete, g.gamesIndex, err)
	}
	return nil
}

func (g *Gateway) delete(ctx context.Context, id uuid.UUID) error {
	res, err := g.es.Delete(g.gamesIndex, id.String(), g.es.Delete.WithContext(ctx))
	if err != nil {
		return &BackendError{Op: OpDelete, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return backendErr(OpDelete, res)
	}
	return nil
}

// SearchFuzzy ranks games by typo-tolerant match on title and description.
// Blank text yields no hits without contacting the backend.
func (g *Gateway) SearchFuzzy(ctx context.Context, text string, size int) ([]domain.SearchHit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []domain.SearchHit{}, nil
	}
	return g.searchGames(ctx, OpSearchFuzzy, fuzzyQuery(text, size), true)
}

// SearchFiltered combines an optional text query with an optional exact genre
// filter. Text drives the score; genre alone gives unranked matches.
func (g *Gateway) SearchFiltered(ctx context.Context, text string, genre *int, size int) ([]domain.SearchHit, error) {
	query, ok := filteredQuery(text, genre, size)
	if !ok {
		return []domain.SearchHit{}, nil
	}
	return g.searchGames(ctx, OpSearchFiltered, query, strings.TrimSpace(text) != "")
}

// SampleByGenre returns up to size pseudo-random games of genre. Distinct
// seeds give distinct samples; equal seeds repeat the sample.
func (g *Gateway) SampleByGenre(ctx context.Context, genre, size int, seed int64) ([]domain.SearchHit, error) {
	return g.searchGames(ctx, OpSample, sampleQuery(genre, size, seed), false)
}

func (g *Gateway) searchGames(ctx context.Context, op Operation, query map[string]interface{}, scored bool) ([]domain.SearchHit, error) {
	resp, err := g.search(ctx, op, g.gamesIndex, query)
	if err != nil {
		if err := g.handle(ctx, op, g.gamesIndex, err); err != nil {
			return nil, err
		}
		return []domain.SearchHit{}, nil
	}
	return resp.hits(scored), nil
}

func (g *Gateway) search(ctx context.Context, op Operation, index string, query map[string]interface{}) (*searchResponse, error) {
	body, err := encode(query)
	if err != nil {
		return nil, err
	}
	res, err := g.es.Search(
		g.es.Search.WithContext(ctx),
		g.es.Search.WithIndex(index),
		g.es.Search.WithBody(body),
	)
	if err != nil {
		return nil, &BackendError{Op: op, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, backendErr(op, res)
	}
	resp, err := decodeResponse(res.Body)
	if err != nil {
		return nil, &BackendError{Op: op, Status: res.StatusCode, Err: err}
	}
	return resp, nil
}

type hitEvent struct {
	GameID    string `json:"gameId"`
	Timestamp string `json:"timestamp"`
}

// RecordHits appends one analytics event per non-nil id, stamped with at.
func (g *Gateway) RecordHits(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	stamp := at.UTC().Format(time.RFC3339Nano)
	n := 0
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		buf.WriteString(`{"index":{}}` + "\n")
		if err := enc.Encode(hitEvent{GameID: id.String(), Timestamp: stamp}); err != nil {
			return err
		}
		n++
	}
	if n == 0 {
		return nil
	}

	if err := g.bulk(ctx, &buf); err != nil {
		return g.handle(ctx, OpRecordHits, g.hitsIndex, err)
	}
	return nil
}

func (g *Gateway) bulk(ctx context.Context, body io.Reader) error {
	res, err := g.es.Bulk(body,
		g.es.Bulk.WithIndex(g.hitsIndex),
		g.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return &BackendError{Op: OpRecordHits, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return backendErr(OpRecordHits, res)
	}

	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err == nil && out.Errors {
		return &BackendError{Op: OpRecordHits, Status: res.StatusCode, Body: "bulk request reported item errors"}
	}
	return nil
}

// TopByHitCount returns the size most searched games, highest count first.
func (g *Gateway) TopByHitCount(ctx context.Context, size int) ([]domain.HitCount, error) {
	resp, err := g.search(ctx, OpTopHits, g.hitsIndex, topHitsQuery(size))
	if err != nil {
		if err := g.handle(ctx, OpTopHits, g.hitsIndex, err); err != nil {
			return nil, err
		}
		return []domain.HitCount{}, nil
	}
	return resp.buckets(topAggregation), nil
}

// Ping reports whether the backend answers.
func (g *Gateway) Ping(ctx context.Context) error {
	res, err := g.es.Ping(g.es.Ping.WithContext(ctx))
	if err != nil {
		return &BackendError{Op: "ping", Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return &BackendError{Op: "ping", Status: res.StatusCode}
	}
	return nil
}
