package catalog

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"games-catalog-service/internal/cache"
	"games-catalog-service/internal/clock"
	"games-catalog-service/internal/domain"
	"games-catalog-service/internal/logging"
	"games-catalog-service/internal/store"
)

const (
	backgroundTimeout = 5 * time.Second
	seedMask          = 0x7FFFFFFF
)

// SearchIndex is the part of the search gateway the service drives.
type SearchIndex interface {
	EnsureIndices(ctx context.Context) error
	Upsert(ctx context.Context, game domain.Game) error
	Delete(ctx context.Context, id uuid.UUID) error
	SearchFuzzy(ctx context.Context, text string, size int) ([]domain.SearchHit, error)
	SearchFiltered(ctx context.Context, text string, genre *int, size int) ([]domain.SearchHit, error)
	SampleByGenre(ctx context.Context, genre, size int, seed int64) ([]domain.SearchHit, error)
	RecordHits(ctx context.Context, ids []uuid.UUID, at time.Time) error
	TopByHitCount(ctx context.Context, size int) ([]domain.HitCount, error)
}

// Deps are the collaborators of a Service. Cache, Clock and Metrics are optional.
type Deps struct {
	Games      store.GameStorer
	Genres     store.GenreStorer
	Promotions store.PromotionStorer
	Index      SearchIndex
	// ReindexIndex, when set, is used by Reindex instead of Index so that a
	// full rebuild can report failures the default policy would swallow.
	ReindexIndex SearchIndex
	Cache        cache.TopSearchedCache
	Clock        clock.Clock
	Metrics      BatchObserver
}

// Options bounds result sizes and background work.
type Options struct {
	DefaultSize        int
	MaxSize            int
	SuggestSize        int
	ReindexConcurrency int
	TopTTL             time.Duration
}

// Service implements the catalog use cases on top of the store, the search
// index and the enrichment pipeline.
type Service struct {
	games        store.GameStorer
	genres       store.GenreStorer
	promotions   store.PromotionStorer
	index        SearchIndex
	reindexIndex SearchIndex
	cache        cache.TopSearchedCache
	clock        clock.Clock
	pipeline     *Pipeline
	opts         Options

	sf      singleflight.Group
	pending sync.WaitGroup
	pick    func(n int) int
}

func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		games:        deps.Games,
		genres:       deps.Genres,
		promotions:   deps.Promotions,
		index:        deps.Index,
		reindexIndex: deps.ReindexIndex,
		cache:        deps.Cache,
		clock:        deps.Clock,
		pipeline:     NewPipeline(NewPromotionResolver(deps.Promotions), deps.Metrics),
		opts:         opts,
		pick:         rand.IntN,
	}
	if s.reindexIndex == nil {
		s.reindexIndex = s.index
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.clock == nil {
		s.clock = clock.NewRealClock()
	}
	if s.opts.DefaultSize <= 0 {
		s.opts.DefaultSize = 10
	}
	if s.opts.MaxSize < s.opts.DefaultSize {
		s.opts.MaxSize = s.opts.DefaultSize
	}
	if s.opts.SuggestSize <= 0 {
		s.opts.SuggestSize = 5
	}
	if s.opts.ReindexConcurrency <= 0 {
		s.opts.ReindexConcurrency = 1
	}
	return s
}

// Wait blocks until background analytics and cache writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) size(requested, fallback int) int {
	if requested <= 0 {
		return fallback
	}
	if requested > s.opts.MaxSize {
		return s.opts.MaxSize
	}
	return requested
}

// background runs fn detached from the caller's cancellation but keeps its
// values, so the request logger follows the work.
func (s *Service) background(ctx context.Context, fn func(ctx context.Context)) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		fn(bctx)
	}()
}

// --- Retrieval ---

func (s *Service) GetGame(ctx context.Context, id uuid.UUID) (*domain.EnrichedGame, error) {
	asOf := s.clock.Now()
	game, err := s.games.GetGameByID(ctx, id)
	if err != nil {
		return nil, err
	}
	enriched, err := s.pipeline.EnrichGames(ctx, []domain.Game{*game}, asOf)
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}

func (s *Service) GetGames(ctx context.Context, ids []uuid.UUID) ([]domain.EnrichedGame, error) {
	if len(ids) == 0 {
		return nil, domain.NewValidationError("gameIds", "at least one id is required")
	}
	asOf := s.clock.Now()
	games, err := s.games.GetGamesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, store.ErrGameNotFound
	}
	return s.pipeline.EnrichGames(ctx, games, asOf)
}

func (s *Service) ListGames(ctx context.Context) ([]domain.EnrichedGame, error) {
	asOf := s.clock.Now()
	games, err := s.games.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	return s.pipeline.EnrichGames(ctx, games, asOf)
}

func (s *Service) RandomGame(ctx context.Context) (*domain.EnrichedGame, error) {
	asOf := s.clock.Now()
	games, err := s.games.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, store.ErrGameNotFound
	}
	chosen := games[s.pick(len(games))]
	enriched, err := s.pipeline.EnrichGames(ctx, []domain.Game{chosen}, asOf)
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}

// SearchQuery is a free-text and/or genre search. At least one of Text and
// Genre must be set.
type SearchQuery struct {
	Text  string
	Genre *int
	Size  int
}

// Search queries the index, records the returned games as hits in the
// background and enriches the ranked hits.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]domain.EnrichedGame, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" && q.Genre == nil {
		return nil, domain.NewValidationError("name", "query parameter 'name' or 'genre' is required")
	}
	asOf := s.clock.Now()
	size := s.size(q.Size, s.opts.DefaultSize)

	var (
		hits []domain.SearchHit
		err  error
	)
	if q.Genre == nil {
		hits, err = s.index.SearchFuzzy(ctx, text, size)
	} else {
		hits, err = s.index.SearchFiltered(ctx, text, q.Genre, size)
	}
	if err != nil {
		return nil, err
	}

	if len(hits) > 0 {
		ids := make([]uuid.UUID, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		s.background(ctx, func(ctx context.Context) {
			if err := s.index.RecordHits(ctx, ids, asOf); err != nil {
				logger := logging.Ctx(ctx)
				logger.Warn().Err(err).Int("hits", len(ids)).Msg("failed to record search hits")
			}
		})
	}

	return s.pipeline.Enrich(ctx, hits, asOf)
}

// Suggest returns a random sample of games in genre. The sample seed is
// derived from the clock so consecutive calls diverge.
func (s *Service) Suggest(ctx context.Context, genre, size int) ([]domain.EnrichedGame, error) {
	if genre <= 0 {
		return nil, domain.NewValidationError("genre", "must be a positive integer")
	}
	asOf := s.clock.Now()
	seed := asOf.UnixNano() & seedMask

	hits, err := s.index.SampleByGenre(ctx, genre, s.size(size, s.opts.SuggestSize), seed)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Enrich(ctx, hits, asOf)
}

// TopSearched returns the most searched games with their hit counts, highest
// first. Games deleted since they were searched are skipped.
func (s *Service) TopSearched(ctx context.Context, size int) ([]domain.TopSearchedGame, error) {
	size = s.size(size, s.opts.DefaultSize)
	asOf := s.clock.Now()

	v, err, _ := s.sf.Do("top:"+strconv.Itoa(size), func() (interface{}, error) {
		counts, err := s.cache.Get(ctx, size)
		if err == nil {
			return counts, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger := logging.Ctx(ctx)
			logger.Warn().Err(err).Msg("cache get error")
		}

		counts, err = s.index.TopByHitCount(ctx, size)
		if err != nil {
			return nil, err
		}
		if len(counts) > 0 {
			s.background(ctx, func(ctx context.Context) {
				if err := s.cache.Set(ctx, size, counts, s.opts.TopTTL); err != nil {
					logger := logging.Ctx(ctx)
					logger.Warn().Err(err).Int("size", size).Msg("cache set error")
				}
			})
		}
		return counts, nil
	})
	if err != nil {
		return nil, err
	}
	counts := v.([]domain.HitCount)

	result := make([]domain.TopSearchedGame, 0, len(counts))
	if len(counts) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(counts))
	for i, c := range counts {
		ids[i] = c.GameID
	}
	games, err := s.games.GetGamesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Game, len(games))
	for _, g := range games {
		byID[g.ID] = g
	}

	ordered := make([]domain.Game, 0, len(counts))
	hitsFor := make([]int64, 0, len(counts))
	for _, c := range counts {
		if g, ok := byID[c.GameID]; ok {
			ordered = append(ordered, g)
			hitsFor = append(hitsFor, c.Count)
		}
	}

	enriched, err := s.pipeline.EnrichGames(ctx, ordered, asOf)
	if err != nil {
		return nil, err
	}
	for i, eg := range enriched {
		result = append(result, domain.TopSearchedGame{EnrichedGame: eg, Hits: hitsFor[i]})
	}
	return result, nil
}

// --- Catalog writes ---

// GameInput carries the writable fields of a game.
type GameInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Genre       int
}

// CreateGame writes the game to the store and then indexes it. Index failures
// never fail the write.
func (s *Service) CreateGame(ctx context.Context, in GameInput) (*domain.Game, error) {
	game, err := domain.NewGame(uuid.New(), in.Title, in.Description, in.Price, in.Genre)
	if err != nil {
		return nil, err
	}
	created, err := s.games.CreateGame(ctx, game)
	if err != nil {
		return nil, err
	}
	s.syncIndex(ctx, *created)
	return created, nil
}

func (s *Service) UpdateGame(ctx context.Context, id uuid.UUID, in GameInput) (*domain.Game, error) {
	game, err := domain.NewGame(id, in.Title, in.Description, in.Price, in.Genre)
	if err != nil {
		return nil, err
	}
	updated, err := s.games.UpdateGame(ctx, game)
	if err != nil {
		return nil, err
	}
	s.syncIndex(ctx, *updated)
	return updated, nil
}

func (s *Service) DeleteGame(ctx context.Context, id uuid.UUID) error {
	if err := s.games.DeleteGame(ctx, id); err != nil {
		return err
	}
	if err := s.index.Delete(ctx, id); err != nil {
		logger := logging.Ctx(ctx)
		logger.Warn().Err(err).Str(logging.FieldGameID, id.String()).Msg("failed to remove game from index")
	}
	return nil
}

func (s *Service) syncIndex(ctx context.Context, game domain.Game) {
	if err := s.index.Upsert(ctx, game); err != nil {
		logger := logging.Ctx(ctx)
		logger.Warn().Err(err).Str(logging.FieldGameID, game.ID.String()).Msg("failed to index game")
	}
}

// Reindex rebuilds the games index from the store with bounded concurrency.
// Individual failures are logged and excluded from the reindexed count.
func (s *Service) Reindex(ctx context.Context) (*domain.ReindexReport, error) {
	games, err := s.games.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	report := &domain.ReindexReport{Total: len(games)}
	if len(games) == 0 {
		return report, nil
	}
	if err := s.reindexIndex.EnsureIndices(ctx); err != nil {
		return nil, err
	}

	var reindexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ReindexConcurrency)
	for _, game := range games {
		g.Go(func() error {
			if err := s.reindexIndex.Upsert(gctx, game); err != nil {
				logger := logging.Ctx(gctx)
				logger.Warn().Err(err).Str(logging.FieldGameID, game.ID.String()).Msg("failed to reindex game")
				return nil
			}
			reindexed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Reindexed = int(reindexed.Load())
	logger := logging.Ctx(ctx)
	logger.Info().Int("reindexed", report.Reindexed).Int("total", report.Total).Msg("reindex finished")
	return report, nil
}

// --- Genres ---

func (s *Service) CreateGenre(ctx context.Context, id int, name string) (*domain.Genre, error) {
	genre, err := domain.NewGenre(id, name)
	if err != nil {
		return nil, err
	}
	return s.genres.CreateGenre(ctx, genre)
}

func (s *Service) GetGenre(ctx context.Context, id int) (*domain.Genre, error) {
	return s.genres.GetGenreByID(ctx, id)
}

func (s *Service) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	return s.genres.ListGenres(ctx)
}

func (s *Service) DeleteGenre(ctx context.Context, id int) error {
	return s.genres.DeleteGenre(ctx, id)
}

// --- Promotions ---

// PromotionInput carries the fields of a new promotion.
type PromotionInput struct {
	GameID             uuid.UUID
	DiscountPercentage decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
}

func (s *Service) CreatePromotion(ctx context.Context, in PromotionInput) (*domain.Promotion, error) {
	promo, err := domain.NewPromotion(in.GameID, in.DiscountPercentage, in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	return s.promotions.CreatePromotion(ctx, promo)
}

func (s *Service) GetPromotion(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	return s.promotions.GetPromotionByID(ctx, id)
}

func (s *Service) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	return s.promotions.ListPromotions(ctx)
}

func (s *Service) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	return s.promotions.DeletePromotion(ctx, id)
}
