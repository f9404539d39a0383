package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"games-catalog-service/internal/cache"
	"games-catalog-service/internal/domain"
)

// MockGameStorer is a mock implementation of store.GameStorer
type MockGameStorer struct {
	mock.Mock
}

func (m *MockGameStorer) CreateGame(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	args := m.Called(ctx, game)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Game), args.Error(1)
}

func (m *MockGameStorer) UpdateGame(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	args := m.Called(ctx, game)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Game), args.Error(1)
}

func (m *MockGameStorer) GetGameByID(ctx context.Context, id uuid.UUID) (*domain.Game, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Game), args.Error(1)
}

func (m *MockGameStorer) GetGamesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Game, error) {
	args := m.Called(ctx, ids)
	var games []domain.Game
	if arg0 := args.Get(0); arg0 != nil {
		games = arg0.([]domain.Game)
	}
	return games, args.Error(1)
}

func (m *MockGameStorer) ListGames(ctx context.Context) ([]domain.Game, error) {
	args := m.Called(ctx)
	var games []domain.Game
	if arg0 := args.Get(0); arg0 != nil {
		games = arg0.([]domain.Game)
	}
	return games, args.Error(1)
}

func (m *MockGameStorer) DeleteGame(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockGenreStorer is a mock implementation of store.GenreStorer
type MockGenreStorer struct {
	mock.Mock
}

func (m *MockGenreStorer) CreateGenre(ctx context.Context, genre *domain.Genre) (*domain.Genre, error) {
	args := m.Called(ctx, genre)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Genre), args.Error(1)
}

func (m *MockGenreStorer) GetGenreByID(ctx context.Context, id int) (*domain.Genre, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Genre), args.Error(1)
}

func (m *MockGenreStorer) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	args := m.Called(ctx)
	var genres []domain.Genre
	if arg0 := args.Get(0); arg0 != nil {
		genres = arg0.([]domain.Genre)
	}
	return genres, args.Error(1)
}

func (m *MockGenreStorer) DeleteGenre(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

// MockPromotionStorer is a mock implementation of store.PromotionStorer
type MockPromotionStorer struct {
	mock.Mock
}

func (m *MockPromotionStorer) CreatePromotion(ctx context.Context, p *domain.Promotion) (*domain.Promotion, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *MockPromotionStorer) GetPromotionByID(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *MockPromotionStorer) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	args := m.Called(ctx)
	var promos []domain.Promotion
	if arg0 := args.Get(0); arg0 != nil {
		promos = arg0.([]domain.Promotion)
	}
	return promos, args.Error(1)
}

func (m *MockPromotionStorer) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPromotionStorer) ListActivePromotions(ctx context.Context, gameIDs []uuid.UUID, asOf time.Time) ([]domain.Promotion, error) {
	args := m.Called(ctx, gameIDs, asOf)
	var promos []domain.Promotion
	if arg0 := args.Get(0); arg0 != nil {
		promos = arg0.([]domain.Promotion)
	}
	return promos, args.Error(1)
}

// MockSearchIndex is a mock implementation of SearchIndex
type MockSearchIndex struct {
	mock.Mock
}

func (m *MockSearchIndex) EnsureIndices(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSearchIndex) Upsert(ctx context.Context, game domain.Game) error {
	return m.Called(ctx, game).Error(0)
}

func (m *MockSearchIndex) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func hitsArg(args mock.Arguments) []domain.SearchHit {
	if arg0 := args.Get(0); arg0 != nil {
		return arg0.([]domain.SearchHit)
	}
	return nil
}

func (m *MockSearchIndex) SearchFuzzy(ctx context.Context, text string, size int) ([]domain.SearchHit, error) {
	args := m.Called(ctx, text, size)
	return hitsArg(args), args.Error(1)
}

func (m *MockSearchIndex) SearchFiltered(ctx context.Context, text string, genre *int, size int) ([]domain.SearchHit, error) {
	args := m.Called(ctx, text, genre, size)
	return hitsArg(args), args.Error(1)
}

func (m *MockSearchIndex) SampleByGenre(ctx context.Context, genre, size int, seed int64) ([]domain.SearchHit, error) {
	args := m.Called(ctx, genre, size, seed)
	return hitsArg(args), args.Error(1)
}

func (m *MockSearchIndex) RecordHits(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	return m.Called(ctx, ids, at).Error(0)
}

func (m *MockSearchIndex) TopByHitCount(ctx context.Context, size int) ([]domain.HitCount, error) {
	args := m.Called(ctx, size)
	var counts []domain.HitCount
	if arg0 := args.Get(0); arg0 != nil {
		counts = arg0.([]domain.HitCount)
	}
	return counts, args.Error(1)
}

// memoryTopCache is an in-process TopSearchedCache.
type memoryTopCache struct {
	mu      sync.Mutex
	entries map[int][]domain.HitCount
	sets    int
}

func newMemoryTopCache() *memoryTopCache {
	return &memoryTopCache{entries: map[int][]domain.HitCount{}}
}

func (c *memoryTopCache) Get(_ context.Context, size int) ([]domain.HitCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.entries[size]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return counts, nil
}

func (c *memoryTopCache) Set(_ context.Context, size int, counts []domain.HitCount, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[size] = counts
	c.sets++
	return nil
}

func (c *memoryTopCache) Close() error { return nil }

// countingResolver records how often the store would have been hit.
type countingResolver struct {
	mu    sync.Mutex
	calls int
	sizes []int
}

func (r *countingResolver) ResolveActive(_ context.Context, ids []uuid.UUID, _ time.Time) (map[uuid.UUID]domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.sizes = append(r.sizes, len(ids))
	return map[uuid.UUID]domain.Promotion{}, nil
}
