package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"games-catalog-service/internal/catalog"
	"games-catalog-service/internal/domain"
)

// MockCatalog is a mock implementation of Catalog
type MockCatalog struct {
	mock.Mock
}

func enrichedArg(args mock.Arguments) []domain.EnrichedGame {
	if arg0 := args.Get(0); arg0 != nil {
		return arg0.([]domain.EnrichedGame)
	}
	return nil
}

func (m *MockCatalog) GetGame(ctx context.Context, id uuid.UUID) (*domain.EnrichedGame, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EnrichedGame), args.Error(1)
}

func (m *MockCatalog) GetGames(ctx context.Context, ids []uuid.UUID) ([]domain.EnrichedGame, error) {
	args := m.Called(ctx, ids)
	return enrichedArg(args), args.Error(1)
}

func (m *MockCatalog) ListGames(ctx context.Context) ([]domain.EnrichedGame, error) {
	args := m.Called(ctx)
	return enrichedArg(args), args.Error(1)
}

func (m *MockCatalog) RandomGame(ctx context.Context) (*domain.EnrichedGame, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EnrichedGame), args.Error(1)
}

func (m *MockCatalog) Search(ctx context.Context, q catalog.SearchQuery) ([]domain.EnrichedGame, error) {
	args := m.Called(ctx, q)
	return enrichedArg(args), args.Error(1)
}

func (m *MockCatalog) Suggest(ctx context.Context, genre, size int) ([]domain.EnrichedGame, error) {
	args := m.Called(ctx, genre, size)
	return enrichedArg(args), args.Error(1)
}

func (m *MockCatalog) TopSearched(ctx context.Context, size int) ([]domain.TopSearchedGame, error) {
	args := m.Called(ctx, size)
	var top []domain.TopSearchedGame
	if arg0 := args.Get(0); arg0 != nil {
		top = arg0.([]domain.TopSearchedGame)
	}
	return top, args.Error(1)
}

func (m *MockCatalog) CreateGame(ctx context.Context, in catalog.GameInput) (*domain.Game, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Game), args.Error(1)
}

func (m *MockCatalog) UpdateGame(ctx context.Context, id uuid.UUID, in catalog.GameInput) (*domain.Game, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Game), args.Error(1)
}

func (m *MockCatalog) DeleteGame(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalog) Reindex(ctx context.Context) (*domain.ReindexReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReindexReport), args.Error(1)
}

func (m *MockCatalog) CreateGenre(ctx context.Context, id int, name string) (*domain.Genre, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Genre), args.Error(1)
}

func (m *MockCatalog) GetGenre(ctx context.Context, id int) (*domain.Genre, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Genre), args.Error(1)
}

func (m *MockCatalog) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	args := m.Called(ctx)
	var genres []domain.Genre
	if arg0 := args.Get(0); arg0 != nil {
		genres = arg0.([]domain.Genre)
	}
	return genres, args.Error(1)
}

func (m *MockCatalog) DeleteGenre(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalog) CreatePromotion(ctx context.Context, in catalog.PromotionInput) (*domain.Promotion, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *MockCatalog) GetPromotion(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *MockCatalog) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	args := m.Called(ctx)
	var promos []domain.Promotion
	if arg0 := args.Get(0); arg0 != nil {
		promos = arg0.([]domain.Promotion)
	}
	return promos, args.Error(1)
}

func (m *MockCatalog) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
