package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"games-catalog-service/internal/domain"
)

// GameStorer defines the source-of-truth operations for games.
type GameStorer interface {
	CreateGame(ctx context.Context, game *domain.Game) (*domain.Game, error)
	UpdateGame(ctx context.Context, game *domain.Game) (*domain.Game, error)
	GetGameByID(ctx context.Context, id uuid.UUID) (*domain.Game, error)
	GetGamesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Game, error)
	ListGames(ctx context.Context) ([]domain.Game, error)
	DeleteGame(ctx context.Context, id uuid.UUID) error
}

// GenreStorer defines the database operations for genres.
type GenreStorer interface {
	CreateGenre(ctx context.Context, genre *domain.Genre) (*domain.Genre, error)
	GetGenreByID(ctx context.Context, id int) (*domain.Genre, error)
	ListGenres(ctx context.Context) ([]domain.Genre, error)
	DeleteGenre(ctx context.Context, id int) error
}

// PromotionStorer defines the database operations for promotions.
type PromotionStorer interface {
	CreatePromotion(ctx context.Context, promotion *domain.Promotion) (*domain.Promotion, error)
	GetPromotionByID(ctx context.Context, id uuid.UUID) (*domain.Promotion, error)
	ListPromotions(ctx context.Context) ([]domain.Promotion, error)
	DeletePromotion(ctx context.Context, id uuid.UUID) error
	// ListActivePromotions returns every promotion for the given games whose
	// window contains asOf, ordered by game, then discount descending, then id.
	ListActivePromotions(ctx context.Context, gameIDs []uuid.UUID, asOf time.Time) ([]domain.Promotion, error)
}
