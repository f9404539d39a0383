package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"games-catalog-service/internal/domain"
	"games-catalog-service/internal/logging"
)

// Predefined errors for store operations
var (
	ErrGameNotFound      = errors.New("store: game not found")
	ErrGenreNotFound     = errors.New("store: genre not found")
	ErrGenreExists       = errors.New("store: genre already exists")
	ErrPromotionNotFound = errors.New("store: promotion not found")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const gameColumns = `id, title, description, price, genre`
const promotionColumns = `id, game_id, discount_percentage, start_date, end_date`

// PostgresStore implements GameStorer, GenreStorer and PromotionStorer using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func dataErr(op string, err error) error {
	return &domain.DataAccessError{Op: "store: " + op, Err: err}
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(row rowScanner) (domain.Game, error) {
	var g domain.Game
	err := row.Scan(&g.ID, &g.Title, &g.Description, &g.Price, &g.Genre)
	return g, err
}

func scanPromotion(row rowScanner) (domain.Promotion, error) {
	var p domain.Promotion
	err := row.Scan(&p.ID, &p.GameID, &p.DiscountPercentage, &p.StartDate, &p.EndDate)
	if err == nil {
		p.StartDate = p.StartDate.UTC()
		p.EndDate = p.EndDate.UTC()
	}
	return p, err
}

func (s *PostgresStore) queryGames(ctx context.Context, op, query string, args ...interface{}) ([]domain.Game, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dataErr(op+" query", err)
	}
	defer rows.Close()

	games := make([]domain.Game, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, dataErr(op+" scan", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, dataErr(op+" iteration", err)
	}
	return games, nil
}

func (s *PostgresStore) queryPromotions(ctx context.Context, op, query string, args ...interface{}) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dataErr(op+" query", err)
	}
	defer rows.Close()

	promotions := make([]domain.Promotion, 0)
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, dataErr(op+" scan", err)
		}
		promotions = append(promotions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dataErr(op+" iteration", err)
	}
	return promotions, nil
}

// --- GameStorer Implementation ---

func (s *PostgresStore) CreateGame(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	query := `
		INSERT INTO catalog.games (id, title, description, price, genre)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + gameColumns + `;`
	created, err := scanGame(s.db.QueryRowContext(ctx, query, game.ID, game.Title, game.Description, game.Price, game.Genre))
	if err != nil {
		return nil, dataErr("CreateGame", err)
	}
	return &created, nil
}

func (s *PostgresStore) UpdateGame(ctx context.Context, game *domain.Game) (*domain.Game, error) {
	query := `
		UPDATE catalog.games
		SET title = $1, description = $2, price = $3, genre = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
		RETURNING ` + gameColumns + `;`
	updated, err := scanGame(s.db.QueryRowContext(ctx, query, game.Title, game.Description, game.Price, game.Genre, game.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, dataErr("UpdateGame", err)
	}
	return &updated, nil
}

func (s *PostgresStore) GetGameByID(ctx context.Context, id uuid.UUID) (*domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM catalog.games WHERE id = $1;`
	game, err := scanGame(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, dataErr("GetGameByID", err)
	}
	return &game, nil
}

func (s *PostgresStore) GetGamesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Game, error) {
	if len(ids) == 0 {
		return []domain.Game{}, nil
	}
	query := `SELECT ` + gameColumns + ` FROM catalog.games WHERE id = ANY($1::uuid[]) ORDER BY title ASC, id ASC;`
	return s.queryGames(ctx, "GetGamesByIDs", query, pq.Array(uuidStrings(ids)))
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM catalog.games ORDER BY title ASC, id ASC;`
	return s.queryGames(ctx, "ListGames", query)
}

func (s *PostgresStore) DeleteGame(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM catalog.games WHERE id = $1;`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return dataErr("DeleteGame", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return dataErr("DeleteGame rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrGameNotFound
	}
	return nil
}

// --- GenreStorer Implementation ---

func (s *PostgresStore) CreateGenre(ctx context.Context, genre *domain.Genre) (*domain.Genre, error) {
	query := `
		INSERT INTO catalog.genres (id, name)
		VALUES ($1, $2)
		RETURNING id, name;`
	var created domain.Genre
	err := s.db.QueryRowContext(ctx, query, genre.ID, genre.Name).Scan(&created.ID, &created.Name)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return nil, ErrGenreExists
		}
		return nil, dataErr("CreateGenre", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetGenreByID(ctx context.Context, id int) (*domain.Genre, error) {
	query := `SELECT id, name FROM catalog.genres WHERE id = $1;`
	var genre domain.Genre
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&genre.ID, &genre.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGenreNotFound
		}
		return nil, dataErr("GetGenreByID", err)
	}
	return &genre, nil
}

func (s *PostgresStore) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM catalog.genres ORDER BY id ASC;`)
	if err != nil {
		return nil, dataErr("ListGenres query", err)
	}
	defer rows.Close()

	genres := make([]domain.Genre, 0)
	for rows.Next() {
		var g domain.Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, dataErr("ListGenres scan", err)
		}
		genres = append(genres, g)
	}
	if err := rows.Err(); err != nil {
		return nil, dataErr("ListGenres iteration", err)
	}
	return genres, nil
}

func (s *PostgresStore) DeleteGenre(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM catalog.genres WHERE id = $1;`, id)
	if err != nil {
		return dataErr("DeleteGenre", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return dataErr("DeleteGenre rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrGenreNotFound
	}
	return nil
}

// --- PromotionStorer Implementation ---

func (s *PostgresStore) CreatePromotion(ctx context.Context, promotion *domain.Promotion) (*domain.Promotion, error) {
	query := `
		INSERT INTO catalog.promotions (id, game_id, discount_percentage, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + promotionColumns + `;`
	created, err := scanPromotion(s.db.QueryRowContext(ctx, query,
		promotion.ID, promotion.GameID, promotion.DiscountPercentage, promotion.StartDate, promotion.EndDate,
	))
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return nil, ErrGameNotFound
		}
		return nil, dataErr("CreatePromotion", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetPromotionByID(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM catalog.promotions WHERE id = $1;`
	p, err := scanPromotion(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPromotionNotFound
		}
		return nil, dataErr("GetPromotionByID", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM catalog.promotions ORDER BY start_date DESC, id ASC;`
	return s.queryPromotions(ctx, "ListPromotions", query)
}

func (s *PostgresStore) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM catalog.promotions WHERE id = $1;`, id)
	if err != nil {
		return dataErr("DeletePromotion", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return dataErr("DeletePromotion rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrPromotionNotFound
	}
	return nil
}

func (s *PostgresStore) ListActivePromotions(ctx context.Context, gameIDs []uuid.UUID, asOf time.Time) ([]domain.Promotion, error) {
	if len(gameIDs) == 0 {
		return []domain.Promotion{}, nil
	}
	// Served by the index on promotions(game_id).
	query := `
		SELECT ` + promotionColumns + `
		FROM catalog.promotions
		WHERE game_id = ANY($1::uuid[]) AND start_date <= $2 AND end_date >= $2
		ORDER BY game_id ASC, discount_percentage DESC, id ASC;`
	return s.queryPromotions(ctx, "ListActivePromotions", query, pq.Array(uuidStrings(gameIDs)), asOf.UTC())
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	logger := logging.L()
	logger.Info().Msg("closing database connection pool")
	if err := s.db.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close database connection pool")
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
