package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Genre is a catalog genre. Games reference it by ID; the reference is not
// cross-validated, so an unknown genre code passes through untouched.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Game is a catalog item as stored in the source-of-truth database.
type Game struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       Amount    `json:"price"`
	Genre       int       `json:"genre"`
}

// Promotion is a time-windowed percentage discount on a single game.
type Promotion struct {
	ID                 uuid.UUID `json:"id"`
	GameID             uuid.UUID `json:"gameId"`
	DiscountPercentage Amount    `json:"discountPercentage"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
}

var hundred = decimal.NewFromInt(100)

// NewPromotion validates the discount and window and returns a promotion with a
// fresh identifier. Both instants are normalised to UTC.
func NewPromotion(gameID uuid.UUID, discount decimal.Decimal, start, end time.Time) (*Promotion, error) {
	if gameID == uuid.Nil {
		return nil, NewValidationError("gameId", "is required")
	}
	if !discount.IsPositive() || discount.GreaterThanOrEqual(hundred) {
		return nil, NewValidationError("discountPercentage", "must be greater than 0 and less than 100")
	}
	if start.IsZero() || end.IsZero() {
		return nil, NewValidationError("startDate", "start and end dates are required")
	}
	if !end.After(start) {
		return nil, NewValidationError("endDate", "must be after startDate")
	}
	return &Promotion{
		ID:                 uuid.New(),
		GameID:             gameID,
		DiscountPercentage: NewAmount(discount),
		StartDate:          start.UTC(),
		EndDate:            end.UTC(),
	}, nil
}

// IsActiveAt reports whether t falls inside [StartDate, EndDate], inclusive on both ends.
func (p Promotion) IsActiveAt(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// NewGenre validates and normalises a genre.
func NewGenre(id int, name string) (*Genre, error) {
	if id <= 0 {
		return nil, NewValidationError("id", "must be a positive integer")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("name", "is required")
	}
	return &Genre{ID: id, Name: name}, nil
}

// SearchHit is a game located through the search index. Score is nil for
// unranked (filter-only or random) retrievals and for plain catalog rows.
type SearchHit struct {
	Game
	Score *float64
}

// HitsFromGames lifts catalog rows into unscored hits so direct lookups and
// searches share one enrichment path.
func HitsFromGames(games []Game) []SearchHit {
	hits := make([]SearchHit, len(games))
	for i, g := range games {
		hits[i] = SearchHit{Game: g}
	}
	return hits
}

// PromotionView is the promotion projection attached to an enriched game.
type PromotionView struct {
	ID                 uuid.UUID `json:"id"`
	DiscountPercentage Amount    `json:"discountPercentage"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	IsActive           bool      `json:"isActive"`
	DiscountedPrice    Amount    `json:"discountedPrice"`
}

// EnrichedGame is the uniform result shape for lookups, scans and searches.
type EnrichedGame struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Price       Amount         `json:"price"`
	Genre       int            `json:"genre"`
	Promotion   *PromotionView `json:"promotion,omitempty"`
	Score       *float64       `json:"score,omitempty"`
}

// HitCount is one bucket of the search-hit aggregation.
type HitCount struct {
	GameID uuid.UUID `json:"gameId"`
	Count  int64     `json:"count"`
}

// TopSearchedGame is an enriched game together with its recorded hit count.
type TopSearchedGame struct {
	EnrichedGame
	Hits int64 `json:"hits"`
}

// ReindexReport summarises a full rebuild of the games index.
type ReindexReport struct {
	Reindexed int `json:"reindexed"`
	Total     int `json:"total"`
}

// NewGame validates catalog input. The genre code is not cross-checked.
func NewGame(id uuid.UUID, title, description string, price decimal.Decimal, genre int) (*Game, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewValidationError("title", "is required")
	}
	if price.IsNegative() {
		return nil, NewValidationError("price", "must not be negative")
	}
	return &Game{
		ID:          id,
		Title:       title,
		Description: strings.TrimSpace(description),
		Price:       NewAmount(price.Round(2)),
		Genre:       genre,
	}, nil
}
