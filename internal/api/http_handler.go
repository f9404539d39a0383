package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"games-catalog-service/internal/catalog"
	"games-catalog-service/internal/domain"
	"games-catalog-service/internal/logging"
	"games-catalog-service/internal/store"
)

// Catalog is the set of use cases served over HTTP and gRPC.
type Catalog interface {
	GetGame(ctx context.Context, id uuid.UUID) (*domain.EnrichedGame, error)
	GetGames(ctx context.Context, ids []uuid.UUID) ([]domain.EnrichedGame, error)
	ListGames(ctx context.Context) ([]domain.EnrichedGame, error)
	RandomGame(ctx context.Context) (*domain.EnrichedGame, error)
	Search(ctx context.Context, q catalog.SearchQuery) ([]domain.EnrichedGame, error)
	Suggest(ctx context.Context, genre, size int) ([]domain.EnrichedGame, error)
	TopSearched(ctx context.Context, size int) ([]domain.TopSearchedGame, error)
	CreateGame(ctx context.Context, in catalog.GameInput) (*domain.Game, error)
	UpdateGame(ctx context.Context, id uuid.UUID, in catalog.GameInput) (*domain.Game, error)
	DeleteGame(ctx context.Context, id uuid.UUID) error
	Reindex(ctx context.Context) (*domain.ReindexReport, error)
	CreateGenre(ctx context.Context, id int, name string) (*domain.Genre, error)
	GetGenre(ctx context.Context, id int) (*domain.Genre, error)
	ListGenres(ctx context.Context) ([]domain.Genre, error)
	DeleteGenre(ctx context.Context, id int) error
	CreatePromotion(ctx context.Context, in catalog.PromotionInput) (*domain.Promotion, error)
	GetPromotion(ctx context.Context, id uuid.UUID) (*domain.Promotion, error)
	ListPromotions(ctx context.Context) ([]domain.Promotion, error)
	DeletePromotion(ctx context.Context, id uuid.UUID) error
}

// HealthCheck probes one dependency. A failing critical check makes the
// service unhealthy; a failing non-critical one only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	catalog  Catalog
	checks   []HealthCheck
	validate *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(c Catalog, checks ...HealthCheck) *HTTPHandler {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &HTTPHandler{
		catalog:  c,
		checks:   checks,
		validate: v,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	if payload == nil {
		w.WriteHeader(code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger := logging.L()
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// respondWithServiceError maps the error taxonomy onto status codes. Anything
// unrecognised is logged and answered with a generic 500.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrGameNotFound),
		errors.Is(err, store.ErrGenreNotFound),
		errors.Is(err, store.ErrPromotionNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrGenreExists):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg(action + " failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

func (h *HTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, input interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil || id == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "Invalid "+label+" ID format")
		return uuid.Nil, false
	}
	return id, true
}

// optionalInt parses a query parameter. A missing parameter yields (nil, true).
func optionalInt(w http.ResponseWriter, r *http.Request, name string) (*int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid "+name+" format")
		return nil, false
	}
	return &n, true
}

func sizeParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	size, ok := optionalInt(w, r, "size")
	if !ok {
		return 0, false
	}
	if size == nil {
		return 0, true
	}
	return *size, true
}

// --- Game Handlers ---

func (h *HTTPHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.catalog.ListGames(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve games")
		return
	}
	respondWithJSON(w, http.StatusOK, games)
}

func (h *HTTPHandler) GetGameByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "gameId", "game")
	if !ok {
		return
	}
	game, err := h.catalog.GetGame(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve game")
		return
	}
	respondWithJSON(w, http.StatusOK, game)
}

// GetGamesByIDs expects the id set as a repeated query parameter:
// ?gameIds={uuid}&gameIds={uuid}
func (h *HTTPHandler) GetGamesByIDs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["gameIds"]
	if len(raw) == 0 {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'gameIds' is required (repeatable)")
		return
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid game ID format: "+s)
			return
		}
		ids = append(ids, id)
	}

	games, err := h.catalog.GetGames(r.Context(), ids)
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve games")
		return
	}
	respondWithJSON(w, http.StatusOK, games)
}

func (h *HTTPHandler) RandomGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.catalog.RandomGame(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve random game")
		return
	}
	respondWithJSON(w, http.StatusOK, game)
}

func (h *HTTPHandler) SearchGames(w http.ResponseWriter, r *http.Request) {
	genre, ok := optionalInt(w, r, "genre")
	if !ok {
		return
	}
	size, ok := sizeParam(w, r)
	if !ok {
		return
	}
	results, err := h.catalog.Search(r.Context(), catalog.SearchQuery{
		Text:  r.URL.Query().Get("name"),
		Genre: genre,
		Size:  size,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "search games")
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (h *HTTPHandler) SuggestGames(w http.ResponseWriter, r *http.Request) {
	genre, ok := optionalInt(w, r, "genre")
	if !ok {
		return
	}
	if genre == nil {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'genre' is required")
		return
	}
	size, ok := sizeParam(w, r)
	if !ok {
		return
	}
	results, err := h.catalog.Suggest(r.Context(), *genre, size)
	if err != nil {
		respondWithServiceError(w, r, err, "suggest games")
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (h *HTTPHandler) TopSearched(w http.ResponseWriter, r *http.Request) {
	size, ok := sizeParam(w, r)
	if !ok {
		return
	}
	results, err := h.catalog.TopSearched(r.Context(), size)
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve top searched games")
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

// GameInput defines the expected input for creating or replacing a game.
type GameInput struct {
	Title       string          `json:"title" validate:"required,max=255"`
	Description string          `json:"description" validate:"max=4000"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Genre       int             `json:"genre" validate:"gte=0"`
}

func (in GameInput) toCatalog() catalog.GameInput {
	return catalog.GameInput{Title: in.Title, Description: in.Description, Price: in.Price, Genre: in.Genre}
}

func (h *HTTPHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var input GameInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}
	created, err := h.catalog.CreateGame(r.Context(), input.toCatalog())
	if err != nil {
		respondWithServiceError(w, r, err, "create game")
		return
	}
	w.Header().Set("Location", "/api/v1/games/"+created.ID.String())
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "gameId", "game")
	if !ok {
		return
	}
	var input GameInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}
	updated, err := h.catalog.UpdateGame(r.Context(), id, input.toCatalog())
	if err != nil {
		respondWithServiceError(w, r, err, "update game")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "gameId", "game")
	if !ok {
		return
	}
	if err := h.catalog.DeleteGame(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err, "delete game")
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

func (h *HTTPHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	report, err := h.catalog.Reindex(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "reindex games")
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// --- Genre Handlers ---

// GenreCreateInput defines the expected input for creating a genre.
type GenreCreateInput struct {
	ID   int    `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required,max=100"`
}

func (h *HTTPHandler) CreateGenre(w http.ResponseWriter, r *http.Request) {
	var input GenreCreateInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}
	created, err := h.catalog.CreateGenre(r.Context(), input.ID, input.Name)
	if err != nil {
		respondWithServiceError(w, r, err, "create genre")
		return
	}
	w.Header().Set("Location", "/api/v1/genres/"+strconv.Itoa(created.ID))
	respondWithJSON(w, http.StatusCreated, created)
}

func genreIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "genreId"))
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid genre ID format")
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) GetGenreByID(w http.ResponseWriter, r *http.Request) {
	id, ok := genreIDParam(w, r)
	if !ok {
		return
	}
	genre, err := h.catalog.GetGenre(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve genre")
		return
	}
	respondWithJSON(w, http.StatusOK, genre)
}

func (h *HTTPHandler) ListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.catalog.ListGenres(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve genres")
		return
	}
	respondWithJSON(w, http.StatusOK, genres)
}

func (h *HTTPHandler) DeleteGenre(w http.ResponseWriter, r *http.Request) {
	id, ok := genreIDParam(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteGenre(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err, "delete genre")
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Promotion Handlers ---

// PromotionCreateInput defines the expected input for creating a promotion.
type PromotionCreateInput struct {
	GameID             uuid.UUID       `json:"gameId" validate:"required"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage" validate:"gt=0,lt=100"`
	StartDate          time.Time       `json:"startDate" validate:"required"`
	EndDate            time.Time       `json:"endDate" validate:"required,gtfield=StartDate"`
}

func (h *HTTPHandler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var input PromotionCreateInput
	if !h.decodeAndValidate(w, r, &input) {
		return
	}
	created, err := h.catalog.CreatePromotion(r.Context(), catalog.PromotionInput{
		GameID:             input.GameID,
		DiscountPercentage: input.DiscountPercentage,
		StartDate:          input.StartDate,
		EndDate:            input.EndDate,
	})
	if err != nil {
		// A promotion for a game that does not exist answers 404 like any other
		// missing game.
		respondWithServiceError(w, r, err, "create promotion")
		return
	}
	w.Header().Set("Location", "/api/v1/promotions/"+created.ID.String())
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) GetPromotionByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "promotionId", "promotion")
	if !ok {
		return
	}
	p, err := h.catalog.GetPromotion(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve promotion")
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *HTTPHandler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	promotions, err := h.catalog.ListPromotions(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "retrieve promotions")
		return
	}
	respondWithJSON(w, http.StatusOK, promotions)
}

func (h *HTTPHandler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "promotionId", "promotion")
	if !ok {
		return
	}
	if err := h.catalog.DeletePromotion(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err, "delete promotion")
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Health ---

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health reports "ok", "degraded" (a non-critical dependency is down) or
// "unavailable" with status 503 (a critical one is down).
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			if c.Critical {
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	respondWithJSON(w, code, resp)
}

// RegisterRoutes sets up the routing for all handlers.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/games", func(r chi.Router) {
			r.Get("/", h.ListGames)
			r.Post("/", h.CreateGame)
			// Fixed paths must be registered before the {gameId} route.
			r.Get("/ids", h.GetGamesByIDs)
			r.Get("/random", h.RandomGame)
			r.Get("/search", h.SearchGames)
			r.Get("/suggest", h.SuggestGames)
			r.Get("/top-searched", h.TopSearched)

			r.Route("/{gameId}", func(r chi.Router) {
				r.Get("/", h.GetGameByID)
				r.Put("/", h.UpdateGame)
				r.Delete("/", h.DeleteGame)
			})
		})

		r.Post("/admin/reindex", h.Reindex)

		r.Route("/genres", func(r chi.Router) {
			r.Post("/", h.CreateGenre)
			r.Get("/", h.ListGenres)
			r.Route("/{genreId}", func(r chi.Router) {
				r.Get("/", h.GetGenreByID)
				r.Delete("/", h.DeleteGenre)
			})
		})

		r.Route("/promotions", func(r chi.Router) {
			r.Post("/", h.CreatePromotion)
			r.Get("/", h.ListPromotions)
			r.Route("/{promotionId}", func(r chi.Router) {
				r.Get("/", h.GetPromotionByID)
				r.Delete("/", h.DeletePromotion)
			})
		})
	})
}
