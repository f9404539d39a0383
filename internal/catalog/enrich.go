package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"games-catalog-service/internal/domain"
)

// Resolver resolves the active promotion of a batch of games.
type Resolver interface {
	ResolveActive(ctx context.Context, ids []uuid.UUID, asOf time.Time) (map[uuid.UUID]domain.Promotion, error)
}

// BatchObserver is told the size of every resolved batch.
type BatchObserver interface {
	EnrichmentBatch(size int)
}

// Pipeline merges games or search hits with their active promotion.
type Pipeline struct {
	resolver Resolver
	observer BatchObserver
}

// NewPipeline builds a pipeline. observer may be nil.
func NewPipeline(resolver Resolver, observer BatchObserver) *Pipeline {
	return &Pipeline{resolver: resolver, observer: observer}
}

// Enrich resolves promotions for all hits with a single resolver call and
// returns one result per hit in input order. Scores are carried through.
func (p *Pipeline) Enrich(ctx context.Context, hits []domain.SearchHit, asOf time.Time) ([]domain.EnrichedGame, error) {
	out := make([]domain.EnrichedGame, 0, len(hits))
	if len(hits) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	promotions, err := p.resolver.ResolveActive(ctx, ids, asOf)
	if err != nil {
		return nil, err
	}
	if p.observer != nil {
		p.observer.EnrichmentBatch(len(ids))
	}

	for _, h := range hits {
		eg := domain.EnrichedGame{
			ID:          h.ID,
			Title:       h.Title,
			Description: h.Description,
			Price:       h.Price,
			Genre:       h.Genre,
			Score:       h.Score,
		}
		if promo, ok := promotions[h.ID]; ok {
			eg.Promotion = &domain.PromotionView{
				ID:                 promo.ID,
				DiscountPercentage: promo.DiscountPercentage,
				StartDate:          promo.StartDate,
				EndDate:            promo.EndDate,
				IsActive:           promo.IsActiveAt(asOf),
				DiscountedPrice:    domain.DiscountedPrice(h.Price, promo.DiscountPercentage),
			}
		}
		out = append(out, eg)
	}
	return out, nil
}

// EnrichGames enriches plain catalog rows; results carry no score.
func (p *Pipeline) EnrichGames(ctx context.Context, games []domain.Game, asOf time.Time) ([]domain.EnrichedGame, error) {
	return p.Enrich(ctx, domain.HitsFromGames(games), asOf)
}
