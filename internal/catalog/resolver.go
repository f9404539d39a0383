package catalog

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"games-catalog-service/internal/domain"
)

// ActivePromotionLister is the single query the resolver needs from the store.
type ActivePromotionLister interface {
	ListActivePromotions(ctx context.Context, gameIDs []uuid.UUID, asOf time.Time) ([]domain.Promotion, error)
}

// PromotionResolver picks at most one active promotion per game.
type PromotionResolver struct {
	store ActivePromotionLister
}

func NewPromotionResolver(store ActivePromotionLister) *PromotionResolver {
	return &PromotionResolver{store: store}
}

// ResolveActive returns, for each id with an active promotion at asOf, the
// promotion with the highest discount. Equal discounts go to the lowest
// promotion id. Every id is judged against the same asOf instant. An empty id
// set returns an empty map without touching the store.
func (r *PromotionResolver) ResolveActive(ctx context.Context, ids []uuid.UUID, asOf time.Time) (map[uuid.UUID]domain.Promotion, error) {
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, seen := wanted[id]; seen {
			continue
		}
		wanted[id] = struct{}{}
		unique = append(unique, id)
	}

	resolved := make(map[uuid.UUID]domain.Promotion)
	if len(unique) == 0 {
		return resolved, nil
	}

	promotions, err := r.store.ListActivePromotions(ctx, unique, asOf)
	if err != nil {
		var dErr *domain.DataAccessError
		if errors.As(err, &dErr) {
			return nil, err
		}
		return nil, &domain.DataAccessError{Op: "resolve active promotions", Err: err}
	}

	for _, p := range promotions {
		if _, ok := wanted[p.GameID]; !ok || !p.IsActiveAt(asOf) {
			continue
		}
		current, ok := resolved[p.GameID]
		if !ok || outranks(p, current) {
			resolved[p.GameID] = p
		}
	}
	return resolved, nil
}

func outranks(a, b domain.Promotion) bool {
	switch a.DiscountPercentage.Cmp(b.DiscountPercentage.Decimal) {
	case 1:
		return true
	case -1:
		return false
	default:
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	}
}
