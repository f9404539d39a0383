package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"games-catalog-service/internal/domain"
)

// The backend gives no guarantee on scalar representation: a price may come
// back as 49.9 or "49.90", a genre as 3 or "3". Every field is decoded on its
// own and a malformed field is left at its zero value. Only a document whose
// identifier cannot be recovered is dropped.

type searchResponse struct {
	Hits struct {
		Hits []rawHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []rawBucket `json:"buckets"`
	} `json:"aggregations"`
}

type rawHit struct {
	ID     string                     `json:"_id"`
	Score  json.RawMessage            `json:"_score"`
	Source map[string]json.RawMessage `json:"_source"`
}

type rawBucket struct {
	Key      json.RawMessage `json:"key"`
	DocCount json.RawMessage `json:"doc_count"`
}

func decodeResponse(r io.Reader) (*searchResponse, error) {
	var resp searchResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// scalar returns the textual form of a JSON string or number.
func scalar(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func looseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s, ok := scalar(raw)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func looseInt(raw json.RawMessage) (int64, bool) {
	d, ok := looseDecimal(raw)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	return d.IntPart(), true
}

func looseFloat(raw json.RawMessage) (float64, bool) {
	d, ok := looseDecimal(raw)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func looseUUID(raw json.RawMessage) (uuid.UUID, bool) {
	s, ok := scalar(raw)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// toHit converts one raw hit. The document id falls back to the backend _id.
func toHit(h rawHit, scored bool) (domain.SearchHit, bool) {
	id, ok := looseUUID(h.Source["id"])
	if !ok {
		parsed, err := uuid.Parse(h.ID)
		if err != nil || parsed == uuid.Nil {
			return domain.SearchHit{}, false
		}
		id = parsed
	}

	hit := domain.SearchHit{Game: domain.Game{ID: id}}
	if s, ok := scalar(h.Source["title"]); ok {
		hit.Title = s
	}
	if s, ok := scalar(h.Source["description"]); ok {
		hit.Description = s
	}
	if d, ok := looseDecimal(h.Source["price"]); ok {
		hit.Price = domain.NewAmount(d)
	}
	if g, ok := looseInt(h.Source["genre"]); ok {
		hit.Genre = int(g)
	}
	if scored {
		if f, ok := looseFloat(h.Score); ok {
			hit.Score = &f
		}
	}
	return hit, true
}

func (r *searchResponse) hits(scored bool) []domain.SearchHit {
	out := make([]domain.SearchHit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		if hit, ok := toHit(h, scored); ok {
			out = append(out, hit)
		}
	}
	return out
}

func (r *searchResponse) buckets(name string) []domain.HitCount {
	agg, ok := r.Aggregations[name]
	if !ok {
		return []domain.HitCount{}
	}
	out := make([]domain.HitCount, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		id, ok := looseUUID(b.Key)
		if !ok {
			continue
		}
		count, ok := looseInt(b.DocCount)
		if !ok {
			continue
		}
		out = append(out, domain.HitCount{GameID: id, Count: count})
	}
	return out
}
