// Package memory is an in-process vector index using brute-force cosine
// similarity. Intended for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/PabloGalante/stacks/internal/domain"
)

type Index struct {
	mu      sync.RWMutex
	records map[string]domain.VectorRecord
}

var _ domain.VectorIndex = (*Index)(nil)

func NewIndex() *Index {
	return &Index{records: make(map[string]domain.VectorRecord)}
}

func (ix *Index) Upsert(ctx context.Context, rec domain.VectorRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("%w: vector record needs id and user id", domain.ErrInvalidInput)
	}

	rec.Embedding = append([]float32(nil), rec.Embedding...)
	rec.Metadata = maps.Clone(rec.Metadata)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records[rec.ID] = rec
	return nil
}

func (ix *Index) Search(ctx context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	if q.UserID == "" {
		return nil, fmt.Errorf("%w: vector query needs a user id", domain.ErrInvalidInput)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	ix.mu.RLock()
	var out []domain.VectorMatch
	for _, rec := range ix.records {
		if rec.UserID != q.UserID || !matches(rec.Metadata, q.Filter) {
			continue
		}
		if len(rec.Embedding) != len(q.Embedding) {
			continue
		}
		out = append(out, domain.VectorMatch{
			ID:          rec.ID,
			SessionID:   rec.SessionID,
			TextPreview: rec.TextPreview,
			Metadata:    maps.Clone(rec.Metadata),
			CreatedAt:   rec.CreatedAt,
			Score:       Cosine(q.Embedding, rec.Embedding),
		})
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many records are stored.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

func matches(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, am, bm float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		am += float64(a[i]) * float64(a[i])
		bm += float64(b[i]) * float64(b[i])
	}
	if am == 0 || bm == 0 {
		return 0
	}
	return dot / (math.Sqrt(am) * math.Sqrt(bm))
}
