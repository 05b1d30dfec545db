package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/WessleyAI/docqa/engine/domain"
)

// MemCollection is an in-process Collection using brute-force cosine
// similarity. The first Append fixes the dimension unless one was given.
type MemCollection struct {
	mu      sync.RWMutex
	dim     int
	records []domain.IndexRecord
}

var _ Collection = (*MemCollection)(nil)

// NewMemCollection creates a collection bound to dim; 0 leaves it unbound.
func NewMemCollection(dim int) *MemCollection {
	return &MemCollection{dim: dim}
}

func (m *MemCollection) Dimension(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim, nil
}

func (m *MemCollection) Append(_ context.Context, rec domain.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := domain.CheckDimension(m.dim, rec.Vector); err != nil {
		return fmt.Errorf("semantic: append %s: %w", rec.SourceFile, err)
	}
	if m.dim == 0 {
		m.dim = len(rec.Vector)
	}
	rec.Vector = append([]float32(nil), rec.Vector...)
	m.records = append(m.records, rec)
	return nil
}

// Len returns the number of stored records.
func (m *MemCollection) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Records returns a copy of all stored records in insertion order.
func (m *MemCollection) Records() []domain.IndexRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.IndexRecord(nil), m.records...)
}

func (m *MemCollection) Query(_ context.Context, vector []float32, k int) ([]domain.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.records) == 0 {
		return []domain.Hit{}, nil
	}
	if err := domain.CheckDimension(m.dim, vector); err != nil {
		return nil, fmt.Errorf("semantic: query: %w", err)
	}

	hits := make([]domain.Hit, len(m.records))
	for i, r := range m.records {
		hits[i] = domain.Hit{Record: r, Score: cosine(vector, r.Vector)}
	}
	// Stable so equal scores keep insertion order.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
