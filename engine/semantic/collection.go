// Package semantic stores index records and answers nearest-neighbour
// queries over their vectors.
package semantic

import (
	"context"

	"github.com/WessleyAI/docqa/engine/domain"
)

// Collection is an append-only vector collection. Records are never updated
// in place; each Append adds a new record with a collection-assigned id.
type Collection interface {
	Append(ctx context.Context, rec domain.IndexRecord) error
	// Query returns up to k hits ordered by descending similarity.
	Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
	// Dimension returns the vector dimension the collection is bound to, or
	// 0 when it is not yet known.
	Dimension(ctx context.Context) (int, error)
}
