// Package session keeps per-conversation question/answer history for the
// retrieval service.
package session

import (
	"context"

	"github.com/WessleyAI/docqa/engine/domain"
)

// Store persists conversation turns keyed by session id.
type Store interface {
	// History returns the most recent limit turns, oldest first. A
	// non-positive limit returns the full history. Unknown ids return an
	// empty slice.
	History(ctx context.Context, id string, limit int) ([]domain.Turn, error)
	// Append adds one turn to the end of the conversation.
	Append(ctx context.Context, id string, t domain.Turn) error
	// Clear drops the conversation.
	Clear(ctx context.Context, id string) error
}

func tail(turns []domain.Turn, limit int) []domain.Turn {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}
