package session

import (
	"context"
	"sync"

	"github.com/WessleyAI/docqa/engine/domain"
)

// MemStore is an in-process Store. Conversations never expire.
type MemStore struct {
	mu    sync.Mutex
	turns map[string][]domain.Turn
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{turns: make(map[string][]domain.Turn)}
}

func (m *MemStore) History(_ context.Context, id string, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tail(m.turns[id], limit), nil
}

func (m *MemStore) Append(_ context.Context, id string, t domain.Turn) error {
	m.mu.Lock()
	m.turns[id] = append(m.turns[id], t)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.turns, id)
	m.mu.Unlock()
	return nil
}
