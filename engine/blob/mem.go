package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/WessleyAI/docqa/engine/domain"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemStore keeps objects in memory and notifies watchers synchronously on Put.
type MemStore struct {
	mu       sync.RWMutex
	objects  map[string]memObject
	watchers map[string][]func(domain.Notification)
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects:  make(map[string]memObject),
		watchers: make(map[string][]func(domain.Notification)),
	}
}

func memKey(bucket, key string) string { return bucket + "\x00" + key }

func (s *MemStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("blob: get %s/%s: %w", bucket, key, ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemStore) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	s.mu.Lock()
	s.objects[memKey(bucket, key)] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	fns := append([]func(domain.Notification){}, s.watchers[bucket]...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(created(bucket, key))
	}
	return nil
}

// ContentType returns the content type an object was stored with.
func (s *MemStore) ContentType(bucket, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[memKey(bucket, key)]
	return obj.contentType, ok
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Watch registers fn and blocks until ctx is done.
func (s *MemStore) Watch(ctx context.Context, bucket string, fn func(domain.Notification)) error {
	s.Subscribe(bucket, fn)
	<-ctx.Done()
	return nil
}

// Subscribe registers fn without blocking. Callbacks run on the Put caller's
// goroutine.
func (s *MemStore) Subscribe(bucket string, fn func(domain.Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[bucket] = append(s.watchers[bucket], fn)
}
