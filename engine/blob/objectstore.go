package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ObjectStore keeps objects in NATS JetStream object store buckets, created
// on first use.
type ObjectStore struct {
	js jetstream.JetStream

	mu      sync.Mutex
	buckets map[string]jetstream.ObjectStore
}

// NewObjectStore binds to the JetStream context of nc.
func NewObjectStore(nc *nats.Conn) (*ObjectStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("blob: jetstream: %w", err)
	}
	return &ObjectStore{js: js, buckets: make(map[string]jetstream.ObjectStore)}, nil
}

func (s *ObjectStore) bucket(ctx context.Context, name string) (jetstream.ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obs, ok := s.buckets[name]; ok {
		return obs, nil
	}
	obs, err := s.js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: name})
	if err != nil {
		return nil, fmt.Errorf("blob: bucket %s: %w", name, err)
	}
	s.buckets[name] = obs
	return obs, nil
}

func (s *ObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obs, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	data, err := obs.GetBytes(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, fmt.Errorf("blob: get %s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: get %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *ObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	obs, err := s.bucket(ctx, bucket)
	if err != nil {
		return err
	}
	meta := jetstream.ObjectMeta{Name: key}
	if contentType != "" {
		meta.Headers = nats.Header{}
		meta.Headers.Set("Content-Type", contentType)
	}
	if _, err := obs.Put(ctx, meta, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("blob: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Watch reports objects put after the watch started. Deletions are skipped.
func (s *ObjectStore) Watch(ctx context.Context, bucket string, fn func(domain.Notification)) error {
	obs, err := s.bucket(ctx, bucket)
	if err != nil {
		return err
	}
	w, err := obs.Watch(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return fmt.Errorf("blob: watch %s: %w", bucket, err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-w.Updates():
			if !ok {
				return nil
			}
			if info == nil || info.Deleted {
				continue
			}
			fn(created(bucket, info.Name))
		}
	}
}
