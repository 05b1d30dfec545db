// Package blob is the object storage the pipeline reads from and writes to,
// together with the change notifications that drive it.
package blob

import (
	"context"

	"github.com/WessleyAI/docqa/engine/domain"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = domain.ErrNotFound

// ContentTypeText is the content type of extracted text.
const ContentTypeText = "text/plain"

// Store reads and writes whole objects.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Watcher reports object-created events for a bucket until ctx is done.
// Watch blocks; it returns nil when ctx is cancelled.
type Watcher interface {
	Watch(ctx context.Context, bucket string, fn func(domain.Notification)) error
}

func created(bucket, key string) domain.Notification {
	return domain.Notification{Bucket: bucket, Key: key, EventType: domain.EventObjectCreated}
}
