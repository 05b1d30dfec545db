// Package index embeds extracted text and appends it to the vector
// collection.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/docqa/engine/blob"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/semantic"
	"github.com/WessleyAI/docqa/pkg/fn"
	"github.com/WessleyAI/docqa/pkg/metrics"
)

// DefaultMaxEmbedChars bounds the text handed to the embedding model.
const DefaultMaxEmbedChars = 8000

// Options tune an Indexer. Zero values take the defaults.
type Options struct {
	MaxEmbedChars int
	// ReadRetry drives re-reads of a trusted blob that is announced but not
	// yet visible. Only ErrNotFound is retried.
	ReadRetry fn.RetryOpts
	// AcceptInline uses Notification.Text when present instead of reading
	// the blob back.
	AcceptInline bool
}

// DefaultReadRetry waits roughly 0.5+1+2+4s over five attempts.
var DefaultReadRetry = fn.RetryOpts{
	MaxAttempts: 5,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Jitter:      true,
}

// Deps holds the collaborators of an Indexer.
type Deps struct {
	Store      blob.Store
	Embedder   domain.Embedder
	Collection semantic.Collection
	Metrics    *metrics.Registry
	Logger     *slog.Logger
	Now        func() time.Time
}

// Indexer handles trusted/ notifications.
type Indexer struct {
	store blob.Store
	emb   domain.Embedder
	coll  semantic.Collection
	opts  Options
	log   *slog.Logger
	now   func() time.Time

	indexed   *metrics.Counter
	skipped   *metrics.Counter
	failed    *metrics.Counter
	readRetry *metrics.Counter
	embedTime *metrics.Histogram

	pipeline fn.Stage[domain.Notification, domain.IndexRecord]
}

// pending is a trusted text on its way into the collection.
type pending struct {
	key    string
	text   string
	vector []float32
}

var errSkip = errors.New("skip")

func New(d Deps, opts Options) *Indexer {
	if opts.MaxEmbedChars <= 0 {
		opts.MaxEmbedChars = DefaultMaxEmbedChars
	}
	if opts.ReadRetry.MaxAttempts <= 0 {
		opts.ReadRetry = DefaultReadRetry
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	ix := &Indexer{
		store:     d.Store,
		emb:       d.Embedder,
		coll:      d.Collection,
		opts:      opts,
		log:       d.Logger.With("component", "indexer"),
		now:       d.Now,
		indexed:   d.Metrics.Counter("docqa_index_records_total", "Records appended to the collection."),
		skipped:   d.Metrics.Counter("docqa_index_skipped_total", "Notifications skipped (outside trusted/ or empty text)."),
		failed:    d.Metrics.Counter("docqa_index_failures_total", "Failed indexing attempts."),
		readRetry: d.Metrics.Counter("docqa_index_read_retries_total", "Re-reads of not-yet-visible trusted text."),
		embedTime: d.Metrics.Histogram("docqa_embed_duration_seconds", "Embedding latency.", nil),
	}

	read := fn.TracedStage("index.read", fn.Lift(ix.read))
	embed := fn.TracedStage("index.embed", fn.Lift(ix.embed))
	store := fn.TracedStage("index.store", fn.Lift(ix.append))
	ix.pipeline = fn.Then(read, fn.Then(embed, store))
	return ix
}

// Handle indexes the trusted text named by n. Keys outside trusted/ and empty
// texts are skipped without error. Exactly one record is appended on success.
func (ix *Indexer) Handle(ctx context.Context, n domain.Notification) error {
	if !domain.IsTrusted(n.Key) {
		ix.skipped.Inc()
		ix.log.Info("index: key outside trusted namespace, skipping", "bucket", n.Bucket, "key", n.Key)
		return nil
	}

	rec, err := ix.pipeline(ctx, n).Unwrap()
	switch {
	case errors.Is(err, errSkip):
		ix.skipped.Inc()
		ix.log.Warn("index: empty text, skipping", "bucket", n.Bucket, "key", n.Key)
		return nil
	case err != nil:
		ix.failed.Inc()
		ix.log.Error("index: failed", "bucket", n.Bucket, "key", n.Key, "error", err)
		return fmt.Errorf("index %s: %w", n.Key, err)
	}
	ix.indexed.Inc()
	ix.log.Info("index: done", "key", rec.SourceFile, "chars", len(rec.Text), "dims", len(rec.Vector))
	return nil
}

func (ix *Indexer) read(ctx context.Context, n domain.Notification) (pending, error) {
	text := n.Text
	if !ix.opts.AcceptInline || text == "" {
		retry := ix.opts.ReadRetry
		retry.Retryable = func(err error) bool { return errors.Is(err, blob.ErrNotFound) }
		retry.OnRetry = func(attempt int, err error) {
			ix.readRetry.Inc()
			ix.log.Warn("index: trusted text not visible yet, retrying", "key", n.Key, "attempt", attempt)
		}
		data, err := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[[]byte] {
			return fn.FromPair(ix.store.Get(ctx, n.Bucket, n.Key))
		}).Unwrap()
		if err != nil {
			return pending{}, fmt.Errorf("read: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return pending{}, errSkip
	}
	return pending{key: n.Key, text: text}, nil
}

func (ix *Indexer) embed(ctx context.Context, p pending) (pending, error) {
	start := time.Now()
	vec, err := ix.emb.Embed(ctx, embedPrefix(p.text, ix.opts.MaxEmbedChars))
	ix.embedTime.Since(start)
	if err != nil {
		return pending{}, fmt.Errorf("embed: %w", err)
	}
	want, err := ix.coll.Dimension(ctx)
	if err != nil {
		return pending{}, fmt.Errorf("collection dimension: %w", err)
	}
	if err := domain.CheckDimension(want, vec); err != nil {
		return pending{}, err
	}
	p.vector = vec
	return p, nil
}

func (ix *Indexer) append(ctx context.Context, p pending) (domain.IndexRecord, error) {
	rec := domain.IndexRecord{
		Text:        p.text,
		Vector:      p.vector,
		SourceFile:  p.key,
		TimestampMs: ix.now().UnixMilli(),
	}
	if err := ix.coll.Append(ctx, rec); err != nil {
		return domain.IndexRecord{}, fmt.Errorf("append: %w", err)
	}
	return rec, nil
}
