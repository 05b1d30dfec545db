// Package extract converts raw documents into plain text under the trusted
// namespace.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/docqa/engine/blob"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/fn"
	"github.com/WessleyAI/docqa/pkg/metrics"
)

// Deps holds the collaborators of an Extractor.
type Deps struct {
	Store   blob.Store
	Parsers *Registry         // nil uses DefaultRegistry
	Metrics *metrics.Registry // nil keeps a private registry
	Logger  *slog.Logger
}

// Extractor handles raw/ notifications.
type Extractor struct {
	store   blob.Store
	parsers *Registry
	log     *slog.Logger

	extracted *metrics.Counter
	skipped   *metrics.Counter
	failed    *metrics.Counter
	duration  *metrics.Histogram

	pipeline fn.Stage[domain.Notification, document]
}

// document is the state carried between extraction stages.
type document struct {
	bucket     string
	rawKey     string
	trustedKey string
	raw        []byte
	text       string
}

func New(d Deps) *Extractor {
	if d.Parsers == nil {
		d.Parsers = DefaultRegistry()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	e := &Extractor{
		store:     d.Store,
		parsers:   d.Parsers,
		log:       d.Logger.With("component", "extractor"),
		extracted: d.Metrics.Counter("docqa_extract_documents_total", "Raw documents converted to text."),
		skipped:   d.Metrics.Counter("docqa_extract_skipped_total", "Notifications outside raw/."),
		failed:    d.Metrics.Counter("docqa_extract_failures_total", "Failed extractions."),
		duration:  d.Metrics.Histogram("docqa_extract_duration_seconds", "Extraction latency.", nil),
	}

	fetch := fn.TracedStage("extract.fetch", fn.Lift(e.fetch))
	parse := fn.TracedStage("extract.parse", fn.Lift(e.parse))
	write := fn.TracedStage("extract.write", fn.Lift(e.write))
	e.pipeline = fn.Then(fetch, fn.Then(parse, write))
	return e
}

// Handle extracts the document named by n and writes its text to the derived
// trusted/ key. Keys outside raw/ are ignored. The text is built fully in
// memory before the single write, so a failure never leaves partial output.
func (e *Extractor) Handle(ctx context.Context, n domain.Notification) error {
	if !domain.IsRaw(n.Key) {
		e.skipped.Inc()
		e.log.Info("extract: key outside raw namespace, skipping", "bucket", n.Bucket, "key", n.Key)
		return nil
	}

	start := time.Now()
	defer e.duration.Since(start)

	doc, err := e.pipeline(ctx, n).Unwrap()
	if err != nil {
		e.failed.Inc()
		e.log.Error("extract: failed", "bucket", n.Bucket, "key", n.Key, "error", err)
		return fmt.Errorf("extract %s: %w", n.Key, err)
	}
	e.extracted.Inc()
	e.log.Info("extract: done",
		"bucket", doc.bucket,
		"key", doc.rawKey,
		"trusted_key", doc.trustedKey,
		"bytes_in", len(doc.raw),
		"chars_out", len(doc.text),
		"duration", time.Since(start),
	)
	return nil
}

func (e *Extractor) fetch(ctx context.Context, n domain.Notification) (document, error) {
	trusted, err := domain.TrustedKey(n.Key)
	if err != nil {
		return document{}, err
	}
	data, err := e.store.Get(ctx, n.Bucket, n.Key)
	if err != nil {
		return document{}, fmt.Errorf("fetch: %w", err)
	}
	return document{bucket: n.Bucket, rawKey: n.Key, trustedKey: trusted, raw: data}, nil
}

func (e *Extractor) parse(_ context.Context, doc document) (document, error) {
	p, err := e.parsers.For(doc.rawKey)
	if err != nil {
		return document{}, err
	}
	text, err := p.Parse(doc.raw)
	if err != nil {
		return document{}, fmt.Errorf("parse: %w", err)
	}
	doc.text = text
	return doc, nil
}

func (e *Extractor) write(ctx context.Context, doc document) (document, error) {
	if err := e.store.Put(ctx, doc.bucket, doc.trustedKey, []byte(doc.text), blob.ContentTypeText); err != nil {
		return document{}, fmt.Errorf("write %s: %w", doc.trustedKey, err)
	}
	return doc, nil
}
