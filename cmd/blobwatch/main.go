// Command blobwatch publishes an object-created notification on the storage
// subject for every object written to the bucket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/WessleyAI/docqa/cmd/internal/wire"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// maxInline bounds the text carried inside a notification.
const maxInline = 64 << 10

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.NATS.URL, "nats", cfg.NATS.URL, "NATS server URL")
	flag.StringVar(&cfg.Storage.Bucket, "bucket", cfg.Storage.Bucket, "bucket to watch")
	flag.IntVar(&cfg.Metrics.Port, "metrics-port", cfg.Metrics.Port, "metrics port (0 disables)")
	flag.Parse()

	log, flush := wire.Logger(cfg, "blobwatch")
	defer flush()

	if err := run(cfg, log); err != nil {
		log.Error("blobwatch exited with error", "err", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := wire.ConnectNATS(cfg, "docqa-blobwatch", log)
	if err != nil {
		return err
	}
	defer nc.Drain()

	store, err := wire.Blob(cfg, nc, log)
	if err != nil {
		return err
	}

	met := metrics.New()
	met.ServeAsync(ctx, cfg.Metrics.Port, log)

	log.Info("watching bucket", "bucket", cfg.Storage.Bucket, "storage", cfg.Storage.Backend, "subject", cfg.NATS.Subject)
	return store.Watch(ctx, cfg.Storage.Bucket, bridge(ctx, nc, store, cfg, met, log))
}

// bridge publishes each notification. With inline payloads enabled, small
// trusted texts travel inside the notification.
func bridge(ctx context.Context, nc *nats.Conn, store wire.Storage, cfg *config.Config, met *metrics.Registry, log *slog.Logger) func(domain.Notification) {
	published := met.Counter("docqa_blobwatch_published_total", "Notifications published.")
	failed := met.Counter("docqa_blobwatch_publish_failures_total", "Notifications that could not be published.")
	return func(n domain.Notification) {
		if cfg.Index.AcceptInline && domain.IsTrusted(n.Key) {
			if data, err := store.Get(ctx, n.Bucket, n.Key); err == nil && len(data) <= maxInline {
				n.Text = string(data)
			}
		}
		if err := natsutil.Publish(ctx, nc, cfg.NATS.Subject, n); err != nil {
			failed.Inc()
			log.Error("publish notification failed", "key", n.Key, "error", err)
			return
		}
		published.Inc()
		log.Debug("notification published", "key", n.Key)
	}
}
