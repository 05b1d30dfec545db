// Command indexer embeds trusted text announced on the storage subject and
// appends it to the vector collection.
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
	"github.com/WessleyAI/docqa/engine/index"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/fn"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/natsutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.NATS.URL, "nats", cfg.NATS.URL, "NATS server URL")
	flag.IntVar(&cfg.NATS.Workers, "workers", cfg.NATS.Workers, "concurrent documents")
	flag.IntVar(&cfg.Vector.Dimension, "dims", cfg.Vector.Dimension, "provision the collection with this dimension (0 skips)")
	flag.IntVar(&cfg.Metrics.Port, "metrics-port", cfg.Metrics.Port, "metrics port (0 disables)")
	flag.Parse()

	log, flush := wire.Logger(cfg, "indexer")
	defer flush()

	if err := run(cfg, log); err != nil {
		log.Error("indexer exited with error", "err", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := wire.ConnectNATS(cfg, "docqa-indexer", log)
	if err != nil {
		return err
	}
	defer nc.Drain()

	store, err := wire.Blob(cfg, nc, log)
	if err != nil {
		return err
	}
	coll, closeColl, err := wire.Collection(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeColl()

	met := metrics.New()
	met.ServeAsync(ctx, cfg.Metrics.Port, log)

	emb, _, err := wire.Models(cfg, met, log)
	if err != nil {
		return err
	}
	ix := index.New(index.Deps{
		Store:      store,
		Embedder:   emb,
		Collection: coll,
		Metrics:    met,
		Logger:     log,
	}, index.Options{
		MaxEmbedChars: cfg.Index.MaxEmbedChars,
		AcceptInline:  cfg.Index.AcceptInline,
		ReadRetry: fn.RetryOpts{
			MaxAttempts: cfg.Index.ReadAttempts,
			InitialWait: cfg.Index.ReadInitialWait,
			MaxWait:     index.DefaultReadRetry.MaxWait,
			Jitter:      true,
		},
	})

	pool, err := wire.Pool(cfg, log)
	if err != nil {
		return err
	}
	defer pool.Release()

	sub, err := natsutil.Consume(nc, wire.ConsumerOpts(cfg, "indexer", pool, log), wire.NotificationHandler(ix.Handle))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.NATS.Subject, err)
	}
	log.Info("indexer started",
		"subject", cfg.NATS.Subject,
		"workers", cfg.NATS.Workers,
		"vector", cfg.Vector.Backend,
		"collection", cfg.Vector.Collection,
	)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return sub.Drain()
}
