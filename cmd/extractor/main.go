// Command extractor converts raw documents announced on the storage subject
// into plain text under trusted/.
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
	"github.com/WessleyAI/docqa/engine/extract"
	"github.com/WessleyAI/docqa/pkg/config"
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
	flag.IntVar(&cfg.Metrics.Port, "metrics-port", cfg.Metrics.Port, "metrics port (0 disables)")
	flag.Parse()

	log, flush := wire.Logger(cfg, "extractor")
	defer flush()

	if err := run(cfg, log); err != nil {
		log.Error("extractor exited with error", "err", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := wire.ConnectNATS(cfg, "docqa-extractor", log)
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

	ex := extract.New(extract.Deps{Store: store, Metrics: met, Logger: log})

	pool, err := wire.Pool(cfg, log)
	if err != nil {
		return err
	}
	defer pool.Release()

	sub, err := natsutil.Consume(nc, wire.ConsumerOpts(cfg, "extractor", pool, log), wire.NotificationHandler(ex.Handle))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.NATS.Subject, err)
	}
	log.Info("extractor started", "subject", cfg.NATS.Subject, "workers", cfg.NATS.Workers, "storage", cfg.Storage.Backend)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return sub.Drain()
}
