// Package main implements the docqa question API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/docqa/cmd/internal/wire"
	"github.com/WessleyAI/docqa/engine/rag"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/mid"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.HTTP.Addr, "addr", cfg.HTTP.Addr, "listen address")
	flag.IntVar(&cfg.RAG.TopK, "k", cfg.RAG.TopK, "records retrieved per question")
	flag.IntVar(&cfg.Metrics.Port, "metrics-port", cfg.Metrics.Port, "metrics port (0 disables)")
	flag.Parse()

	log, flush := wire.Logger(cfg, "api")
	defer flush()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coll, closeColl, err := wire.Collection(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeColl()

	sessions, closeSessions, err := wire.Sessions(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	met := metrics.New()
	met.ServeAsync(ctx, cfg.Metrics.Port, log)

	emb, gen, err := wire.Models(cfg, met, log)
	if err != nil {
		return err
	}

	svc := rag.New(rag.Deps{
		Embedder:   emb,
		Generator:  gen,
		Collection: coll,
		Sessions:   sessions,
		Metrics:    met,
		Logger:     log,
	}, ragOptions(cfg))

	srv := newServer(cfg, svc, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", srv.Addr, "k", cfg.RAG.TopK, "vector", cfg.Vector.Backend, "sessions", cfg.Session.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func ragOptions(cfg *config.Config) rag.Options {
	opts := rag.DefaultOptions()
	opts.TopK = cfg.RAG.TopK
	opts.ContextChars = cfg.RAG.ContextChars
	opts.HistoryTurns = cfg.RAG.HistoryTurns
	opts.MaxTokens = cfg.RAG.MaxTokens
	opts.Temperature = cfg.RAG.Temperature
	opts.GenerateTimeout = cfg.RAG.GenerateTimeout
	opts.CondenseQuestion = cfg.RAG.CondenseQuestion
	return opts
}

// newServer wraps the question API in the standard middleware chain. The
// write timeout leaves room for the generation deadline.
func newServer(cfg *config.Config, svc rag.Asker, log *slog.Logger) *http.Server {
	if log == nil {
		log = slog.Default()
	}
	handler := rag.NewHandler(svc, log,
		middleware.RequestID,
		mid.Recover(log),
		mid.Logger(log),
		mid.CORS(cfg.HTTP.CORSOrigin),
		mid.OTel("docqa-api"),
	)
	return &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RAG.GenerateTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
