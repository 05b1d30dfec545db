package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/WessleyAI/docqa/cmd/internal/wire"
	"github.com/WessleyAI/docqa/engine/blob"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/rag"
	"github.com/WessleyAI/docqa/engine/semantic"
	"github.com/WessleyAI/docqa/pkg/applog"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// app builds dependencies on first use so each command only dials what it
// needs. Fields that are already set are used as is.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	flush func()

	nc    *nats.Conn
	store blob.Store
	emb   domain.Embedder
	gen   domain.Generator
	coll  semantic.Collection
	met   *metrics.Registry

	closers []func() error
}

func (a *app) load(configPath, level string) error {
	if a.cfg == nil {
		if configPath != "" {
			os.Setenv(config.FileEnv, configPath)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if level != "" {
		a.cfg.Log.Level = level
	}
	if a.log == nil {
		a.log, a.flush = applog.Init(applog.Config{Level: a.cfg.Log.Level, Format: "text", Output: os.Stderr}, "ragctl")
	}
	if a.met == nil {
		a.met = metrics.New()
	}
	return nil
}

func (a *app) conn() (*nats.Conn, error) {
	if a.nc != nil {
		return a.nc, nil
	}
	nc, err := wire.ConnectNATS(a.cfg, "docqa-ragctl", a.log)
	if err != nil {
		return nil, err
	}
	a.nc = nc
	a.closers = append(a.closers, func() error { nc.Close(); return nil })
	return nc, nil
}

func (a *app) blobStore() (blob.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	var nc *nats.Conn
	if a.cfg.Storage.Backend == "objectstore" {
		c, err := a.conn()
		if err != nil {
			return nil, err
		}
		nc = c
	}
	s, err := wire.Blob(a.cfg, nc, a.log)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// announce publishes n on the storage subject and waits for the server to
// acknowledge it.
func (a *app) announce(ctx context.Context, n domain.Notification) error {
	nc, err := a.conn()
	if err != nil {
		return err
	}
	if err := natsutil.Publish(ctx, nc, a.cfg.NATS.Subject, n); err != nil {
		return fmt.Errorf("publish %s: %w", n.Key, err)
	}
	return nc.FlushWithContext(ctx)
}

func (a *app) models() (domain.Embedder, domain.Generator, error) {
	if a.emb != nil && a.gen != nil {
		return a.emb, a.gen, nil
	}
	emb, gen, err := wire.Models(a.cfg, a.met, a.log)
	if err != nil {
		return nil, nil, err
	}
	a.emb, a.gen = emb, gen
	return emb, gen, nil
}

func (a *app) collection(ctx context.Context) (semantic.Collection, error) {
	if a.coll != nil {
		return a.coll, nil
	}
	coll, closeFn, err := wire.Collection(ctx, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)
	a.coll = coll
	return coll, nil
}

func (a *app) service(ctx context.Context) (*rag.Service, error) {
	emb, gen, err := a.models()
	if err != nil {
		return nil, err
	}
	coll, err := a.collection(ctx)
	if err != nil {
		return nil, err
	}
	sessions, closeSessions, err := wire.Sessions(ctx, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSessions)

	opts := rag.DefaultOptions()
	opts.TopK = a.cfg.RAG.TopK
	opts.ContextChars = a.cfg.RAG.ContextChars
	opts.HistoryTurns = a.cfg.RAG.HistoryTurns
	opts.MaxTokens = a.cfg.RAG.MaxTokens
	opts.Temperature = a.cfg.RAG.Temperature
	opts.GenerateTimeout = a.cfg.RAG.GenerateTimeout
	opts.CondenseQuestion = a.cfg.RAG.CondenseQuestion
	return rag.New(rag.Deps{
		Embedder:   emb,
		Generator:  gen,
		Collection: coll,
		Sessions:   sessions,
		Metrics:    a.met,
		Logger:     a.log,
	}, opts), nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	if a.flush != nil {
		a.flush()
		a.flush = nil
	}
}
