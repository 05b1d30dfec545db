// Package wire builds the process dependencies of the docqa binaries from
// configuration.
package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/WessleyAI/docqa/engine/blob"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/semantic"
	"github.com/WessleyAI/docqa/engine/session"
	"github.com/WessleyAI/docqa/pkg/applog"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/lc"
	"github.com/WessleyAI/docqa/pkg/metrics"
	"github.com/WessleyAI/docqa/pkg/natsutil"
	"github.com/WessleyAI/docqa/pkg/ollama"
	"github.com/WessleyAI/docqa/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
)

// Logger installs the process logger for service.
func Logger(cfg *config.Config, service string) (*slog.Logger, func()) {
	return applog.Init(applog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout}, service)
}

// ConnectNATS dials the configured server and keeps reconnecting forever.
func ConnectNATS(cfg *config.Config, name string, log *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.NATS.URL, err)
	}
	return nc, nil
}

// Storage is a blob store that can also report new objects.
type Storage interface {
	blob.Store
	blob.Watcher
}

// Blob opens the configured blob backend. The objectstore backend needs nc.
func Blob(cfg *config.Config, nc *nats.Conn, log *slog.Logger) (Storage, error) {
	switch cfg.Storage.Backend {
	case "objectstore":
		if nc == nil {
			return nil, errors.New("objectstore backend needs a nats connection")
		}
		return blob.NewObjectStore(nc)
	case "file":
		fs := blob.NewFileStore(cfg.Storage.Dir)
		fs.Logger = log
		return fs, nil
	case "memory":
		log.Warn("memory blob store is process-local; use it for single-process runs only")
		return blob.NewMemStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// Collection opens the configured vector backend. When a dimension is
// configured the collection is provisioned with it. The returned close
// function is never nil.
func Collection(ctx context.Context, cfg *config.Config, log *slog.Logger) (semantic.Collection, func() error, error) {
	noop := func() error { return nil }
	v := cfg.Vector
	switch v.Backend {
	case "qdrant":
		vs, err := semantic.New(v.QdrantAddr, v.Collection)
		if err != nil {
			return nil, noop, err
		}
		if v.Dimension > 0 {
			if err := vs.EnsureCollection(ctx, v.Dimension); err != nil {
				vs.Close()
				return nil, noop, err
			}
		}
		log.Info("vector collection ready", "backend", "qdrant", "addr", v.QdrantAddr, "collection", v.Collection)
		return vs, vs.Close, nil
	case "opensearch":
		idx := semantic.NewOpenSearch(semantic.OpenSearchConfig{
			URL:      v.OpenSearchURL,
			Index:    v.Collection,
			Username: v.Username,
			Password: v.Password,
		})
		if v.Dimension > 0 {
			if err := idx.EnsureIndex(ctx, v.Dimension); err != nil {
				return nil, noop, err
			}
		}
		log.Info("vector collection ready", "backend", "opensearch", "url", v.OpenSearchURL, "index", v.Collection)
		return idx, noop, nil
	case "memory":
		return semantic.NewMemCollection(v.Dimension), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown vector backend %q", v.Backend)
}

// Models builds the embedder and generator for the configured provider, each
// behind its own rate limiter and circuit breaker.
func Models(cfg *config.Config, reg *metrics.Registry, log *slog.Logger) (domain.Embedder, domain.Generator, error) {
	m := cfg.Model
	var (
		emb domain.Embedder
		gen domain.Generator
	)
	switch m.Provider {
	case "ollama":
		c := ollama.New(m.BaseURL, ollama.WithEmbedModel(m.EmbedModel), ollama.WithChatModel(m.ChatModel))
		emb, gen = c, c
	case "openai":
		p, err := lc.New(lc.Config{BaseURL: m.BaseURL, Token: m.Token, ChatModel: m.ChatModel, EmbedModel: m.EmbedModel})
		if err != nil {
			return nil, nil, fmt.Errorf("openai provider: %w", err)
		}
		emb, gen = p, p
	default:
		return nil, nil, fmt.Errorf("unknown model provider %q", m.Provider)
	}

	guard := func(name string) resilience.Guard {
		open := reg.Counter(metrics.WithLabels("docqa_breaker_open_total", "port", name), "Calls rejected by an open breaker.")
		return resilience.Guard{
			Limiter: resilience.NewLimiter(m.RateLimit, m.Burst),
			Breaker: resilience.NewBreaker(resilience.BreakerOpts{
				FailThreshold: m.BreakerThreshold,
				Timeout:       m.BreakerTimeout,
				OnReject:      open.Inc,
			}),
		}
	}
	log.Info("models ready", "provider", m.Provider, "embed_model", m.EmbedModel, "chat_model", m.ChatModel)
	return resilience.GuardEmbedder(emb, guard("embed")), resilience.GuardGenerator(gen, guard("generate")), nil
}

// Sessions opens the configured conversation store.
func Sessions(ctx context.Context, cfg *config.Config, log *slog.Logger) (session.Store, func() error, error) {
	noop := func() error { return nil }
	s := cfg.Session
	switch s.Backend {
	case "memory":
		return session.NewMemStore(), noop, nil
	case "redis":
		c, err := session.DialRedis(ctx, s.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return session.NewRedisStore(session.RedisConfig{Client: c, TTL: s.TTL}), c.Close, nil
	case "badger":
		b, err := session.OpenBadger(s.BadgerDir, s.TTL, log)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown session backend %q", s.Backend)
}

// Pool returns the worker pool consumers submit messages to.
func Pool(cfg *config.Config, log *slog.Logger) (*ants.Pool, error) {
	return ants.NewPool(max(cfg.NATS.Workers, 1),
		ants.WithPanicHandler(func(p any) {
			log.Error("worker panic", "panic", p)
		}),
	)
}

// ConsumerOpts derives natsutil options for queue from configuration.
func ConsumerOpts(cfg *config.Config, queue string, pool *ants.Pool, log *slog.Logger) natsutil.ConsumerOpts {
	return natsutil.ConsumerOpts{
		Subject:        cfg.NATS.Subject,
		Queue:          queue,
		DLQSubject:     cfg.NATS.DLQSubject,
		MaxRetries:     cfg.NATS.MaxRetries,
		RetryDelay:     cfg.NATS.RetryDelay,
		HandlerTimeout: cfg.NATS.HandlerTimeout,
		Submit:         pool.Submit,
		Logger:         log,
	}
}

// NotificationHandler decodes the payload and runs fn. Payloads and failures
// that no retry can fix are marked permanent so they go straight to the DLQ.
func NotificationHandler(fn func(context.Context, domain.Notification) error) natsutil.Handler {
	return func(ctx context.Context, data []byte) error {
		n, err := domain.DecodeNotification(data)
		if err != nil {
			return natsutil.Permanent(err)
		}
		err = fn(ctx, n)
		if errors.Is(err, domain.ErrUnsupportedFormat) ||
			errors.Is(err, domain.ErrMalformedNotification) ||
			errors.Is(err, domain.ErrOutsideNamespace) ||
			errors.Is(err, domain.ErrDimensionMismatch) {
			return natsutil.Permanent(err)
		}
		return err
	}
}
