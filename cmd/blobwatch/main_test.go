package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/WessleyAI/docqa/engine/blob"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/config"
	"github.com/WessleyAI/docqa/pkg/metrics"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	ns.Start()
	if !ns.ReadyForConnections(2 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
	})
	return nc
}

func next(t *testing.T, sub *nats.Subscription) domain.Notification {
	t.Helper()
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("expected notification: %v", err)
	}
	n, err := domain.DecodeNotification(msg.Data)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestBridgePublishes(t *testing.T) {
	nc := startNATS(t)
	cfg := config.Default()
	sub, err := nc.SubscribeSync(cfg.NATS.Subject)
	if err != nil {
		t.Fatal(err)
	}
	nc.Flush()

	store := blob.NewMemStore()
	met := metrics.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	store.Subscribe(cfg.Storage.Bucket, bridge(ctx, nc, store, cfg, met, log))

	if err := store.Put(ctx, cfg.Storage.Bucket, "raw/a.pdf", []byte("%PDF"), "application/pdf"); err != nil {
		t.Fatal(err)
	}
	n := next(t, sub)
	if n.Key != "raw/a.pdf" || n.Bucket != cfg.Storage.Bucket || n.Text != "" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if got := met.Counter("docqa_blobwatch_published_total", "").Value(); got != 1 {
		t.Fatalf("published = %d", got)
	}
}

func TestBridgeInlinesTrustedText(t *testing.T) {
	nc := startNATS(t)
	cfg := config.Default()
	cfg.Index.AcceptInline = true
	sub, err := nc.SubscribeSync(cfg.NATS.Subject)
	if err != nil {
		t.Fatal(err)
	}
	nc.Flush()

	store := blob.NewMemStore()
	ctx := context.Background()
	store.Subscribe(cfg.Storage.Bucket, bridge(ctx, nc, store, cfg, metrics.New(), slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := store.Put(ctx, cfg.Storage.Bucket, "trusted/a.txt", []byte("The sky is blue."), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if n := next(t, sub); n.Text != "The sky is blue." {
		t.Fatalf("expected inline text, got %+v", n)
	}

	if err := store.Put(ctx, cfg.Storage.Bucket, "raw/b.txt", []byte("raw body"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if n := next(t, sub); n.Text != "" {
		t.Fatalf("raw objects must not be inlined, got %+v", n)
	}
}
