package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/rag"
	"github.com/WessleyAI/docqa/pkg/config"
)

type stubAsker struct {
	got domain.AskRequest
}

func (s *stubAsker) Ask(_ context.Context, req domain.AskRequest) (*rag.Answer, error) {
	s.got = req
	return &rag.Answer{Text: "blue", Sources: []domain.SourceRef{}, SessionID: "s-1"}, nil
}

func (s *stubAsker) Reset(context.Context, string) error { return nil }

func TestRAGOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RAG.TopK = 7
	cfg.RAG.HistoryTurns = -1
	cfg.RAG.CondenseQuestion = true

	opts := ragOptions(cfg)
	if opts.TopK != 7 || opts.HistoryTurns != -1 || !opts.CondenseQuestion {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.PreviewChars != rag.DefaultOptions().PreviewChars {
		t.Fatalf("preview length should keep its default, got %d", opts.PreviewChars)
	}
}

func TestNewServer(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = ":9999"
	srv := newServer(cfg, &stubAsker{}, nil)

	if srv.Addr != ":9999" {
		t.Fatalf("addr = %q", srv.Addr)
	}
	if srv.WriteTimeout <= cfg.RAG.GenerateTimeout {
		t.Fatalf("write timeout %v must exceed generation timeout %v", srv.WriteTimeout, cfg.RAG.GenerateTimeout)
	}
	if srv.ReadTimeout != 15*time.Second {
		t.Fatalf("read timeout = %v", srv.ReadTimeout)
	}
}

func TestServerHandlerChain(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.CORSOrigin = "https://docs.example"
	asker := &stubAsker{}
	srv := newServer(cfg, asker, nil)

	body, _ := json.Marshal(domain.AskRequest{Question: "What color is the sky?"})
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://docs.example" {
		t.Fatalf("CORS origin = %q", got)
	}
	if got := rec.Header().Get(rag.SessionHeader); got != "s-1" {
		t.Fatalf("session header = %q", got)
	}
	if asker.got.Question != "What color is the sky?" {
		t.Fatalf("question not forwarded: %+v", asker.got)
	}
}

func TestServerHealth(t *testing.T) {
	srv := newServer(config.Default(), &stubAsker{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
