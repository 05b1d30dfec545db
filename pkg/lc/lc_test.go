package lc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  "test-embed",
				"data": []map[string]any{
					{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2, 0.3}},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "test-chat", body["model"])
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "1",
				"object": "chat.completion",
				"model":  "test-chat",
				"choices": []map[string]any{
					{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "The sky is blue."}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestProvider_Embed(t *testing.T) {
	srv := fakeOpenAI(t)
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, ChatModel: "test-chat", EmbedModel: "test-embed"})
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "what color is the sky")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestProvider_Generate(t *testing.T) {
	srv := fakeOpenAI(t)
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, ChatModel: "test-chat", EmbedModel: "test-embed"})
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), domain.GenerateRequest{Prompt: "q", MaxTokens: 1000, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", out)
}

func TestProvider_GenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"down"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, ChatModel: "test-chat"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), domain.GenerateRequest{Prompt: "q"})
	assert.Error(t, err)
}
