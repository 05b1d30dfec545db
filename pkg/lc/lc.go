// Package lc adapts langchaingo's OpenAI-compatible client to the embedding
// and generation ports. It works against any server speaking the OpenAI API,
// hosted or local.
package lc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Config selects the endpoint and models.
type Config struct {
	BaseURL    string
	Token      string
	ChatModel  string
	EmbedModel string
}

// Provider implements domain.Embedder and domain.Generator.
type Provider struct {
	llm      llms.Model
	embedder embeddings.Embedder
	logger   *slog.Logger
}

var (
	_ domain.Embedder  = (*Provider)(nil)
	_ domain.Generator = (*Provider)(nil)
)

// New builds a Provider. Local servers that need no authentication can leave
// Token empty.
func New(cfg Config) (*Provider, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.ChatModel != "" {
		opts = append(opts, openai.WithModel(cfg.ChatModel))
	}
	if cfg.EmbedModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.EmbedModel))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &Provider{
		llm:      client,
		embedder: emb,
		logger:   slog.Default().With("component", "lc-provider"),
	}, nil
}

// Embed returns the embedding of text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		p.logger.Error("embedding failed", "length", len(text), "err", err)
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("lc: empty embedding")
	}
	return vec, nil
}

// Generate runs a single-prompt completion.
func (p *Provider) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(float64(req.Temperature))}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, p.llm, req.Prompt, opts...)
	if err != nil {
		p.logger.Error("generation failed", "err", err)
		return "", err
	}
	return out, nil
}
