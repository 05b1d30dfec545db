package domain

import "context"

// Embedder turns text into a fixed-dimension vector. The indexer and the
// retrieval service must share one model so that their vectors are comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenerateRequest is a single completion request.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Truncate returns at most max runes of s. A non-positive max returns s.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
