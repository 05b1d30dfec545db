package resilience

import (
	"context"

	"github.com/WessleyAI/docqa/engine/domain"
	"golang.org/x/time/rate"
)

// NewLimiter returns a token bucket allowing rps calls per second with the
// given burst. A non-positive rps returns nil, which disables throttling.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Guard combines an optional limiter with an optional breaker.
type Guard struct {
	Breaker *Breaker
	Limiter *rate.Limiter
}

// Do waits for the limiter, then runs f through the breaker.
func (g Guard) Do(ctx context.Context, f func(context.Context) error) error {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if g.Breaker == nil {
		return f(ctx)
	}
	return g.Breaker.Call(ctx, f)
}

type guardedEmbedder struct {
	next  domain.Embedder
	guard Guard
}

// GuardEmbedder wraps e so that every call goes through g.
func GuardEmbedder(e domain.Embedder, g Guard) domain.Embedder {
	return &guardedEmbedder{next: e, guard: g}
}

func (e *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = e.next.Embed(ctx, text)
		return err
	})
	return vec, err
}

type guardedGenerator struct {
	next  domain.Generator
	guard Guard
}

// GuardGenerator wraps gen so that every call goes through g.
func GuardGenerator(gen domain.Generator, g Guard) domain.Generator {
	return &guardedGenerator{next: gen, guard: g}
}

func (gg *guardedGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	var out string
	err := gg.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = gg.next.Generate(ctx, req)
		return err
	})
	return out, err
}
