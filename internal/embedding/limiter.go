package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"gwi.com/kbchat/internal/apperr"
)

// RateLimited throttles calls to an upstream embedder.
type RateLimited struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a limiter of perSecond calls. perSecond <= 0 returns inner unchanged.
func NewRateLimited(inner Embedder, perSecond float64, burst int) Embedder {
	if perSecond <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperr.New(apperr.Upstream, "embedding.RateLimited.Embed", fmt.Errorf("waiting for embedding rate limit: %w", err), "user_id", opts.UserID.String())
	}
	return r.inner.Embed(ctx, texts, opts)
}
