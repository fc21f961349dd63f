// Package embedding turns text into vectors through an external embedding service.
package embedding

import (
	"context"

	"gwi.com/kbchat/internal/store"
)

// EmbedOptions identifies who pays for the call.
type EmbedOptions struct {
	// UserKey is the caller's personal credential. Empty means the platform key is used.
	UserKey string
	UserID  store.ID
}

// Embedder returns one vector per input text, in input order.
// Implementations fail with an apperr.Upstream error on service errors or count mismatches.
type Embedder interface {
	Embed(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error)
}
