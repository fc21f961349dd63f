// Package vector runs similarity queries against the knowledge chunk store.
package vector

import (
	"context"
	"fmt"

	"gwi.com/kbchat/internal/store"
)

const (
	DefaultSimilarity = 0.2
	DefaultLimit      = 20

	StatusReady   = "ready"
	StatusWaiting = "waiting"
)

// Row is one matching knowledge chunk.
type Row struct {
	ID       string
	Q        string
	A        string
	Distance float64
}

// Query selects ready chunks of one model whose cosine distance to Vector is below Similarity.
type Query struct {
	Vector     []float32
	ModelID    store.ID
	Similarity float64
	Limit      int
}

// Normalize fills zero values with the defaults.
func (q Query) Normalize() Query {
	if q.Similarity <= 0 {
		q.Similarity = DefaultSimilarity
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

func (q Query) validate() error {
	if len(q.Vector) == 0 {
		return fmt.Errorf("query vector cannot be empty")
	}
	if q.ModelID.IsZero() {
		return fmt.Errorf("model id is required")
	}
	return nil
}

// Searcher returns rows ordered by ascending distance, capped at the query limit.
// Calls share no mutable state and may run concurrently.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Row, error)
}
