package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/embedding"
	"gwi.com/kbchat/internal/store"
	"gwi.com/kbchat/internal/vector"
)

// wordSlicer counts one token per space separated word.
type wordSlicer struct{}

func (wordSlicer) Slice(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func testSlicers() Slicers {
	return Slicers{
		store.ChatModelGPT35:   wordSlicer{},
		store.ChatModelGPT4:    wordSlicer{},
		store.ChatModelGPT432k: wordSlicer{},
		store.ChatModelClaude:  wordSlicer{},
	}
}

// fakeEmbedder maps each text to a one-dimensional vector holding its position in texts.
type fakeEmbedder struct {
	err   error
	calls [][]string
	opts  []embedding.EmbedOptions
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, opts embedding.EmbedOptions) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

// fakeSearcher answers the query whose vector is [i] with results[i].
type fakeSearcher struct {
	mu      sync.Mutex
	results [][]vector.Row
	err     error
	queries []vector.Query
}

func (f *fakeSearcher) Search(_ context.Context, q vector.Query) ([]vector.Row, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	i := int(q.Vector[0])
	if i >= len(f.results) {
		return nil, nil
	}
	return f.results[i], nil
}

// fakeTokens accepts "token-<userID>".
type fakeTokens struct{}

func (fakeTokens) Verify(token string) (store.ID, error) {
	if token == "" {
		return "", apperr.New(apperr.Unauthenticated, "fakeTokens.Verify", fmt.Errorf("missing credential"))
	}
	id, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return "", apperr.New(apperr.Unauthenticated, "fakeTokens.Verify", fmt.Errorf("invalid token"))
	}
	return store.ID(id), nil
}

func row(id string) vector.Row {
	return vector.Row{ID: id, Q: "q-" + id, A: "a-" + id}
}
