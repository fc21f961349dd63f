package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
)

const DefaultOpenAIModel = string(openai.AdaEmbeddingV2)

type OpenAIEmbedder struct {
	platformKey string
	baseURL     string
	model       openai.EmbeddingModel
	logger      *zap.Logger
}

func NewOpenAIEmbedder(platformKey, baseURL, model string, logger *zap.Logger) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{
		platformKey: platformKey,
		baseURL:     baseURL,
		model:       openai.EmbeddingModel(model),
		logger:      logger,
	}
}

func (e *OpenAIEmbedder) client(userKey string) *openai.Client {
	key := e.platformKey
	if userKey != "" {
		key = userKey
	}
	cfg := openai.DefaultConfig(key)
	if e.baseURL != "" {
		cfg.BaseURL = e.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error) {
	const op = "embedding.OpenAI.Embed"
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client(opts.UserKey).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
		User:  opts.UserID.String(),
	})
	if err != nil {
		return nil, apperr.New(apperr.Upstream, op, fmt.Errorf("openai embedding request failed: %w", err), "user_id", opts.UserID.String())
	}

	vectors, err := orderByIndex(len(texts), len(resp.Data), func(i int) (int, []float32) {
		return resp.Data[i].Index, resp.Data[i].Embedding
	})
	if err != nil {
		return nil, apperr.New(apperr.Upstream, op, err, "user_id", opts.UserID.String())
	}

	e.logger.Debug("Embedding usage",
		zap.String("user_id", opts.UserID.String()),
		zap.Bool("user_key", opts.UserKey != ""),
		zap.Int("inputs", len(texts)),
		zap.Int("tokens", resp.Usage.TotalTokens))

	return vectors, nil
}

// orderByIndex places each returned vector at its input position and checks the counts match.
func orderByIndex(want, got int, at func(i int) (int, []float32)) ([][]float32, error) {
	if got != want {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", got, want)
	}
	out := make([][]float32, want)
	for i := 0; i < got; i++ {
		idx, vec := at(i)
		if idx < 0 || idx >= want || out[idx] != nil {
			return nil, fmt.Errorf("embedding service returned invalid index %d", idx)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("embedding service returned an empty vector at index %d", idx)
		}
		out[idx] = vec
	}
	return out, nil
}
