package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gwi.com/kbchat/internal/apperr"
)

const DefaultGeminiModel = "text-embedding-004"

// GeminiEmbedder always bills the platform key; personal credentials are OpenAI keys.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &GeminiEmbedder{client: client, modelName: modelName, logger: logger}, nil
}

func (e *GeminiEmbedder) Close() {
	if e.client != nil {
		if err := e.client.Close(); err != nil {
			e.logger.Warn("Error closing GenAI client", zap.Error(err))
		}
	}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error) {
	const op = "embedding.Gemini.Embed"
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	em := e.client.EmbeddingModel(e.modelName)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, apperr.New(apperr.Upstream, op, fmt.Errorf("gemini embedding request failed: %w", err), "user_id", opts.UserID.String())
	}

	vectors, err := orderByIndex(len(texts), len(res.Embeddings), func(i int) (int, []float32) {
		if res.Embeddings[i] == nil {
			return i, nil
		}
		return i, res.Embeddings[i].Values
	})
	if err != nil {
		return nil, apperr.New(apperr.Upstream, op, err, "user_id", opts.UserID.String())
	}

	e.logger.Debug("Embedding usage",
		zap.String("user_id", opts.UserID.String()),
		zap.Int("inputs", len(texts)))

	return vectors, nil
}
