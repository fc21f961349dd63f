package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/embedding"
	"gwi.com/kbchat/internal/store"
	"gwi.com/kbchat/internal/vector"
)

const (
	// CodeProceed means the prompt (if any) goes to the completion service.
	CodeProceed = 200
	// CodeDirectAnswer means SearchPrompt is the final answer and no completion call is made.
	CodeDirectAnswer = 201

	RefusalText        = "Sorry, your question is not in the knowledge base."
	kbOnlyInstruction  = "Do not answer anything outside the knowledge base."
	knowledgeTemplate  = "Knowledge base content: '%s'"
	searchQueriesCount = 2
)

// SearchOutcome is the result of a knowledge base lookup for one request.
type SearchOutcome struct {
	Code         int                   `json:"code"`
	SearchPrompt *store.ChatItemSimple `json:"searchPrompt,omitempty"`
}

type SearchKBInput struct {
	UserKey string
	Prompts []store.ChatItemSimple
	Model   *store.Model
	UserID  store.ID
	// Similarity overrides the service default distance threshold when positive.
	Similarity float64
}

type RAGService struct {
	embedder   embedding.Embedder
	searcher   vector.Searcher
	slicers    Slicers
	similarity float64
	limit      int
	logger     *zap.Logger
}

type RAGConfig struct {
	Similarity float64
	Limit      int
}

func NewRAGService(embedder embedding.Embedder, searcher vector.Searcher, slicers Slicers, cfg RAGConfig, logger *zap.Logger) *RAGService {
	if cfg.Similarity <= 0 {
		cfg.Similarity = vector.DefaultSimilarity
	}
	if cfg.Limit <= 0 {
		cfg.Limit = vector.DefaultLimit
	}
	return &RAGService{
		embedder:   embedder,
		searcher:   searcher,
		slicers:    slicers,
		similarity: cfg.Similarity,
		limit:      cfg.Limit,
		logger:     logger,
	}
}

// SearchQueries picks the texts to search for: the latest Human turn, then the one before it.
func SearchQueries(prompts []store.ChatItemSimple) ([]string, error) {
	queries := make([]string, 0, searchQueriesCount)
	for i := len(prompts) - 1; i >= 0 && len(queries) < searchQueriesCount; i-- {
		if prompts[i].Role != store.RoleHuman {
			continue
		}
		queries = append(queries, prompts[i].Value)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no human prompt to search for")
	}

	out := queries[:0]
	for _, q := range queries {
		if q != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

// SearchKB embeds the search queries, looks them up in the model's knowledge base and
// turns the result into the prompt turn for the completion call.
func (s *RAGService) SearchKB(ctx context.Context, in SearchKBInput) (*SearchOutcome, error) {
	const op = "core.RAGService.SearchKB"
	if in.Model == nil {
		return nil, apperr.New(apperr.Validation, op, fmt.Errorf("model is required"))
	}
	modelID := in.Model.ID.String()

	queries, err := SearchQueries(in.Prompts)
	if err != nil {
		return nil, apperr.New(apperr.Validation, op, err, "model_id", modelID)
	}
	spec, ok := LookupChatModel(in.Model.Chat.ChatModel)
	if !ok {
		return nil, apperr.New(apperr.Validation, op, fmt.Errorf("unknown chat model %q", in.Model.Chat.ChatModel), "model_id", modelID)
	}
	slicer, ok := s.slicers.For(in.Model.Chat.ChatModel)
	if !ok {
		return nil, apperr.New(apperr.Validation, op, fmt.Errorf("no tokenizer for chat model %q", in.Model.Chat.ChatModel), "model_id", modelID)
	}

	lists, err := s.search(ctx, queries, in)
	if err != nil {
		return nil, err
	}

	knowledge := TruncateContext(FuseResults(lists), spec.SystemMaxToken, slicer)
	outcome := BuildSearchPrompt(knowledge, in.Model.Chat)

	s.logger.Debug("Knowledge base search finished",
		zap.String("model_id", modelID),
		zap.String("user_id", in.UserID.String()),
		zap.Int("queries", len(queries)),
		zap.Int("knowledge_len", len(knowledge)),
		zap.Int("code", outcome.Code))

	return outcome, nil
}

// search runs one similarity query per text. Results are stored by index so query order survives the fan-out.
func (s *RAGService) search(ctx context.Context, queries []string, in SearchKBInput) ([][]vector.Row, error) {
	vectors, err := s.embedder.Embed(ctx, queries, embedding.EmbedOptions{UserKey: in.UserKey, UserID: in.UserID})
	if err != nil {
		return nil, err
	}

	similarity := s.similarity
	if in.Similarity > 0 {
		similarity = in.Similarity
	}

	lists := make([][]vector.Row, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, vec := range vectors {
		g.Go(func() error {
			rows, err := s.searcher.Search(gctx, vector.Query{
				Vector:     vec,
				ModelID:    in.Model.ID,
				Similarity: similarity,
				Limit:      s.limit,
			})
			if err != nil {
				return err
			}
			lists[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Knowledge base search failed", zap.String("model_id", in.Model.ID.String()), zap.Error(err))
		return nil, err
	}
	return lists, nil
}

// BuildSearchPrompt decides the response mode from the truncated knowledge text and the model's
// chat config. It has no side effects.
func BuildSearchPrompt(knowledge string, chat store.ModelChatConfig) *SearchOutcome {
	if knowledge == "" {
		switch chat.SearchMode {
		case store.SearchModeHighSimilarity:
			return &SearchOutcome{
				Code:         CodeDirectAnswer,
				SearchPrompt: &store.ChatItemSimple{Role: store.RoleAI, Value: RefusalText},
			}
		case store.SearchModeNoContext:
			if chat.SystemPrompt == "" {
				return &SearchOutcome{Code: CodeProceed}
			}
			return &SearchOutcome{
				Code:         CodeProceed,
				SearchPrompt: &store.ChatItemSimple{Role: store.RoleSystem, Value: chat.SystemPrompt},
			}
		}
	}

	constraint := ""
	if chat.SearchMode == store.SearchModeHighSimilarity {
		constraint = kbOnlyInstruction
	}
	return &SearchOutcome{
		Code: CodeProceed,
		SearchPrompt: &store.ChatItemSimple{
			Role:  store.RoleSystem,
			Value: "\n" + chat.SystemPrompt + "\n" + constraint + "\n" + fmt.Sprintf(knowledgeTemplate, knowledge) + "\n",
		},
	}
}
