package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/store"
)

// DefaultHistoryLimit is how many trailing chat turns are loaded for a completion.
const DefaultHistoryLimit = 50

// TokenVerifier resolves a bearer credential to a caller id.
type TokenVerifier interface {
	Verify(token string) (store.ID, error)
}

type ChatService struct {
	store        store.Store
	entitlements *Entitlements
	tokens       TokenVerifier
	historyLimit int
	logger       *zap.Logger
	now          func() time.Time
}

func NewChatService(s store.Store, entitlements *Entitlements, tokens TokenVerifier, historyLimit int, logger *zap.Logger) *ChatService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ChatService{
		store:        s,
		entitlements: entitlements,
		tokens:       tokens,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

type AuthChatInput struct {
	ModelID       store.ID
	ChatID        store.ID
	Authorization string
}

// ChatAccess is the bundle a completion call is built from.
type ChatAccess struct {
	UserKey         string
	SystemKey       string
	Content         []store.ChatItemSimple
	UserID          store.ID
	Model           *store.Model
	ShowModelDetail bool
}

// AuthChat resolves the caller's access to a model for a completion.
// The returned model always carries its real chat config; redaction is left to the caller.
func (s *ChatService) AuthChat(ctx context.Context, in AuthChatInput) (*ChatAccess, error) {
	const op = "core.ChatService.AuthChat"

	userID, err := s.tokens.Verify(in.Authorization)
	if err != nil {
		return nil, err
	}

	access, err := s.entitlements.AuthModel(ctx, in.ModelID, userID, AuthModelOptions{
		AuthUser:      true,
		AuthOwner:     false,
		ReserveDetail: true,
	})
	if err != nil {
		return nil, err
	}

	content := []store.ChatItemSimple{}
	if !in.ChatID.IsZero() {
		content, err = s.store.GetChatTail(ctx, in.ChatID, s.historyLimit)
		if err != nil {
			return nil, storeError(op, err, apperr.NotFound, "chat_id", in.ChatID.String())
		}
	}

	keys, err := s.entitlements.GetAPIKey(ctx, access.Model.Chat.ChatModel, userID, false)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Chat access resolved",
		zap.String("model_id", in.ModelID.String()),
		zap.String("chat_id", in.ChatID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("history", len(content)),
		zap.Bool("personal_key", keys.UserKey != ""))

	return &ChatAccess{
		UserKey:         keys.UserKey,
		SystemKey:       keys.SystemKey,
		Content:         content,
		UserID:          userID,
		Model:           access.Model,
		ShowModelDetail: access.ShowModelDetail,
	}, nil
}

type SaveChatInput struct {
	// ChatID is the chat to append to. When empty a new chat is created.
	ChatID store.ID
	// NewChatID optionally fixes the id of a chat being created.
	NewChatID     store.ID
	ModelID       store.ID
	Prompts       []store.ChatItem
	Authorization string
}

// SaveChat appends prompts to an existing chat, or creates one titled after the first prompt.
// It returns the id of the chat written to.
func (s *ChatService) SaveChat(ctx context.Context, in SaveChatInput) (store.ID, error) {
	const op = "core.ChatService.SaveChat"
	if len(in.Prompts) == 0 {
		return "", apperr.New(apperr.Validation, op, fmt.Errorf("prompts are required"))
	}

	userID, err := s.tokens.Verify(in.Authorization)
	if err != nil {
		return "", err
	}
	if _, err := s.entitlements.AuthModel(ctx, in.ModelID, userID, AuthModelOptions{AuthUser: true, AuthOwner: false}); err != nil {
		return "", err
	}

	items := make([]store.ChatItem, len(in.Prompts))
	for i, p := range in.Prompts {
		if p.ID.IsZero() {
			p.ID = store.NewID()
		}
		items[i] = p
	}
	now := s.now()

	if in.ChatID.IsZero() {
		chat := &store.Chat{
			ID:         in.NewChatID,
			UserID:     userID,
			ModelID:    in.ModelID,
			Content:    items,
			Title:      store.ChatTitle(items),
			UpdateTime: now,
		}
		id, err := s.store.CreateChat(ctx, chat)
		if err != nil {
			return "", apperr.New(apperr.Storage, op, err, "model_id", in.ModelID.String())
		}
		s.logger.Info("Chat created",
			zap.String("chat_id", id.String()),
			zap.String("model_id", in.ModelID.String()),
			zap.String("user_id", userID.String()))
		return id, nil
	}

	if err := s.store.AppendChatContent(ctx, in.ChatID, items, now); err != nil {
		return "", storeError(op, err, apperr.NotFound, "chat_id", in.ChatID.String())
	}
	return in.ChatID, nil
}
