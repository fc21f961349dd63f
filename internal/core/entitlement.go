package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/store"
)

// PlatformKeys are the credentials the platform pays with, one per model family.
type PlatformKeys struct {
	OpenAI string
	Claude string
}

func (k PlatformKeys) forFamily(f ModelFamily) string {
	switch f {
	case FamilyOpenAI:
		return k.OpenAI
	case FamilyClaude:
		return k.Claude
	}
	return ""
}

type AuthModelOptions struct {
	// AuthUser restricts unshared models to their owner.
	AuthUser bool
	// AuthOwner restricts every model to its owner.
	AuthOwner bool
	// ReserveDetail keeps the real chat config even for callers who may not see it.
	ReserveDetail bool
}

func DefaultAuthModelOptions() AuthModelOptions {
	return AuthModelOptions{AuthUser: true, AuthOwner: true, ReserveDetail: false}
}

// ModelAccess is the per-request entitlement of a caller over a model. Never cached.
type ModelAccess struct {
	Model           *store.Model `json:"model"`
	ShowModelDetail bool         `json:"showModelDetail"`
}

type APIKeys struct {
	User      *store.User `json:"-"`
	UserKey   string      `json:"-"`
	SystemKey string      `json:"-"`
}

type Entitlements struct {
	store  store.Store
	keys   PlatformKeys
	logger *zap.Logger
}

func NewEntitlements(s store.Store, keys PlatformKeys, logger *zap.Logger) *Entitlements {
	return &Entitlements{store: s, keys: keys, logger: logger}
}

// storeError classifies a store failure: absent documents become kind, anything else Storage.
func storeError(op string, err error, kind apperr.Kind, kv ...string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(kind, op, err, kv...)
	}
	return apperr.New(apperr.Storage, op, err, kv...)
}

// AuthModel loads a model and checks that userID may use it.
// Access is denied unless the caller owns the model, or neither check is requested,
// or only the user check is requested and the model is shared.
// Non-owners of a model that does not share its detail get the default chat config,
// keeping only the completion model.
func (e *Entitlements) AuthModel(ctx context.Context, modelID, userID store.ID, opts AuthModelOptions) (*ModelAccess, error) {
	const op = "core.Entitlements.AuthModel"
	if modelID.IsZero() {
		return nil, apperr.New(apperr.Validation, op, fmt.Errorf("model id is required"))
	}

	model, err := e.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, storeError(op, err, apperr.NotFound, "model_id", modelID.String())
	}
	model = model.Clone()
	isOwner := model.IsOwner(userID)

	if (opts.AuthOwner || (opts.AuthUser && !model.Share.IsShare)) && !isOwner {
		return nil, apperr.New(apperr.Forbidden, op, nil, "model_id", modelID.String(), "user_id", userID.String())
	}

	if !opts.ReserveDetail && !model.Share.IsShareDetail && !isOwner {
		chatModel := model.Chat.ChatModel
		model.Chat = store.DefaultModelChat()
		model.Chat.ChatModel = chatModel
	}

	return &ModelAccess{
		Model:           model,
		ShowModelDetail: model.Share.IsShareDetail || isOwner,
	}, nil
}

// GetAPIKey chooses who pays for a completion with chatModel.
// A personal credential is used when the model accepts one and mustPay is false;
// otherwise the caller needs a positive balance and the platform key is returned.
func (e *Entitlements) GetAPIKey(ctx context.Context, chatModel store.ChatModel, userID store.ID, mustPay bool) (*APIKeys, error) {
	const op = "core.Entitlements.GetAPIKey"
	spec, ok := LookupChatModel(chatModel)
	if !ok {
		return nil, apperr.New(apperr.Validation, op, fmt.Errorf("unknown chat model %q", chatModel))
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError(op, err, apperr.Unauthenticated, "user_id", userID.String())
	}

	if spec.PersonalKey && !mustPay && user.OpenAIKey != "" {
		return &APIKeys{User: user, UserKey: user.OpenAIKey}, nil
	}

	if store.FormatPrice(user.Balance) <= 0 {
		e.logger.Info("Platform key refused for empty balance",
			zap.String("user_id", userID.String()),
			zap.String("chat_model", string(chatModel)))
		return nil, apperr.New(apperr.Forbidden, op, fmt.Errorf("insufficient balance"), "user_id", userID.String())
	}

	return &APIKeys{User: user, SystemKey: e.keys.forFamily(spec.Family)}, nil
}
