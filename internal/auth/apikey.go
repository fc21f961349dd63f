package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/store"
)

// APIKeyAuthenticator resolves open-API keys to their owner.
type APIKeyAuthenticator struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewAPIKeyAuthenticator(s store.Store, logger *zap.Logger) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{store: s, logger: logger, now: time.Now}
}

// Authenticate returns the user owning apiKey and records the key's last use.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, apiKey string) (store.ID, error) {
	const op = "auth.APIKeyAuthenticator.Authenticate"
	if apiKey == "" {
		return "", apperr.New(apperr.Unauthenticated, op, fmt.Errorf("missing api key"))
	}

	cred, err := a.store.FindAPICredential(ctx, apiKey)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.New(apperr.Unauthenticated, op, fmt.Errorf("unknown api key"))
	}
	if err != nil {
		return "", apperr.New(apperr.Storage, op, err)
	}

	if err := a.store.TouchAPICredential(ctx, cred.ID, a.now()); err != nil {
		return "", apperr.New(apperr.Storage, op, err, "credential_id", cred.ID.String())
	}

	a.logger.Debug("API key authenticated", zap.String("user_id", cred.UserID.String()))
	return cred.UserID, nil
}
