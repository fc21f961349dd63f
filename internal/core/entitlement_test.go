package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/store"
)

var testKeys = PlatformKeys{OpenAI: "sk-platform", Claude: "laf-platform"}

func seedModel(t *testing.T, s *store.MemoryStore, share store.ModelShareConfig) *store.Model {
	t.Helper()
	chat := store.DefaultModelChat()
	chat.UseKB = true
	chat.SystemPrompt = "secret prompt"
	chat.Temperature = 5
	chat.ChatModel = store.ChatModelGPT4
	m := &store.Model{
		UserID:   "owner",
		Name:     "kb",
		Status:   store.ModelStatusRunning,
		Chat:     chat,
		Share:    share,
		Security: store.DefaultModelSecurity(),
	}
	require.NoError(t, s.CreateModel(context.Background(), m))
	return m
}

func TestAuthModel_OwnerSeesFullConfig(t *testing.T) {
	s := store.NewMemoryStore()
	m := seedModel(t, s, store.ModelShareConfig{IsShare: true, IsShareDetail: false})
	e := NewEntitlements(s, testKeys, zap.NewNop())

	access, err := e.AuthModel(context.Background(), m.ID, "owner", DefaultAuthModelOptions())
	require.NoError(t, err)
	assert.True(t, access.ShowModelDetail)
	assert.Equal(t, "secret prompt", access.Model.Chat.SystemPrompt)
	assert.Equal(t, 5.0, access.Model.Chat.Temperature)
}

func TestAuthModel_SharedModelRedactedForOthers(t *testing.T) {
	s := store.NewMemoryStore()
	m := seedModel(t, s, store.ModelShareConfig{IsShare: true, IsShareDetail: false})
	e := NewEntitlements(s, testKeys, zap.NewNop())

	access, err := e.AuthModel(context.Background(), m.ID, "visitor", AuthModelOptions{AuthUser: true})
	require.NoError(t, err)
	assert.False(t, access.ShowModelDetail)

	want := store.DefaultModelChat()
	want.ChatModel = store.ChatModelGPT4
	assert.Equal(t, want, access.Model.Chat)

	stored, err := s.GetModel(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret prompt", stored.Chat.SystemPrompt)
}

func TestAuthModel_ReserveDetailKeepsConfig(t *testing.T) {
	s := store.NewMemoryStore()
	m := seedModel(t, s, store.ModelShareConfig{IsShare: true})
	e := NewEntitlements(s, testKeys, zap.NewNop())

	access, err := e.AuthModel(context.Background(), m.ID, "visitor", AuthModelOptions{AuthUser: true, ReserveDetail: true})
	require.NoError(t, err)
	assert.Equal(t, "secret prompt", access.Model.Chat.SystemPrompt)
	assert.False(t, access.ShowModelDetail)
}

func TestAuthModel_SharedDetailVisibleToOthers(t *testing.T) {
	s := store.NewMemoryStore()
	m := seedModel(t, s, store.ModelShareConfig{IsShare: true, IsShareDetail: true})
	e := NewEntitlements(s, testKeys, zap.NewNop())

	access, err := e.AuthModel(context.Background(), m.ID, "visitor", AuthModelOptions{AuthUser: true})
	require.NoError(t, err)
	assert.True(t, access.ShowModelDetail)
	assert.Equal(t, "secret prompt", access.Model.Chat.SystemPrompt)
}

func TestAuthModel_AccessRule(t *testing.T) {
	s := store.NewMemoryStore()
	shared := seedModel(t, s, store.ModelShareConfig{IsShare: true})
	private := seedModel(t, s, store.ModelShareConfig{IsShare: false})
	e := NewEntitlements(s, testKeys, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name    string
		model   store.ID
		opts    AuthModelOptions
		allowed bool
	}{
		{"owner check on shared", shared.ID, AuthModelOptions{AuthUser: true, AuthOwner: true}, false},
		{"user check on shared", shared.ID, AuthModelOptions{AuthUser: true}, true},
		{"user check on private", private.ID, AuthModelOptions{AuthUser: true}, false},
		{"no checks on private", private.ID, AuthModelOptions{}, true},
		{"owner check only", private.ID, AuthModelOptions{AuthOwner: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AuthModel(ctx, tt.model, "visitor", tt.opts)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperr.Is(err, apperr.Forbidden))

			_, err = e.AuthModel(ctx, tt.model, "owner", tt.opts)
			assert.NoError(t, err)
		})
	}
}

func TestAuthModel_Errors(t *testing.T) {
	e := NewEntitlements(store.NewMemoryStore(), testKeys, zap.NewNop())

	_, err := e.AuthModel(context.Background(), "", "owner", DefaultAuthModelOptions())
	assert.True(t, apperr.Is(err, apperr.Validation))

	_, err = e.AuthModel(context.Background(), "missing", "owner", DefaultAuthModelOptions())
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestGetAPIKey(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "personal", OpenAIKey: "sk-own", Balance: 0}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "rich", Balance: 5 * store.PriceScale}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "broke", Balance: 0}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "indebted", Balance: -10}))
	e := NewEntitlements(s, testKeys, zap.NewNop())

	keys, err := e.GetAPIKey(ctx, store.ChatModelGPT35, "personal", false)
	require.NoError(t, err)
	assert.Equal(t, "sk-own", keys.UserKey)
	assert.Empty(t, keys.SystemKey)

	_, err = e.GetAPIKey(ctx, store.ChatModelGPT35, "personal", true)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = e.GetAPIKey(ctx, store.ChatModelClaude, "personal", false)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	keys, err = e.GetAPIKey(ctx, store.ChatModelGPT4, "rich", false)
	require.NoError(t, err)
	assert.Empty(t, keys.UserKey)
	assert.Equal(t, "sk-platform", keys.SystemKey)

	keys, err = e.GetAPIKey(ctx, store.ChatModelClaude, "rich", true)
	require.NoError(t, err)
	assert.Equal(t, "laf-platform", keys.SystemKey)

	_, err = e.GetAPIKey(ctx, store.ChatModelGPT35, "broke", false)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	_, err = e.GetAPIKey(ctx, store.ChatModelGPT35, "indebted", false)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = e.GetAPIKey(ctx, store.ChatModelGPT35, "ghost", false)
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	_, err = e.GetAPIKey(ctx, "llama", "rich", false)
	assert.True(t, apperr.Is(err, apperr.Validation))
}
