package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Store is the document store for models, users, chats and open-API credentials.
type Store interface {
	GetModel(ctx context.Context, id ID) (*Model, error)
	CreateModel(ctx context.Context, m *Model) error
	UpdateModel(ctx context.Context, m *Model) error

	GetUser(ctx context.Context, id ID) (*User, error)
	CreateUser(ctx context.Context, u *User) error

	// GetChatTail returns the last n content items of a chat, oldest first.
	GetChatTail(ctx context.Context, chatID ID, n int) ([]ChatItemSimple, error)
	CreateChat(ctx context.Context, c *Chat) (ID, error)
	AppendChatContent(ctx context.Context, chatID ID, items []ChatItem, now time.Time) error

	FindAPICredential(ctx context.Context, apiKey string) (*APICredential, error)
	CreateAPICredential(ctx context.Context, c *APICredential) error
	TouchAPICredential(ctx context.Context, id ID, now time.Time) error

	Close(ctx context.Context) error
}
