package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps every document in process. Used for local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	models      map[ID]*Model
	users       map[ID]*User
	chats       map[ID]*Chat
	credentials map[ID]*APICredential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models:      make(map[ID]*Model),
		users:       make(map[ID]*User),
		chats:       make(map[ID]*Chat),
		credentials: make(map[ID]*APICredential),
	}
}

func (s *MemoryStore) GetModel(ctx context.Context, id ID) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) CreateModel(ctx context.Context, m *Model) error {
	if m.ID.IsZero() {
		m.ID = NewID()
	}
	if m.UpdateTime.IsZero() {
		m.UpdateTime = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[m.ID]; exists {
		return fmt.Errorf("model %s already exists", m.ID)
	}
	s.models[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) UpdateModel(ctx context.Context, m *Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[m.ID]; !exists {
		return ErrNotFound
	}
	s.models[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id ID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID.IsZero() {
		u.ID = NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *MemoryStore) GetChatTail(ctx context.Context, chatID ID, n int) ([]ChatItemSimple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}

	content := chat.Content
	if n >= 0 && len(content) > n {
		content = content[len(content)-n:]
	}
	out := make([]ChatItemSimple, 0, len(content))
	for _, item := range content {
		out = append(out, ChatItemSimple{Role: item.Role, Value: item.Value})
	}
	return out, nil
}

func (s *MemoryStore) CreateChat(ctx context.Context, c *Chat) (ID, error) {
	if c.ID.IsZero() {
		c.ID = NewID()
	}
	if c.UpdateTime.IsZero() {
		c.UpdateTime = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chats[c.ID]; exists {
		return "", fmt.Errorf("chat %s already exists", c.ID)
	}
	stored := *c
	stored.Content = append([]ChatItem(nil), c.Content...)
	s.chats[c.ID] = &stored
	return c.ID, nil
}

func (s *MemoryStore) AppendChatContent(ctx context.Context, chatID ID, items []ChatItem, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	chat.Content = append(chat.Content, items...)
	chat.UpdateTime = now
	return nil
}

func (s *MemoryStore) FindAPICredential(ctx context.Context, apiKey string) (*APICredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.credentials {
		if c.APIKey == apiKey {
			found := *c
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateAPICredential(ctx context.Context, c *APICredential) error {
	if c.ID.IsZero() {
		c.ID = NewID()
	}
	if c.CreateTime.IsZero() {
		c.CreateTime = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *c
	s.credentials[c.ID] = &stored
	return nil
}

func (s *MemoryStore) TouchAPICredential(ctx context.Context, id ID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return ErrNotFound
	}
	c.LastUsedTime = now
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	// Nothing to close for in-memory storage
	return nil
}
