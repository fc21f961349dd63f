package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is an opaque entity identity. Compare with ==, never via formatting.
type ID string

func NewID() ID { return ID(uuid.NewString()) }

func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

type ChatModel string

const (
	ChatModelGPT35   ChatModel = "gpt-3.5-turbo"
	ChatModelGPT4    ChatModel = "gpt-4"
	ChatModelGPT432k ChatModel = "gpt-4-32k"
	ChatModelClaude  ChatModel = "Claude"
)

func ParseChatModel(s string) (ChatModel, error) {
	switch m := ChatModel(s); m {
	case ChatModelGPT35, ChatModelGPT4, ChatModelGPT432k, ChatModelClaude:
		return m, nil
	}
	return "", fmt.Errorf("unknown chat model %q", s)
}

type SearchMode string

const (
	SearchModeHighSimilarity SearchMode = "hightSimilarity"
	SearchModeLowSimilarity  SearchMode = "lowSimilarity"
	SearchModeNoContext      SearchMode = "noContext"
)

func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeHighSimilarity, SearchModeLowSimilarity, SearchModeNoContext:
		return true
	}
	return false
}

type ModelStatus string

const (
	ModelStatusWaiting  ModelStatus = "waiting"
	ModelStatusRunning  ModelStatus = "running"
	ModelStatusTraining ModelStatus = "training"
	ModelStatusClosed   ModelStatus = "closed"
)

type ChatRole string

const (
	RoleHuman  ChatRole = "Human"
	RoleAI     ChatRole = "AI"
	RoleSystem ChatRole = "System"
)

const (
	MaxTemperature = 10
	maxIntroLen    = 150
	chatTitleLen   = 20

	// PriceScale converts stored balances into the normalized price format.
	PriceScale = 100000
)

type ModelChatConfig struct {
	UseKB        bool       `json:"useKb" bson:"useKb"`
	SearchMode   SearchMode `json:"searchMode" bson:"searchMode"`
	SystemPrompt string     `json:"systemPrompt" bson:"systemPrompt"`
	Temperature  float64    `json:"temperature" bson:"temperature"`
	ChatModel    ChatModel  `json:"chatModel" bson:"chatModel"`
}

func DefaultModelChat() ModelChatConfig {
	return ModelChatConfig{
		UseKB:        false,
		SearchMode:   SearchModeHighSimilarity,
		SystemPrompt: "",
		Temperature:  0,
		ChatModel:    ChatModelGPT35,
	}
}

func (c ModelChatConfig) Validate() error {
	if !c.SearchMode.Valid() {
		return fmt.Errorf("invalid search mode %q", c.SearchMode)
	}
	if c.Temperature < 0 || c.Temperature > MaxTemperature {
		return fmt.Errorf("temperature %v out of range [0,%d]", c.Temperature, MaxTemperature)
	}
	if _, err := ParseChatModel(string(c.ChatModel)); err != nil {
		return err
	}
	return nil
}

type ModelShareConfig struct {
	IsShare       bool   `json:"isShare" bson:"isShare"`
	IsShareDetail bool   `json:"isShareDetail" bson:"isShareDetail"` // false: only name and intro are visible
	Intro         string `json:"intro" bson:"intro"`
	Collection    int    `json:"collection" bson:"collection"`
}

type ModelSecurityConfig struct {
	Domain        []string      `json:"domain" bson:"domain"`
	ContextMaxLen int           `json:"contextMaxLen" bson:"contextMaxLen"`
	ContentMaxLen int           `json:"contentMaxLen" bson:"contentMaxLen"`
	ExpiredTime   time.Duration `json:"expiredTime" bson:"expiredTime"`
	MaxLoadAmount int           `json:"maxLoadAmount" bson:"maxLoadAmount"` // negative: unlimited
}

func DefaultModelSecurity() ModelSecurityConfig {
	return ModelSecurityConfig{
		Domain:        []string{"*"},
		ContextMaxLen: 20,
		ContentMaxLen: 4000,
		ExpiredTime:   time.Hour,
		MaxLoadAmount: -1,
	}
}

// Model is a knowledge-base-backed chat configuration.
type Model struct {
	ID         ID                  `json:"_id" bson:"_id"`
	UserID     ID                  `json:"userId" bson:"userId"`
	Name       string              `json:"name" bson:"name"`
	Avatar     string              `json:"avatar" bson:"avatar"`
	Status     ModelStatus         `json:"status" bson:"status"`
	UpdateTime time.Time           `json:"updateTime" bson:"updateTime"`
	Chat       ModelChatConfig     `json:"chat" bson:"chat"`
	Share      ModelShareConfig    `json:"share" bson:"share"`
	Security   ModelSecurityConfig `json:"security" bson:"security"`
}

func (m *Model) Validate() error {
	if m.UserID.IsZero() {
		return fmt.Errorf("model owner is required")
	}
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	switch m.Status {
	case ModelStatusWaiting, ModelStatusRunning, ModelStatusTraining, ModelStatusClosed:
	default:
		return fmt.Errorf("invalid model status %q", m.Status)
	}
	if len([]rune(m.Share.Intro)) > maxIntroLen {
		return fmt.Errorf("intro longer than %d characters", maxIntroLen)
	}
	return m.Chat.Validate()
}

// Clone returns a deep copy so callers can redact without touching stored state.
func (m *Model) Clone() *Model {
	c := *m
	if m.Security.Domain != nil {
		c.Security.Domain = append([]string(nil), m.Security.Domain...)
	}
	return &c
}

func (m *Model) IsOwner(userID ID) bool {
	return !userID.IsZero() && m.UserID == userID
}

type ChatItem struct {
	ID           ID       `json:"_id" bson:"_id"`
	Role         ChatRole `json:"obj" bson:"obj"`
	Value        string   `json:"value" bson:"value"`
	SystemPrompt string   `json:"systemPrompt,omitempty" bson:"systemPrompt,omitempty"`
}

type ChatItemSimple struct {
	Role  ChatRole `json:"obj" bson:"obj"`
	Value string   `json:"value" bson:"value"`
}

type Chat struct {
	ID         ID         `json:"_id" bson:"_id"`
	UserID     ID         `json:"userId" bson:"userId"`
	ModelID    ID         `json:"modelId" bson:"modelId"`
	Content    []ChatItem `json:"content" bson:"content"`
	Title      string     `json:"title" bson:"title"`
	LoadAmount int        `json:"loadAmount" bson:"loadAmount"`
	UpdateTime time.Time  `json:"updateTime" bson:"updateTime"`
}

// ChatTitle derives a chat title from its first turn.
func ChatTitle(items []ChatItem) string {
	if len(items) == 0 {
		return ""
	}
	r := []rune(items[0].Value)
	if len(r) > chatTitleLen {
		r = r[:chatTitleLen]
	}
	return string(r)
}

type Promotion struct {
	Rate float64 `json:"rate" bson:"rate"`
}

type User struct {
	ID        ID        `json:"_id" bson:"_id"`
	Username  string    `json:"username" bson:"username"`
	OpenAIKey string    `json:"-" bson:"openaiKey"`
	Balance   int64     `json:"balance" bson:"balance"`
	Promotion Promotion `json:"promotion" bson:"promotion"`
}

// FormatPrice converts a stored balance into the normalized price format.
func FormatPrice(balance int64) float64 {
	return float64(balance) / PriceScale
}

// APICredential is an open-API key issued to a user.
type APICredential struct {
	ID           ID        `json:"_id" bson:"_id"`
	UserID       ID        `json:"userId" bson:"userId"`
	APIKey       string    `json:"-" bson:"apiKey"`
	CreateTime   time.Time `json:"createTime" bson:"createTime"`
	LastUsedTime time.Time `json:"lastUsedTime" bson:"lastUsedTime"`
}
