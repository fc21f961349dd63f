package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelChatConfig_Validate(t *testing.T) {
	cfg := DefaultModelChat()
	require.NoError(t, cfg.Validate())

	cfg.Temperature = 10
	assert.NoError(t, cfg.Validate())

	cfg.Temperature = 10.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultModelChat()
	cfg.SearchMode = "fuzzy"
	assert.Error(t, cfg.Validate())

	cfg = DefaultModelChat()
	cfg.ChatModel = "gpt-5"
	assert.Error(t, cfg.Validate())
}

func TestModel_Validate(t *testing.T) {
	m := &Model{UserID: "u1", Name: "kb", Status: ModelStatusWaiting, Chat: DefaultModelChat()}
	require.NoError(t, m.Validate())

	m.Share.Intro = strings.Repeat("介", 151)
	assert.Error(t, m.Validate())

	m.Share.Intro = ""
	m.Status = "deleted"
	assert.Error(t, m.Validate())
}

func TestModel_IsOwner(t *testing.T) {
	m := &Model{UserID: "u1"}
	assert.True(t, m.IsOwner("u1"))
	assert.False(t, m.IsOwner("u2"))
	assert.False(t, (&Model{}).IsOwner(""))
}

func TestChatTitle(t *testing.T) {
	assert.Equal(t, "", ChatTitle(nil))
	assert.Equal(t, "hello", ChatTitle([]ChatItem{{Value: "hello"}}))
	assert.Equal(t, "这是一个非常长的问题这是一个非常长的问题", ChatTitle([]ChatItem{{Value: "这是一个非常长的问题这是一个非常长的问题还有更多"}}))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, 1.5, FormatPrice(150000))
	assert.Equal(t, 0.0, FormatPrice(0))
	assert.Less(t, FormatPrice(-1), 0.0)
}

func TestParseChatModel(t *testing.T) {
	m, err := ParseChatModel("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, ChatModelGPT4, m)

	_, err = ParseChatModel("llama")
	assert.Error(t, err)
}
