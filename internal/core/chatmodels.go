package core

import "gwi.com/kbchat/internal/store"

type ModelFamily string

const (
	FamilyOpenAI ModelFamily = "openai"
	FamilyClaude ModelFamily = "claude"
)

// ChatModelSpec holds the fixed limits of a completion model.
type ChatModelSpec struct {
	Model           store.ChatModel
	Name            string
	Family          ModelFamily
	ContextMaxToken int
	SystemMaxToken  int // budget for injected knowledge base text
	MaxTemperature  float64
	Price           float64
	// PersonalKey reports whether a caller's own credential may pay for this model.
	PersonalKey bool
}

// LookupChatModel is a pure mapping; unknown models report false.
func LookupChatModel(m store.ChatModel) (ChatModelSpec, bool) {
	switch m {
	case store.ChatModelGPT35:
		return ChatModelSpec{Model: m, Name: "ChatGpt", Family: FamilyOpenAI, ContextMaxToken: 4096, SystemMaxToken: 2400, MaxTemperature: 1.2, Price: 2.5, PersonalKey: true}, true
	case store.ChatModelGPT4:
		return ChatModelSpec{Model: m, Name: "Gpt4", Family: FamilyOpenAI, ContextMaxToken: 8000, SystemMaxToken: 3600, MaxTemperature: 1.2, Price: 50, PersonalKey: true}, true
	case store.ChatModelGPT432k:
		return ChatModelSpec{Model: m, Name: "Gpt4-32k", Family: FamilyOpenAI, ContextMaxToken: 32000, SystemMaxToken: 8000, MaxTemperature: 1.2, Price: 90, PersonalKey: true}, true
	case store.ChatModelClaude:
		return ChatModelSpec{Model: m, Name: "Claude", Family: FamilyClaude, ContextMaxToken: 9000, SystemMaxToken: 2500, MaxTemperature: 1, Price: 0, PersonalKey: false}, true
	}
	return ChatModelSpec{}, false
}
