package core

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"gwi.com/kbchat/internal/store"
)

// Slicer cuts text down to at most n tokens of a model's tokenization.
type Slicer interface {
	Slice(text string, n int) string
}

type tiktokenSlicer struct {
	enc *tiktoken.Tiktoken
}

func (s tiktokenSlicer) Slice(text string, n int) string {
	if n <= 0 || text == "" {
		return ""
	}
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) <= n {
		return text
	}
	// a cut can land inside a multi-byte character
	return strings.ToValidUTF8(s.enc.Decode(tokens[:n]), "")
}

// runeSlicer counts one token per character.
type runeSlicer struct{}

func (runeSlicer) Slice(text string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

// Slicers maps each chat model to its tokenizer. Built once at start-up, read-only afterwards.
type Slicers map[store.ChatModel]Slicer

func NewSlicers() (Slicers, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return nil, fmt.Errorf("failed to load cl100k encoding: %w", err)
	}
	gpt := tiktokenSlicer{enc: enc}
	return Slicers{
		store.ChatModelGPT35:   gpt,
		store.ChatModelGPT4:    gpt,
		store.ChatModelGPT432k: gpt,
		store.ChatModelClaude:  runeSlicer{},
	}, nil
}

func (s Slicers) For(m store.ChatModel) (Slicer, bool) {
	sl, ok := s[m]
	return sl, ok
}
