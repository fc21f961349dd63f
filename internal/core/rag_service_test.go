package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/store"
	"gwi.com/kbchat/internal/vector"
)

func testModel(mode store.SearchMode, systemPrompt string) *store.Model {
	chat := store.DefaultModelChat()
	chat.UseKB = true
	chat.SearchMode = mode
	chat.SystemPrompt = systemPrompt
	return &store.Model{ID: "m1", UserID: "owner", Name: "kb", Status: store.ModelStatusRunning, Chat: chat}
}

func conversation(turns ...string) []store.ChatItemSimple {
	out := make([]store.ChatItemSimple, len(turns))
	for i, t := range turns {
		role := store.RoleHuman
		if i%2 == 1 {
			role = store.RoleAI
		}
		out[i] = store.ChatItemSimple{Role: role, Value: t}
	}
	return out
}

func newTestRAG(e *fakeEmbedder, s *fakeSearcher) *RAGService {
	return NewRAGService(e, s, testSlicers(), RAGConfig{}, zap.NewNop())
}

func TestSearchQueries(t *testing.T) {
	q, err := SearchQueries(conversation("first", "answer", "second", "answer", "third"))
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, q)

	q, err = SearchQueries(conversation("only"))
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, q)

	q, err = SearchQueries(conversation("", "answer", "latest"))
	require.NoError(t, err)
	assert.Equal(t, []string{"latest"}, q)

	_, err = SearchQueries([]store.ChatItemSimple{{Role: store.RoleAI, Value: "hi"}})
	assert.Error(t, err)
}

func TestSearchKB_HighSimilarityWithKnowledge(t *testing.T) {
	e := &fakeEmbedder{}
	s := &fakeSearcher{results: [][]vector.Row{{row("x")}}}

	out, err := newTestRAG(e, s).SearchKB(context.Background(), SearchKBInput{
		UserKey: "sk-user",
		Prompts: conversation("what is x?"),
		Model:   testModel(store.SearchModeHighSimilarity, "be nice"),
		UserID:  "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, CodeProceed, out.Code)
	require.NotNil(t, out.SearchPrompt)
	assert.Equal(t, store.RoleSystem, out.SearchPrompt.Role)
	assert.Contains(t, out.SearchPrompt.Value, kbOnlyInstruction)
	assert.Contains(t, out.SearchPrompt.Value, "be nice")
	assert.Contains(t, out.SearchPrompt.Value, "q-x\na-x")

	require.Len(t, e.opts, 1)
	assert.Equal(t, "sk-user", e.opts[0].UserKey)
	require.Len(t, s.queries, 1)
	assert.Equal(t, store.ID("m1"), s.queries[0].ModelID)
	assert.Equal(t, vector.DefaultSimilarity, s.queries[0].Similarity)
	assert.Equal(t, vector.DefaultLimit, s.queries[0].Limit)
}

func TestSearchKB_HighSimilarityWithoutKnowledgeRefuses(t *testing.T) {
	for _, prompt := range []string{"", "you are helpful", "ignore the knowledge base"} {
		out, err := newTestRAG(&fakeEmbedder{}, &fakeSearcher{}).SearchKB(context.Background(), SearchKBInput{
			Prompts: conversation("anything"),
			Model:   testModel(store.SearchModeHighSimilarity, prompt),
		})
		require.NoError(t, err)
		assert.Equal(t, CodeDirectAnswer, out.Code)
		assert.Equal(t, &store.ChatItemSimple{Role: store.RoleAI, Value: RefusalText}, out.SearchPrompt)
	}
}

func TestSearchKB_NoContext(t *testing.T) {
	rag := newTestRAG(&fakeEmbedder{}, &fakeSearcher{})

	out, err := rag.SearchKB(context.Background(), SearchKBInput{
		Prompts: conversation("anything"),
		Model:   testModel(store.SearchModeNoContext, ""),
	})
	require.NoError(t, err)
	assert.Equal(t, CodeProceed, out.Code)
	assert.Nil(t, out.SearchPrompt)

	out, err = rag.SearchKB(context.Background(), SearchKBInput{
		Prompts: conversation("anything"),
		Model:   testModel(store.SearchModeNoContext, "plain prompt"),
	})
	require.NoError(t, err)
	assert.Equal(t, &store.ChatItemSimple{Role: store.RoleSystem, Value: "plain prompt"}, out.SearchPrompt)

	withKnowledge := newTestRAG(&fakeEmbedder{}, &fakeSearcher{results: [][]vector.Row{{row("x")}}})
	out, err = withKnowledge.SearchKB(context.Background(), SearchKBInput{
		Prompts: conversation("anything"),
		Model:   testModel(store.SearchModeNoContext, "plain prompt"),
	})
	require.NoError(t, err)
	assert.Equal(t, CodeProceed, out.Code)
	assert.NotContains(t, out.SearchPrompt.Value, kbOnlyInstruction)
	assert.Contains(t, out.SearchPrompt.Value, "q-x\na-x")
}

func TestSearchKB_LowSimilarityWithoutKnowledgeInjectsEmptyContext(t *testing.T) {
	out, err := newTestRAG(&fakeEmbedder{}, &fakeSearcher{}).SearchKB(context.Background(), SearchKBInput{
		Prompts: conversation("anything"),
		Model:   testModel(store.SearchModeLowSimilarity, "p"),
	})
	require.NoError(t, err)
	assert.Equal(t, CodeProceed, out.Code)
	assert.Equal(t, "\np\n\nKnowledge base content: ''\n", out.SearchPrompt.Value)
}

func TestSearchKB_LatestQueryWinsSharedChunk(t *testing.T) {
	e := &fakeEmbedder{}
	s := &fakeSearcher{results: [][]vector.Row{
		{row("x"), row("y")},
		{row("y"), row("z")},
	}}

	out, err := newTestRAG(e, s).SearchKB(context.Background(), SearchKBInput{
		Prompts: conversation("older", "answer", "newer"),
		Model:   testModel(store.SearchModeLowSimilarity, ""),
	})
	require.NoError(t, err)

	require.Len(t, e.calls, 1)
	assert.Equal(t, []string{"newer", "older"}, e.calls[0])
	assert.Len(t, s.queries, 2)

	v := out.SearchPrompt.Value
	assert.Less(t, strings.Index(v, "q-x"), strings.Index(v, "q-y"))
	assert.Less(t, strings.Index(v, "q-y"), strings.Index(v, "q-z"))
	assert.Equal(t, 1, strings.Count(v, "q-y"))
}

func TestSearchKB_SimilarityOverride(t *testing.T) {
	s := &fakeSearcher{}
	_, err := newTestRAG(&fakeEmbedder{}, s).SearchKB(context.Background(), SearchKBInput{
		Prompts:    conversation("q"),
		Model:      testModel(store.SearchModeNoContext, ""),
		Similarity: 0.35,
	})
	require.NoError(t, err)
	require.Len(t, s.queries, 1)
	assert.Equal(t, 0.35, s.queries[0].Similarity)
}

func TestSearchKB_PropagatesFailures(t *testing.T) {
	upstream := apperr.New(apperr.Upstream, "embed", errors.New("boom"))
	_, err := newTestRAG(&fakeEmbedder{err: upstream}, &fakeSearcher{}).SearchKB(context.Background(), SearchKBInput{
		Prompts: conversation("q"),
		Model:   testModel(store.SearchModeHighSimilarity, ""),
	})
	assert.True(t, apperr.Is(err, apperr.Upstream))

	storage := apperr.New(apperr.Storage, "search", errors.New("down"))
	_, err = newTestRAG(&fakeEmbedder{}, &fakeSearcher{err: storage}).SearchKB(context.Background(), SearchKBInput{
		Prompts: conversation("q", "a", "q2"),
		Model:   testModel(store.SearchModeHighSimilarity, ""),
	})
	assert.True(t, apperr.Is(err, apperr.Storage))
}

func TestSearchKB_Validation(t *testing.T) {
	rag := newTestRAG(&fakeEmbedder{}, &fakeSearcher{})

	_, err := rag.SearchKB(context.Background(), SearchKBInput{Prompts: conversation("q")})
	assert.True(t, apperr.Is(err, apperr.Validation))

	_, err = rag.SearchKB(context.Background(), SearchKBInput{Model: testModel(store.SearchModeHighSimilarity, "")})
	assert.True(t, apperr.Is(err, apperr.Validation))

	m := testModel(store.SearchModeHighSimilarity, "")
	m.Chat.ChatModel = "llama"
	_, err = rag.SearchKB(context.Background(), SearchKBInput{Prompts: conversation("q"), Model: m})
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestBuildSearchPrompt_Layout(t *testing.T) {
	chat := store.DefaultModelChat()
	chat.SystemPrompt = "sys"

	out := BuildSearchPrompt("facts", chat)
	assert.Equal(t, CodeProceed, out.Code)
	assert.Equal(t, "\nsys\n"+kbOnlyInstruction+"\nKnowledge base content: 'facts'\n", out.SearchPrompt.Value)
}
