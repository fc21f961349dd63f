package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
)

func TestQuery_Normalize(t *testing.T) {
	q := Query{}.Normalize()
	assert.Equal(t, DefaultSimilarity, q.Similarity)
	assert.Equal(t, DefaultLimit, q.Limit)

	q = Query{Similarity: 0.5, Limit: 3}.Normalize()
	assert.Equal(t, 0.5, q.Similarity)
	assert.Equal(t, 3, q.Limit)
}

func TestSearchSQL(t *testing.T) {
	q, err := searchSQL("")
	require.NoError(t, err)
	assert.Contains(t, q, "FROM modelData")
	assert.Contains(t, q, "vector <=> $1 < $4")
	assert.Contains(t, q, "ORDER BY vector <=> $1")
	assert.Contains(t, q, "LIMIT $5")

	_, err = searchSQL("modelData; DROP TABLE users")
	assert.Error(t, err)
}

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "kb.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSQLiteIndex_Search(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	chunks := []Chunk{
		{ID: "near", ModelID: "m1", Q: "q-near", A: "a-near", Embedding: []float32{1, 0.05}},
		{ID: "exact", ModelID: "m1", Q: "q-exact", A: "a-exact", Embedding: []float32{1, 0}},
		{ID: "far", ModelID: "m1", Q: "q-far", A: "a-far", Embedding: []float32{0, 1}},
		{ID: "pending", ModelID: "m1", Q: "q-pending", A: "a", Status: StatusWaiting, Embedding: []float32{1, 0}},
		{ID: "other-model", ModelID: "m2", Q: "q-other", A: "a", Embedding: []float32{1, 0}},
	}
	for _, c := range chunks {
		require.NoError(t, idx.Insert(ctx, c))
	}

	rows, err := idx.Search(ctx, Query{Vector: []float32{1, 0}, ModelID: "m1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "exact", rows[0].ID)
	assert.Equal(t, "near", rows[1].ID)
	assert.Less(t, rows[0].Distance, rows[1].Distance)
}

func TestSQLiteIndex_SearchLimit(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		require.NoError(t, idx.Insert(ctx, Chunk{ID: fmt.Sprintf("c%02d", i), ModelID: "m1", Q: "q", A: "a", Embedding: []float32{1, float32(i) / 1000}}))
	}

	rows, err := idx.Search(ctx, Query{Vector: []float32{1, 0}, ModelID: "m1"})
	require.NoError(t, err)
	assert.Len(t, rows, DefaultLimit)
	assert.Equal(t, "c00", rows[0].ID)
}

func TestSQLiteIndex_SearchValidation(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Search(context.Background(), Query{ModelID: "m1"})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}
