//go:build cgo

package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *SQLiteVec {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	idx, err := NewSQLiteVec(path, 4)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpsertAndQueryIsIsolatedByConversation(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "conv-a", []Chunk{
		{ChunkID: "a1", LineFirst: 1, LineLast: 2, Text: "hello", Embedding: []float32{1, 0, 0, 0}},
	}))
	require.NoError(t, idx.Upsert(ctx, "conv-b", []Chunk{
		{ChunkID: "b1", LineFirst: 1, LineLast: 2, Text: "world", Embedding: []float32{1, 0, 0, 0}},
	}))

	results, err := idx.Query(ctx, "conv-a", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, "b1", r.ChunkID)
	}
}

func TestUpsertIsIdempotentByChunkID(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	chunk := Chunk{ChunkID: "c1", LineFirst: 1, LineLast: 1, Text: "first", Embedding: []float32{0, 1, 0, 0}}
	require.NoError(t, idx.Upsert(ctx, "conv", []Chunk{chunk}))

	chunk.Text = "updated"
	require.NoError(t, idx.Upsert(ctx, "conv", []Chunk{chunk}))

	results, err := idx.Query(ctx, "conv", []float32{0, 1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "updated", results[0].Text)
}

func TestDropRemovesConversation(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "conv", []Chunk{
		{ChunkID: "c1", LineFirst: 1, LineLast: 1, Text: "x", Embedding: []float32{1, 1, 1, 1}},
	}))
	require.NoError(t, idx.Drop(ctx, "conv"))

	results, err := idx.Query(ctx, "conv", []float32{1, 1, 1, 1}, 10)
	require.NoError(t, err)
	require.Empty(t, results)
}
