package chromem

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"
)

func TestIndexScopesByUserAndRanks(t *testing.T) {
	ctx := context.Background()
	idx := New()

	near, far, other := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, idx.Upsert(ctx, []registryvector.UpsertRequest{
		{UserID: "u1", MemoryID: near, Embedding: []float32{1, 0}},
		{UserID: "u1", MemoryID: far, Embedding: []float32{0, 1}},
		{UserID: "u2", MemoryID: other, Embedding: []float32{1, 0}},
	}))

	results, err := idx.Search(ctx, "u1", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, near, results[0].MemoryID)
	require.InDelta(t, 1.0, results[0].Score, 1e-5)
	require.Equal(t, far, results[1].MemoryID)

	results, err = idx.Search(ctx, "nobody", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestIndexUpsertReplacesAndDeletes(t *testing.T) {
	ctx := context.Background()
	idx := New()
	id := uuid.New()

	require.NoError(t, idx.Upsert(ctx, []registryvector.UpsertRequest{{UserID: "u1", MemoryID: id, Embedding: []float32{0, 1}}}))
	require.NoError(t, idx.Upsert(ctx, []registryvector.UpsertRequest{{UserID: "u1", MemoryID: id, Embedding: []float32{1, 0}}}))

	results, err := idx.Search(ctx, "u1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 1.0, results[0].Score, 1e-5)

	require.NoError(t, idx.Delete(ctx, "u1", id))
	require.NoError(t, idx.Delete(ctx, "u2", id))
	results, err = idx.Search(ctx, "u1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}
