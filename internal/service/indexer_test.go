package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/voice-engine-studio/memory-service/internal/model"
	"github.com/voice-engine-studio/memory-service/internal/plugin/store/memory"
)

func TestIndexBatchEmbedsAndUpserts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a, err := store.Create(ctx, "u1", "coffee lover", model.CategoryPreference)
	require.NoError(t, err)
	b, err := store.Create(ctx, "u2", "tea lover", model.CategoryPreference)
	require.NoError(t, err)

	index := &mapIndex{}
	emb := &keywordEmbedder{axes: []string{"coffee", "tea"}}
	ix := NewBackgroundIndexer(store, NewGateway(emb, nil, nil, GatewayOptions{}), index, time.Hour, 10)

	n, full := ix.IndexBatch(ctx)
	require.Equal(t, 2, n)
	require.False(t, full)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0}, snap[0].Embedding)

	require.Len(t, index.upserted, 2)
	require.Equal(t, a.ID, index.upserted[0].MemoryID)
	require.Equal(t, b.ID, index.upserted[1].MemoryID)
	require.Equal(t, "keyword", index.upserted[0].ModelName)

	n, _ = ix.IndexBatch(ctx)
	require.Zero(t, n)

	ix.Forget(ctx, "u1", a.ID)
	require.Equal(t, a.ID, index.deleted[0])
}

func TestIndexBatchLeavesPendingOnProviderFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.Create(ctx, "u1", "coffee lover", model.CategoryPreference)
	require.NoError(t, err)

	emb := &keywordEmbedder{axes: []string{"coffee"}, err: errProvider}
	ix := NewBackgroundIndexer(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, time.Hour, 10)

	n, _ := ix.IndexBatch(ctx)
	require.Zero(t, n)
	pending, err := store.PendingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestIndexerNotifyTriggersPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.New()
	emb := &keywordEmbedder{axes: []string{"coffee"}}
	ix := NewBackgroundIndexer(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, time.Hour, 1)

	done := make(chan struct{})
	go func() {
		ix.Start(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, "u1", "coffee", model.CategoryPreference)
		require.NoError(t, err)
	}
	ix.Notify()
	ix.Notify()

	// A batch size of 1 still drains the whole backlog in one pass.
	require.Eventually(t, func() bool {
		pending, err := store.PendingEmbeddings(ctx, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestIndexerDisabledWithoutEmbedder(t *testing.T) {
	ix := NewBackgroundIndexer(memory.New(), NewGateway(nil, nil, nil, GatewayOptions{}), nil, time.Hour, 10)
	done := make(chan struct{})
	go func() {
		ix.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately when embedding is disabled")
	}
}

func TestIndexerSkipsUnembeddableContent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, content := range []string{"!!!", "🍣🍣", "likes coffee"} {
		_, err := store.Create(ctx, "u1", content, model.CategoryPreference)
		require.NoError(t, err)
	}

	emb := &keywordEmbedder{axes: []string{"coffee"}, emptyOnMiss: true}
	ix := NewBackgroundIndexer(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, time.Hour, 2)

	n, more := ix.IndexBatch(ctx)
	require.Zero(t, n)
	require.True(t, more)

	n, more = ix.IndexBatch(ctx)
	require.Equal(t, 1, n)
	require.False(t, more)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.True(t, snap[0].Unembeddable)
	require.True(t, snap[1].Unembeddable)
	require.True(t, snap[2].Embedded())

	pending, err := store.PendingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestIndexerDrainPassesUnembeddableBacklog(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, content := range []string{"!!!", "???", "...", "likes coffee"} {
		_, err := store.Create(ctx, "u1", content, model.CategoryPreference)
		require.NoError(t, err)
	}

	emb := &keywordEmbedder{axes: []string{"coffee"}, emptyOnMiss: true}
	ix := NewBackgroundIndexer(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, time.Hour, 2)
	ix.drain(ctx)

	snap, err := store.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.True(t, snap[3].Embedded())
}

func TestIndexBatchRemovesVectorOfMemoryDeletedMidBatch(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	mem, err := inner.Create(ctx, "u1", "coffee lover", model.CategoryPreference)
	require.NoError(t, err)

	index := &mapIndex{}
	emb := &keywordEmbedder{axes: []string{"coffee"}}
	ix := NewBackgroundIndexer(deletingStore{inner}, NewGateway(emb, nil, nil, GatewayOptions{}), index, time.Hour, 10)

	n, _ := ix.IndexBatch(ctx)
	require.Equal(t, 1, n)
	require.Len(t, index.upserted, 1)
	require.Equal(t, []uuid.UUID{mem.ID}, index.deleted)
}
