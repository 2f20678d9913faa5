package metrics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voice-engine-studio/memory-service/internal/model"
	"github.com/voice-engine-studio/memory-service/internal/plugin/store/memory"
	"github.com/voice-engine-studio/memory-service/internal/plugin/store/metrics"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
)

// The wrapper must be usable before metrics are registered.
func TestWrapDelegates(t *testing.T) {
	ctx := context.Background()
	s := metrics.Wrap(memory.New())

	created, err := s.Create(ctx, "u1", "likes tea", model.CategoryPreference)
	require.NoError(t, err)

	list, err := s.List(ctx, "u1", registrystore.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	pending, err := s.PendingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.SetEmbedding(ctx, "u1", created.ID, []float32{1}))
	snap, err := s.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.True(t, snap[0].Embedded())

	blank, err := s.Create(ctx, "u1", "!!!", model.CategoryContext)
	require.NoError(t, err)
	require.NoError(t, s.MarkUnembeddable(ctx, "u1", blank.ID))
	pending, err = s.PendingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, s.Delete(ctx, "u1", created.ID))
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, s.Delete(ctx, "u1", created.ID), &nf)
}
