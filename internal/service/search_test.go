package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/voice-engine-studio/memory-service/internal/model"
	"github.com/voice-engine-studio/memory-service/internal/plugin/store/memory"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
)

func seed(t *testing.T, s *memory.Store, user string, items ...string) []model.Memory {
	t.Helper()
	var out []model.Memory
	for _, c := range items {
		m, err := s.Create(context.Background(), user, c, model.CategoryPreference)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func contentsOf(ms []model.Memory) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Content
	}
	return out
}

func TestSearchBaselineIsCaseInsensitiveSubstring(t *testing.T) {
	store := memory.New()
	seed(t, store, "u1", "Likes Coffee", "Hates tea", "coffee at 8am")
	engine := NewSearchEngine(store, nil, nil, 0)

	got, err := engine.Search(context.Background(), "u1", "COFFEE", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Likes Coffee", "coffee at 8am"}, contentsOf(got))

	got, err = engine.Search(context.Background(), "u1", "juice", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	got, err = engine.Search(context.Background(), "nobody", "coffee", 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSearchLimit(t *testing.T) {
	store := memory.New()
	for i := 0; i < 25; i++ {
		seed(t, store, "u1", "coffee")
	}
	engine := NewSearchEngine(store, nil, nil, 0)

	got, err := engine.Search(context.Background(), "u1", "coffee", 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultSearchLimit)

	got, err = engine.Search(context.Background(), "u1", "coffee", 20)
	require.NoError(t, err)
	require.Len(t, got, 20)

	for _, bad := range []int{-1, 21} {
		_, err = engine.Search(context.Background(), "u1", "coffee", bad)
		var verr *registrystore.ValidationError
		require.True(t, errors.As(err, &verr))
	}
}

func TestSearchRanksEmbeddedThenAppendsBaseline(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ms := seed(t, store, "u1", "drinks tea daily", "coffee and tea", "coffee lover", "unindexed coffee note", "plans a trip")
	// Embed all but the fourth memory.
	emb := &keywordEmbedder{axes: []string{"coffee", "tea"}}
	for i, m := range ms {
		if i == 3 {
			continue
		}
		vecs, err := emb.EmbedTexts(ctx, []string{m.Content})
		require.NoError(t, err)
		require.NoError(t, store.SetEmbedding(ctx, "u1", m.ID, vecs[0]))
	}

	engine := NewSearchEngine(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, 0)
	got, err := engine.Search(ctx, "u1", "coffee", 10)
	require.NoError(t, err)
	// "coffee lover" scores 1, "coffee and tea" 0.707, the rest 0 in stored
	// order; the unembedded memory matches the substring and comes last.
	require.Equal(t, []string{
		"coffee lover",
		"coffee and tea",
		"drinks tea daily",
		"plans a trip",
		"unindexed coffee note",
	}, contentsOf(got))
}

func TestSearchMinSimilarity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ms := seed(t, store, "u1", "coffee lover", "plans a trip")
	emb := &keywordEmbedder{axes: []string{"coffee", "trip"}}
	for _, m := range ms {
		vecs, _ := emb.EmbedTexts(ctx, []string{m.Content})
		require.NoError(t, store.SetEmbedding(ctx, "u1", m.ID, vecs[0]))
	}

	engine := NewSearchEngine(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, 0.5)
	got, err := engine.Search(ctx, "u1", "coffee", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"coffee lover"}, contentsOf(got))
}

func TestSearchFallsBackWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ms := seed(t, store, "u1", "coffee lover", "plans a trip")
	require.NoError(t, store.SetEmbedding(ctx, "u1", ms[1].ID, []float32{1, 0}))

	emb := &keywordEmbedder{axes: []string{"coffee", "trip"}, err: errProvider}
	engine := NewSearchEngine(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, 0)
	got, err := engine.Search(ctx, "u1", "coffee", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"coffee lover"}, contentsOf(got))
}

func TestSearchDimensionMismatchUsesBaseline(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ms := seed(t, store, "u1", "coffee lover", "tea lover")
	require.NoError(t, store.SetEmbedding(ctx, "u1", ms[0].ID, []float32{1, 0, 0}))
	require.NoError(t, store.SetEmbedding(ctx, "u1", ms[1].ID, []float32{0, 1}))

	emb := &keywordEmbedder{axes: []string{"coffee", "tea"}}
	engine := NewSearchEngine(store, NewGateway(emb, nil, nil, GatewayOptions{}), nil, 0)
	got, err := engine.Search(ctx, "u1", "coffee", 10)
	require.NoError(t, err)
	// tea lover is ranked (score 0); coffee lover has a 3-dim vector and
	// is matched by substring after the ranked set.
	require.Equal(t, []string{"tea lover", "coffee lover"}, contentsOf(got))
}

func TestSearchUsesVectorIndexScores(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ms := seed(t, store, "u1", "alpha", "beta", "gamma coffee")
	for _, m := range ms {
		require.NoError(t, store.SetEmbedding(ctx, "u1", m.ID, []float32{1, 0}))
	}
	index := &mapIndex{scores: map[uuid.UUID]float64{ms[0].ID: 0.2, ms[1].ID: 0.9}}

	emb := &keywordEmbedder{axes: []string{"coffee", "tea"}}
	engine := NewSearchEngine(store, NewGateway(emb, nil, nil, GatewayOptions{}), index, 0)
	got, err := engine.Search(ctx, "u1", "coffee", 10)
	require.NoError(t, err)
	// gamma is missing from the index and falls through to the substring match.
	require.Equal(t, []string{"beta", "alpha", "gamma coffee"}, contentsOf(got))

	// A failing index falls back to in-process cosine; all tie at 1.
	index.err = errProvider
	got, err = engine.Search(ctx, "u1", "coffee", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta", "gamma coffee"}, contentsOf(got))
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, cosine([]float32{1, 1}, []float32{2, 2}), 1e-9)
	require.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}
