package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	require.Equal(t, []string{"likes", "coffee"}, tokenize("  Likes COFFEE! "))
	require.Equal(t, []string{"コー", "ーヒ", "ヒー", "ーが", "が好", "好き"}, tokenize("コーヒーが好き"))
	require.Equal(t, []string{"acme", "で働"}, tokenize("Acmeで働"))
	require.Equal(t, []string{"猫"}, tokenize("猫"))
	require.Nil(t, tokenize("   "))
}

func TestEmbedTexts(t *testing.T) {
	e := &LocalEmbedder{}
	vecs, err := e.EmbedTexts(context.Background(), []string{"likes coffee", "", "likes coffee"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	require.Len(t, vecs[0], dimension)
	require.Nil(t, vecs[1])
	require.Equal(t, vecs[0], vecs[2])

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}
