package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	registrycache "github.com/voice-engine-studio/memory-service/internal/registry/cache"
	"github.com/voice-engine-studio/memory-service/internal/testutil/testredis"
)

func TestRedisEmbeddingCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	url := testredis.StartRedis(t)
	c, err := LoadFromURLWithTTL(ctx, url, time.Minute)
	require.NoError(t, err)
	require.True(t, c.Available())

	key := registrycache.EmbeddingKey("hashed-bigram-v1", "likes coffee")
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, c.Set(ctx, key, []float32{0.5, -0.25}, 0))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, -0.25}, got)
}

func TestLoadRequiresURL(t *testing.T) {
	_, err := load(context.Background())
	require.ErrorContains(t, err, "MEMORY_SERVICE_REDIS_URL")
}
