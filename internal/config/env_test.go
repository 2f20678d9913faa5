package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MEMORY_SERVICE_HTTP_MAX_BODY_SIZE", "2M")
	t.Setenv("MEMORY_SERVICE_CACHE_EMBEDDING_TTL", "PT2H")
	t.Setenv("MEMORY_SERVICE_INDEXER_INTERVAL", "10s")
	t.Setenv("MEMORY_SERVICE_VECTOR_MIGRATE_AT_START", "false")
	t.Setenv("MEMORY_SERVICE_VECTOR_QDRANT_COLLECTION_NAME", "voice-memories")
	t.Setenv("MEMORY_SERVICE_VECTOR_QDRANT_USE_TLS", "true")

	cfg := DefaultConfig()
	err := cfg.ApplyEnvOverrides()
	require.NoError(t, err)

	require.Equal(t, int64(2*1024*1024), cfg.MaxBodySize)
	require.Equal(t, 2*time.Hour, cfg.CacheEmbeddingTTL)
	require.Equal(t, 10*time.Second, cfg.IndexerInterval)
	require.False(t, cfg.VectorMigrateAtStart)
	require.Equal(t, "voice-memories", cfg.QdrantCollectionName)
	require.True(t, cfg.QdrantUseTLS)
}

func TestApplyEnvOverrides_InvalidDuration(t *testing.T) {
	t.Setenv("MEMORY_SERVICE_INDEXER_INTERVAL", "soon")

	cfg := DefaultConfig()
	require.ErrorContains(t, cfg.ApplyEnvOverrides(), "MEMORY_SERVICE_INDEXER_INTERVAL")
}

func TestApplyEnvOverrides_VendorKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("ANTHROPIC_API_KEY", "ak-from-env")

	cfg := DefaultConfig()
	cfg.AnthropicAPIKey = "ak-from-flag"
	require.NoError(t, cfg.ApplyEnvOverrides())

	require.Equal(t, "sk-from-env", cfg.OpenAIAPIKey)
	require.Equal(t, "ak-from-flag", cfg.AnthropicAPIKey)
}

func TestQdrantAddress_Defaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "localhost:6334", cfg.QdrantAddress())
}

func TestQdrantAddress_UsesPortFromHostWhenProvided(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QdrantHost = "localhost:7443"
	cfg.QdrantPort = 6334

	require.Equal(t, "localhost:7443", cfg.QdrantAddress())
}

func TestQdrantAddress_UsesHostPortFromURLWhenProvided(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QdrantHost = "http://localhost:9443"
	cfg.QdrantPort = 6334

	require.Equal(t, "localhost:9443", cfg.QdrantAddress())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "memory", cfg.DatastoreType)
	require.Equal(t, "none", cfg.EmbedType)
	require.Equal(t, "none", cfg.CompletionType)
	require.Equal(t, 8000, cfg.Listener.Port)
	require.Equal(t, "http://localhost:3000", cfg.CORSOrigins)
}
