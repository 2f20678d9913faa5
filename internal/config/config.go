package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the memory service.
type Config struct {
	// Datastore backend type. Only "memory" ships; records live for the process lifetime.
	DatastoreType string

	// Embedding type
	EmbedType string // "none", "local", or "openai"

	// OpenAI
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModelName       string // embedding model
	OpenAIDimensions      int
	OpenAICompletionModel string

	// Completion type
	CompletionType string // "none", "openai", or "anthropic"

	// Anthropic
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	// CompletionMaxTokens caps the size of extraction responses.
	CompletionMaxTokens int

	// Provider call guards. A call exceeding any of these degrades to an empty result.
	ProviderTimeout        time.Duration
	ProviderRateLimit      float64 // requests per second; 0 disables the limiter
	ProviderRateBurst      int
	ProviderMaxConcurrency int64

	// Vector index type
	VectorType string // "chromem", "qdrant", or "" (in-process cosine only)

	// Run vector migrations on startup.
	VectorMigrateAtStart bool

	// Qdrant
	QdrantHost             string
	QdrantPort             int
	QdrantCollectionPrefix string
	QdrantCollectionName   string
	QdrantAPIKey           string
	QdrantUseTLS           bool
	QdrantStartupTimeout   time.Duration

	// Embedding cache
	CacheType         string // "local", "redis", or "none"
	RedisURL          string
	CacheEmbeddingTTL time.Duration
	LocalCacheMaxCost int64

	// Background indexer
	IndexerInterval  time.Duration
	IndexerBatchSize int

	// SearchMinSimilarity drops ranked results scoring below it. 0 disables the threshold.
	SearchMinSimilarity float64

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=memory-service".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port (or MEMORY_SERVICE_MANAGEMENT_PORT)
	// was explicitly provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints (/health, /ready, /metrics).
	// Disabled by default to suppress high-frequency probe noise from the access log.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:          "memory",
		EmbedType:              "none",
		OpenAIBaseURL:          "https://api.openai.com/v1",
		OpenAIModelName:        "text-embedding-3-small",
		OpenAICompletionModel:  "gpt-4o",
		CompletionType:         "none",
		AnthropicModel:         "claude-sonnet-4-5",
		CompletionMaxTokens:    1024,
		ProviderTimeout:        30 * time.Second,
		ProviderRateBurst:      1,
		ProviderMaxConcurrency: 8,
		VectorType:             "",
		VectorMigrateAtStart:   true,
		QdrantHost:             "localhost",
		QdrantPort:             6334,
		QdrantCollectionPrefix: "memory-service",
		QdrantStartupTimeout:   30 * time.Second,
		CacheType:              "none",
		CacheEmbeddingTTL:      time.Hour,
		LocalCacheMaxCost:      64 * 1024 * 1024,
		IndexerInterval:        5 * time.Second,
		IndexerBatchSize:       100,
		Listener: ListenerConfig{
			Port:              8000,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		CORSEnabled:  true,
		CORSOrigins:  "http://localhost:3000",
		MaxBodySize:  1024 * 1024,
		DrainTimeout: 30,
	}
}
