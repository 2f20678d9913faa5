package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"github.com/voice-engine-studio/memory-service/internal/config"
	registrycache "github.com/voice-engine-studio/memory-service/internal/registry/cache"
	registrycomplete "github.com/voice-engine-studio/memory-service/internal/registry/complete"
	registryembed "github.com/voice-engine-studio/memory-service/internal/registry/embed"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"

	// Import all plugins to trigger init() registration
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/cache/local"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/cache/noop"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/cache/redis"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/complete/anthropic"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/complete/disabled"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/complete/openai"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/embed/disabled"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/embed/local"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/embed/openai"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/route/system"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/store/memory"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/vector/chromem"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/vector/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the memory service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnvOverrides(); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file for single-port TLS mode",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file for single-port TLS mode",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Value:       cfg.CORSEnabled,
			Usage:       "Emit CORS headers for the configured origins",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_CORS_ORIGINS", "CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Value:       cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty allows any",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Store ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "store-kind",
			Category:    "Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_STORE_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Memory store (" + strings.Join(registrystore.Names(), "|") + ")",
		},

		// ── Embedding Cache ───────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Embedding cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-hosts",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_REDIS_HOSTS"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.Int64Flag{
			Name:        "cache-local-max-cost",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_CACHE_LOCAL_MAX_COST"),
			Destination: &cfg.LocalCacheMaxCost,
			Value:       cfg.LocalCacheMaxCost,
			Usage:       "Approximate byte budget of the local embedding cache",
		},

		// ── Vector Index ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Index:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector index (" + strings.Join(registryvector.Names(), "|") + "); empty ranks in process",
		},
		&cli.IntFlag{
			Name:        "vector-indexer-batch-size",
			Category:    "Vector Index:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_INDEXER_BATCH_SIZE"),
			Destination: &cfg.IndexerBatchSize,
			Value:       cfg.IndexerBatchSize,
			Usage:       "Number of memories to embed per background indexer pass",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Index:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_QDRANT_HOST", "MEMORY_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantAddress(),
			Usage:       "Qdrant host or host:port",
		},
		&cli.FloatFlag{
			Name:        "search-min-similarity",
			Category:    "Vector Index:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_SEARCH_MIN_SIMILARITY"),
			Destination: &cfg.SearchMinSimilarity,
			Value:       cfg.SearchMinSimilarity,
			Usage:       "Drop ranked search results scoring below this similarity (0 disables)",
		},

		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_OPENAI_API_KEY", "MEMORY_SERVICE_OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key (falls back to OPENAI_API_KEY)",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_OPENAI_BASE_URL", "MEMORY_SERVICE_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI-compatible API base URL",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-model-name",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_OPENAI_MODEL_NAME"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "OpenAI embedding model",
		},

		// ── Completion ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "completion-kind",
			Category:    "Completion:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_KIND"),
			Destination: &cfg.CompletionType,
			Value:       cfg.CompletionType,
			Usage:       "Completion provider used for extraction (" + strings.Join(registrycomplete.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "completion-openai-model-name",
			Category:    "Completion:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_OPENAI_MODEL_NAME"),
			Destination: &cfg.OpenAICompletionModel,
			Value:       cfg.OpenAICompletionModel,
			Usage:       "OpenAI chat model",
		},
		&cli.StringFlag{
			Name:        "completion-anthropic-api-key",
			Category:    "Completion:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_ANTHROPIC_API_KEY"),
			Destination: &cfg.AnthropicAPIKey,
			Usage:       "Anthropic API key (falls back to ANTHROPIC_API_KEY)",
		},
		&cli.StringFlag{
			Name:        "completion-anthropic-base-url",
			Category:    "Completion:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_ANTHROPIC_BASE_URL"),
			Destination: &cfg.AnthropicBaseURL,
			Usage:       "Anthropic API base URL",
		},
		&cli.StringFlag{
			Name:        "completion-anthropic-model-name",
			Category:    "Completion:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_ANTHROPIC_MODEL_NAME"),
			Destination: &cfg.AnthropicModel,
			Value:       cfg.AnthropicModel,
			Usage:       "Anthropic model",
		},
		&cli.IntFlag{
			Name:        "completion-max-tokens",
			Category:    "Completion:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_MAX_TOKENS"),
			Destination: &cfg.CompletionMaxTokens,
			Value:       cfg.CompletionMaxTokens,
			Usage:       "Maximum tokens in an extraction reply",
		},

		// ── Provider Limits ───────────────────────────────────────
		&cli.DurationFlag{
			Name:        "provider-timeout",
			Category:    "Provider Limits:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PROVIDER_TIMEOUT"),
			Destination: &cfg.ProviderTimeout,
			Value:       cfg.ProviderTimeout,
			Usage:       "Deadline for each embedding or completion call",
		},
		&cli.FloatFlag{
			Name:        "provider-rate-limit",
			Category:    "Provider Limits:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PROVIDER_RATE_LIMIT"),
			Destination: &cfg.ProviderRateLimit,
			Value:       cfg.ProviderRateLimit,
			Usage:       "Provider calls per second (0 = unlimited)",
		},
		&cli.IntFlag{
			Name:        "provider-rate-burst",
			Category:    "Provider Limits:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PROVIDER_RATE_BURST"),
			Destination: &cfg.ProviderRateBurst,
			Value:       cfg.ProviderRateBurst,
			Usage:       "Burst allowed above the provider rate limit",
		},
		&cli.Int64Flag{
			Name:        "provider-max-concurrency",
			Category:    "Provider Limits:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PROVIDER_MAX_CONCURRENCY"),
			Destination: &cfg.ProviderMaxConcurrency,
			Value:       cfg.ProviderMaxConcurrency,
			Usage:       "Maximum in-flight provider calls (0 = unbounded)",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=memory-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
