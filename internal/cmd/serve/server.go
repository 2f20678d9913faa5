package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/voice-engine-studio/memory-service/internal/config"
	"github.com/voice-engine-studio/memory-service/internal/plugin/route/memories"
	routesystem "github.com/voice-engine-studio/memory-service/internal/plugin/route/system"
	storemetrics "github.com/voice-engine-studio/memory-service/internal/plugin/store/metrics"
	registrycache "github.com/voice-engine-studio/memory-service/internal/registry/cache"
	registrycomplete "github.com/voice-engine-studio/memory-service/internal/registry/complete"
	registryembed "github.com/voice-engine-studio/memory-service/internal/registry/embed"
	registrymigrate "github.com/voice-engine-studio/memory-service/internal/registry/migrate"
	registryroute "github.com/voice-engine-studio/memory-service/internal/registry/route"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"
	"github.com/voice-engine-studio/memory-service/internal/security"
	"github.com/voice-engine-studio/memory-service/internal/service"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.MemoryStore
	Gateway         *service.Gateway
	Indexer         *service.BackgroundIndexer
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts HTTP on a single port.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting memory service",
		"httpPort", cfg.Listener.Port,
		"store", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
		"completion", cfg.CompletionType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	gateway := newGateway(ctx, cfg)

	// The vector index only holds embeddings, so it needs an embedder.
	var vectorIndex registryvector.VectorIndex
	if cfg.VectorType != "" && cfg.VectorType != "none" {
		if !gateway.EmbeddingEnabled() {
			return nil, fmt.Errorf("vector index %q requires an embedding provider: set --embedding-kind to a value other than 'none'", cfg.VectorType)
		}
		vectorLoader, err := registryvector.Select(cfg.VectorType)
		if err != nil {
			log.Warn("Vector index not available", "err", err)
		} else if vectorIndex, err = vectorLoader(ctx); err != nil {
			log.Warn("Failed to initialize vector index", "vector", cfg.VectorType, "err", err)
			vectorIndex = nil
		}
	}

	indexer := service.NewBackgroundIndexer(store, gateway, vectorIndex, cfg.IndexerInterval, cfg.IndexerBatchSize)
	go indexer.Start(ctx)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	memories.MountRoutes(router, memories.Services{
		Store:     store,
		Search:    service.NewSearchEngine(store, gateway, vectorIndex, cfg.SearchMinSimilarity),
		Context:   service.NewContextAssembler(store),
		Extractor: service.NewMemoryExtractor(store, service.NewExtractionPipeline(gateway), indexer),
		Indexer:   indexer,
	})

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		if closeManagement != nil {
			_ = closeManagement(context.Background())
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Gateway:         gateway,
		Indexer:         indexer,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}

// newGateway loads the configured providers and embedding cache. A provider
// that fails to load is logged and left disabled.
func newGateway(ctx context.Context, cfg *config.Config) *service.Gateway {
	var embedder registryembed.Embedder
	if embedLoader, err := registryembed.Select(cfg.EmbedType); err != nil {
		log.Warn("Embedder not available", "err", err)
	} else if embedder, err = embedLoader(ctx); err != nil {
		log.Warn("Failed to initialize embedder; embeddings disabled", "embedding", cfg.EmbedType, "err", err)
		embedder = nil
	}

	var completer registrycomplete.Completer
	if completeLoader, err := registrycomplete.Select(cfg.CompletionType); err != nil {
		log.Warn("Completer not available", "err", err)
	} else if completer, err = completeLoader(ctx); err != nil {
		log.Warn("Failed to initialize completer; extraction disabled", "completion", cfg.CompletionType, "err", err)
		completer = nil
	}

	var cache registrycache.EmbeddingCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if cache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		cache = nil
	}

	return service.NewGateway(embedder, completer, cache, service.GatewayOptions{
		EmbedProvider:    cfg.EmbedType,
		CompleteProvider: cfg.CompletionType,
		Timeout:          cfg.ProviderTimeout,
		RateLimit:        cfg.ProviderRateLimit,
		RateBurst:        cfg.ProviderRateBurst,
		MaxConcurrency:   cfg.ProviderMaxConcurrency,
		CacheTTL:         cfg.CacheEmbeddingTTL,
	})
}
