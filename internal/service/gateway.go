package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	registrycache "github.com/voice-engine-studio/memory-service/internal/registry/cache"
	registrycomplete "github.com/voice-engine-studio/memory-service/internal/registry/complete"
	registryembed "github.com/voice-engine-studio/memory-service/internal/registry/embed"
	"github.com/voice-engine-studio/memory-service/internal/security"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GatewayOptions bounds provider calls.
type GatewayOptions struct {
	// EmbedProvider and CompleteProvider label metrics and logs.
	EmbedProvider    string
	CompleteProvider string
	// Timeout applies to each call, including time spent waiting on the limiter.
	Timeout time.Duration
	// RateLimit is calls per second across both providers. 0 disables the limiter.
	RateLimit float64
	RateBurst int
	// MaxConcurrency bounds in-flight provider calls. 0 means unbounded.
	MaxConcurrency int64
	// CacheTTL is passed to the embedding cache. 0 uses the cache default.
	CacheTTL time.Duration
}

// Gateway is the single boundary to the embedding and completion providers.
// Every failure is absorbed here: callers receive an empty result, never an error.
type Gateway struct {
	embedder  registryembed.Embedder
	completer registrycomplete.Completer
	cache     registrycache.EmbeddingCache
	limiter   *rate.Limiter
	sem       *semaphore.Weighted
	opts      GatewayOptions
}

// NewGateway creates a gateway. embedder, completer and cache may be nil.
func NewGateway(embedder registryembed.Embedder, completer registrycomplete.Completer, cache registrycache.EmbeddingCache, opts GatewayOptions) *Gateway {
	g := &Gateway{
		embedder:  embedder,
		completer: completer,
		cache:     cache,
		opts:      opts,
	}
	if g.opts.EmbedProvider == "" {
		g.opts.EmbedProvider = "embed"
	}
	if g.opts.CompleteProvider == "" {
		g.opts.CompleteProvider = "complete"
	}
	if opts.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.RateBurst, 1))
	}
	if opts.MaxConcurrency > 0 {
		g.sem = semaphore.NewWeighted(opts.MaxConcurrency)
	}
	return g
}

// EmbeddingEnabled reports whether an embedding provider is configured.
func (g *Gateway) EmbeddingEnabled() bool {
	return g != nil && !registryembed.IsDisabled(g.embedder)
}

// CompletionEnabled reports whether a completion provider is configured.
func (g *Gateway) CompletionEnabled() bool {
	return g != nil && !registrycomplete.IsDisabled(g.completer)
}

// EmbeddingModel returns the embedder's model name, or "" when disabled.
func (g *Gateway) EmbeddingModel() string {
	if !g.EmbeddingEnabled() {
		return ""
	}
	return g.embedder.ModelName()
}

// Embed returns the embedding of text, or an empty vector on any failure.
func (g *Gateway) Embed(ctx context.Context, text string) []float32 {
	if !g.EmbeddingEnabled() {
		return nil
	}
	model := g.embedder.ModelName()
	key := registrycache.EmbeddingKey(model, text)
	if g.cache != nil && g.cache.Available() {
		cached, err := g.cache.Get(ctx, key)
		if err != nil {
			log.Debug("Embedding cache get failed", "err", err)
		}
		security.CountCache(len(cached) > 0)
		if len(cached) > 0 {
			return cached
		}
	}

	vectors := g.EmbedBatch(ctx, []string{text})
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil
	}
	if g.cache != nil && g.cache.Available() {
		if err := g.cache.Set(ctx, key, vectors[0], g.opts.CacheTTL); err != nil {
			log.Debug("Embedding cache set failed", "err", err)
		}
	}
	return vectors[0]
}

// EmbedBatch embeds texts in one provider call. It returns nil on any failure
// or when the provider returns the wrong number of vectors.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if !g.EmbeddingEnabled() || len(texts) == 0 {
		return nil
	}
	var vectors [][]float32
	ok := g.call(ctx, g.opts.EmbedProvider, "embed", func(ctx context.Context) error {
		out, err := g.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out))
		}
		vectors = out
		return nil
	})
	if !ok {
		return nil
	}
	return vectors
}

// Complete returns the provider's reply to prompt, or "" on any failure.
func (g *Gateway) Complete(ctx context.Context, prompt string) string {
	if !g.CompletionEnabled() {
		return ""
	}
	var reply string
	g.call(ctx, g.opts.CompleteProvider, "complete", func(ctx context.Context) error {
		out, err := g.completer.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	return reply
}

// call runs fn under the timeout, rate limit and concurrency bound. A false
// return means fn failed or never ran; the failure has already been logged.
func (g *Gateway) call(ctx context.Context, provider, operation string, fn func(ctx context.Context) error) (ok bool) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.degrade(provider, operation, start, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.degrade(provider, operation, start, fmt.Errorf("rate limit: %w", err))
			return false
		}
	}
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			g.degrade(provider, operation, start, fmt.Errorf("concurrency limit: %w", err))
			return false
		}
		defer g.sem.Release(1)
	}

	if err := fn(ctx); err != nil {
		g.degrade(provider, operation, start, err)
		return false
	}
	security.CountProviderCall(provider, operation, "ok")
	return true
}

func (g *Gateway) degrade(provider, operation string, start time.Time, err error) {
	security.CountProviderCall(provider, operation, "degraded")
	if errors.Is(err, registryembed.ErrDisabled) || errors.Is(err, registrycomplete.ErrDisabled) {
		return
	}
	log.Warn("Provider call degraded",
		"provider", provider,
		"operation", operation,
		"elapsed", time.Since(start),
		"err", err,
	)
}
