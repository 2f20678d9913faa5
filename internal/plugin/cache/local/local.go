// Package local is an in-process embedding cache backed by ristretto.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/voice-engine-studio/memory-service/internal/config"
	registrycache "github.com/voice-engine-studio/memory-service/internal/registry/cache"
)

const (
	defaultMaxCost = 64 << 20
	defaultTTL     = time.Hour
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "local",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.EmbeddingCache, error) {
	maxCost, ttl := int64(defaultMaxCost), defaultTTL
	if cfg := config.FromContext(ctx); cfg != nil {
		if cfg.LocalCacheMaxCost > 0 {
			maxCost = cfg.LocalCacheMaxCost
		}
		if cfg.CacheEmbeddingTTL > 0 {
			ttl = cfg.CacheEmbeddingTTL
		}
	}
	return New(maxCost, ttl)
}

// New creates a cache bounded to roughly maxCost bytes of vectors.
func New(maxCost int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		// Ten counters per expected entry; a 1536-dim vector costs ~6KiB.
		NumCounters: max(maxCost/600, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

type Cache struct {
	cache *ristretto.Cache[string, []float32]
	ttl   time.Duration
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(_ context.Context, key string) ([]float32, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return append([]float32(nil), v...), nil
}

func (c *Cache) Set(_ context.Context, key string, vector []float32, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(key, append([]float32(nil), vector...), int64(len(vector))*4, ttl)
	return nil
}

// Wait blocks until buffered writes are applied. Intended for tests.
func (c *Cache) Wait() {
	c.cache.Wait()
}

var _ registrycache.EmbeddingCache = (*Cache)(nil)
