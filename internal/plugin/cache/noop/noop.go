package noop

import (
	"context"
	"time"

	"github.com/voice-engine-studio/memory-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.EmbeddingCache, error) {
			return &noopEmbeddingCache{}, nil
		},
	})
}

type noopEmbeddingCache struct{}

func (n *noopEmbeddingCache) Available() bool { return false }
func (n *noopEmbeddingCache) Get(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}
func (n *noopEmbeddingCache) Set(_ context.Context, _ string, _ []float32, _ time.Duration) error {
	return nil
}

var _ cache.EmbeddingCache = (*noopEmbeddingCache)(nil)
