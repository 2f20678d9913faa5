package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EmbeddingCache remembers embeddings of previously seen texts so repeated
// queries do not call the embedding provider again.
type EmbeddingCache interface {
	Available() bool
	// Get returns the cached vector, or nil when absent.
	Get(ctx context.Context, key string) ([]float32, error)
	// Set stores a vector. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// EmbeddingKey derives a cache key from the embedding model and the exact text.
func EmbeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", model, hex.EncodeToString(sum[:]))
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (EmbeddingCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
