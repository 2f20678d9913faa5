package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SearchResult is one scored memory returned by a vector index.
type SearchResult struct {
	MemoryID uuid.UUID
	// Score is cosine similarity, higher is closer.
	Score float64
}

// UpsertRequest holds the data for a single vector upsert operation.
type UpsertRequest struct {
	UserID    string
	MemoryID  uuid.UUID
	Embedding []float32
	ModelName string
}

// VectorIndex scores memory embeddings against a query vector, scoped per user.
type VectorIndex interface {
	// Search returns up to limit of the user's memories ranked by similarity.
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]SearchResult, error)
	// Upsert stores or replaces embeddings for a batch of memories.
	Upsert(ctx context.Context, entries []UpsertRequest) error
	// Delete removes one memory's embedding. Deleting an absent memory is not an error.
	Delete(ctx context.Context, userID string, memoryID uuid.UUID) error
	// IsEnabled returns true if the index is configured and operational.
	IsEnabled() bool
	// Name returns the plugin name (e.g. "qdrant", "chromem").
	Name() string
}

// Loader creates a VectorIndex from config.
type Loader func(ctx context.Context) (VectorIndex, error)

// Plugin represents a vector index plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector index plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector index plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector index plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector index %q; valid: %v", name, Names())
}
