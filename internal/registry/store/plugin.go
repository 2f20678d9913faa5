package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/voice-engine-studio/memory-service/internal/model"
)

const (
	// DefaultListLimit is used when a list request does not name a limit.
	DefaultListLimit = 50
	// MaxListLimit is the hard cap for list requests.
	MaxListLimit = 100
)

// ListOptions narrows a List call.
type ListOptions struct {
	// Category restricts results to one category when non-nil.
	Category *model.Category
	// Limit caps the result size. Zero means DefaultListLimit.
	Limit int
}

// PendingEmbedding identifies a memory that has no embedding yet.
type PendingEmbedding struct {
	UserID   string
	MemoryID uuid.UUID
	Content  string
}

// MemoryStore owns every user's memory collection.
//
// Records in a collection are ordered by (CreatedAt, Seq). List and Snapshot
// return that order; truncation always keeps the head (oldest records).
type MemoryStore interface {
	// Create validates and appends a new memory to the user's collection.
	Create(ctx context.Context, userID string, content string, category model.Category) (model.Memory, error)
	// List returns the user's memories, optionally filtered by category and
	// truncated to opts.Limit. An unknown user yields an empty slice.
	List(ctx context.Context, userID string, opts ListOptions) ([]model.Memory, error)
	// Delete removes one memory. Returns *NotFoundError when it does not exist.
	Delete(ctx context.Context, userID string, memoryID uuid.UUID) error

	// Snapshot returns a consistent copy of all of the user's memories.
	Snapshot(ctx context.Context, userID string) ([]model.Memory, error)
	// SetEmbedding attaches an embedding to an existing memory.
	SetEmbedding(ctx context.Context, userID string, memoryID uuid.UUID, embedding []float32) error
	// MarkUnembeddable records that a memory's content yields no embedding, so
	// it drops out of PendingEmbeddings.
	MarkUnembeddable(ctx context.Context, userID string, memoryID uuid.UUID) error
	// PendingEmbeddings lists up to limit memories, across users, that have
	// no embedding and are not marked unembeddable.
	PendingEmbeddings(ctx context.Context, limit int) ([]PendingEmbedding, error)
}

// ResolveLimit applies a default and hard cap to a caller supplied limit.
// Zero selects def; negative values or values above max are rejected.
func ResolveLimit(limit, def, max int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 0 || limit > max {
		return 0, &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", max)}
	}
	return limit, nil
}

// Loader creates a MemoryStore from config.
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
