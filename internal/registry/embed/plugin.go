package embed

import (
	"context"
	"errors"
	"fmt"
)

// ErrDisabled is returned by the "none" embedder. Callers treat it as the
// absence of an embedding provider rather than a provider failure.
var ErrDisabled = errors.New("embedding is disabled")

// Embedder produces vector embeddings from text.
type Embedder interface {
	// EmbedTexts returns a vector embedding for each input text, in the same order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName returns the model identifier used for embedding.
	ModelName() string
	// Dimension returns the dimensionality of the embeddings, or 0 when unknown.
	Dimension() int
}

// Disabler is implemented by the "none" embedder.
type Disabler interface {
	Disabled() bool
}

// IsDisabled reports whether e is nil or a placeholder that never produces output.
func IsDisabled(e Embedder) bool {
	if e == nil {
		return true
	}
	d, ok := e.(Disabler)
	return ok && d.Disabled()
}

// Loader creates an Embedder from config.
type Loader func(ctx context.Context) (Embedder, error)

// Plugin represents an embedder plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an embedder plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered embedder plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named embedder plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown embedder %q; valid: %v", name, Names())
}
