package complete

import (
	"context"
	"errors"
	"fmt"
)

// ErrDisabled is returned by the "none" completer.
var ErrDisabled = errors.New("completion is disabled")

// Completer sends a single prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// ModelName returns the model identifier used for completion.
	ModelName() string
}

// Disabler is implemented by the "none" completer.
type Disabler interface {
	Disabled() bool
}

// IsDisabled reports whether e is nil or a placeholder that never produces output.
func IsDisabled(e Completer) bool {
	if e == nil {
		return true
	}
	d, ok := e.(Disabler)
	return ok && d.Disabled()
}

// Loader creates a Completer from config.
type Loader func(ctx context.Context) (Completer, error)

// Plugin represents a completer plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a completer plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered completer plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named completer plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown completer %q; valid: %v", name, Names())
}
