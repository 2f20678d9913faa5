package disabled

import (
	"context"

	"github.com/voice-engine-studio/memory-service/internal/registry/complete"
)

func init() {
	complete.Register(complete.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (complete.Completer, error) {
			return &disabledCompleter{}, nil
		},
	})
}

type disabledCompleter struct{}

func (d *disabledCompleter) Complete(_ context.Context, _ string) (string, error) {
	return "", complete.ErrDisabled
}

func (d *disabledCompleter) ModelName() string { return "none" }
func (d *disabledCompleter) Disabled() bool    { return true }

var _ complete.Completer = (*disabledCompleter)(nil)
