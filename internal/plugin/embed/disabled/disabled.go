package disabled

import (
	"context"

	"github.com/voice-engine-studio/memory-service/internal/registry/embed"
)

func init() {
	embed.Register(embed.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (embed.Embedder, error) {
			return &disabledEmbedder{}, nil
		},
	})
}

type disabledEmbedder struct{}

func (d *disabledEmbedder) EmbedTexts(_ context.Context, _ []string) ([][]float32, error) {
	return nil, embed.ErrDisabled
}

func (d *disabledEmbedder) ModelName() string { return "none" }
func (d *disabledEmbedder) Dimension() int    { return 0 }
func (d *disabledEmbedder) Disabled() bool    { return true }

var _ embed.Embedder = (*disabledEmbedder)(nil)
