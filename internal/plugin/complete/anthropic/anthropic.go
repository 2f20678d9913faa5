package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/voice-engine-studio/memory-service/internal/config"
	registrycomplete "github.com/voice-engine-studio/memory-service/internal/registry/complete"
)

func init() {
	registrycomplete.Register(registrycomplete.Plugin{
		Name:   "anthropic",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycomplete.Completer, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("anthropic completer: MEMORY_SERVICE_COMPLETION_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}
	if base := strings.TrimSpace(cfg.AnthropicBaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := anthropic.NewClient(opts...)
	maxTokens := cfg.CompletionMaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Completer{
		client:    &client,
		model:     cfg.AnthropicModel,
		maxTokens: int64(maxTokens),
	}, nil
}

// Completer sends the prompt as a single user turn to the Messages API.
type Completer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

func (c *Completer) ModelName() string {
	return c.model
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("claude API: response had no text content")
	}
	return text.String(), nil
}

var _ registrycomplete.Completer = (*Completer)(nil)
