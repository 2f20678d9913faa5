package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/voice-engine-studio/memory-service/internal/config"
	registrycomplete "github.com/voice-engine-studio/memory-service/internal/registry/complete"
)

func init() {
	registrycomplete.Register(registrycomplete.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycomplete.Completer, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai completer: MEMORY_SERVICE_OPENAI_API_KEY or OPENAI_API_KEY is required")
	}
	clientConfig := goopenai.DefaultConfig(cfg.OpenAIAPIKey)
	if base := strings.TrimRight(cfg.OpenAIBaseURL, "/"); base != "" {
		clientConfig.BaseURL = base
	}
	return &Completer{
		client:    goopenai.NewClientWithConfig(clientConfig),
		model:     cfg.OpenAICompletionModel,
		maxTokens: cfg.CompletionMaxTokens,
	}, nil
}

// Completer asks a chat model for a JSON object reply.
type Completer struct {
	client    *goopenai.Client
	model     string
	maxTokens int
}

func (c *Completer) ModelName() string {
	return c.model
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ registrycomplete.Completer = (*Completer)(nil)
