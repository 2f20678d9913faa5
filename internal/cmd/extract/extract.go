package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/voice-engine-studio/memory-service/internal/config"
	registrycomplete "github.com/voice-engine-studio/memory-service/internal/registry/complete"
	"github.com/voice-engine-studio/memory-service/internal/service"

	_ "github.com/voice-engine-studio/memory-service/internal/plugin/complete/anthropic"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/complete/disabled"
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/complete/openai"
)

// Command returns the extract sub-command. It runs the extraction pipeline on
// a transcript and prints the candidates as JSON without storing anything.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var (
		file     string
		existing []string
	)
	return &cli.Command{
		Name:      "extract",
		Usage:     "Propose memories from a conversation transcript",
		ArgsUsage: "[transcript-file]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "Transcript file; '-' or empty reads stdin",
				Destination: &file,
			},
			&cli.StringSliceFlag{
				Name:        "existing",
				Usage:       "Content of an already known memory (repeatable)",
				Destination: &existing,
			},
			&cli.StringFlag{
				Name:        "completion-kind",
				Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_KIND"),
				Destination: &cfg.CompletionType,
				Value:       "openai",
				Usage:       "Completion provider (" + strings.Join(registrycomplete.Names(), "|") + ")",
			},
			&cli.StringFlag{
				Name:        "openai-api-key",
				Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_OPENAI_API_KEY", "MEMORY_SERVICE_OPENAI_API_KEY"),
				Destination: &cfg.OpenAIAPIKey,
				Usage:       "OpenAI API key (falls back to OPENAI_API_KEY)",
			},
			&cli.StringFlag{
				Name:        "openai-base-url",
				Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_OPENAI_BASE_URL", "MEMORY_SERVICE_OPENAI_BASE_URL"),
				Destination: &cfg.OpenAIBaseURL,
				Value:       cfg.OpenAIBaseURL,
				Usage:       "OpenAI-compatible API base URL",
			},
			&cli.StringFlag{
				Name:        "openai-model-name",
				Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_OPENAI_MODEL_NAME"),
				Destination: &cfg.OpenAICompletionModel,
				Value:       cfg.OpenAICompletionModel,
				Usage:       "OpenAI chat model",
			},
			&cli.StringFlag{
				Name:        "anthropic-api-key",
				Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_ANTHROPIC_API_KEY"),
				Destination: &cfg.AnthropicAPIKey,
				Usage:       "Anthropic API key (falls back to ANTHROPIC_API_KEY)",
			},
			&cli.StringFlag{
				Name:        "anthropic-base-url",
				Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_ANTHROPIC_BASE_URL"),
				Destination: &cfg.AnthropicBaseURL,
				Usage:       "Anthropic API base URL",
			},
			&cli.StringFlag{
				Name:        "anthropic-model-name",
				Sources:     cli.EnvVars("MEMORY_SERVICE_COMPLETION_ANTHROPIC_MODEL_NAME"),
				Destination: &cfg.AnthropicModel,
				Value:       cfg.AnthropicModel,
				Usage:       "Anthropic model",
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Sources:     cli.EnvVars("MEMORY_SERVICE_PROVIDER_TIMEOUT"),
				Destination: &cfg.ProviderTimeout,
				Value:       cfg.ProviderTimeout,
				Usage:       "Deadline for the completion call",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnvOverrides(); err != nil {
				return err
			}
			if file == "" && cmd.Args().Len() > 0 {
				file = cmd.Args().First()
			}
			conversation, err := readTranscript(file, os.Stdin)
			if err != nil {
				return err
			}

			ctx = config.WithContext(ctx, &cfg)
			loader, err := registrycomplete.Select(cfg.CompletionType)
			if err != nil {
				return err
			}
			completer, err := loader(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize completer: %w", err)
			}

			gateway := service.NewGateway(nil, completer, nil, service.GatewayOptions{
				CompleteProvider: cfg.CompletionType,
				Timeout:          cfg.ProviderTimeout,
			})
			candidates := service.NewExtractionPipeline(gateway).Extract(ctx, conversation, existing)
			log.Info("Extraction finished", "candidates", len(candidates))
			return writeJSON(cmd.Root().Writer, candidates)
		},
	}
}

func readTranscript(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(b), nil
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
