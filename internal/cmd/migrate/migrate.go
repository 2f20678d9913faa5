package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/voice-engine-studio/memory-service/internal/config"
	registrymigrate "github.com/voice-engine-studio/memory-service/internal/registry/migrate"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/voice-engine-studio/memory-service/internal/plugin/vector/qdrant"
)

// Command returns the migrate sub-command. It prepares external vector
// indexes; the in-process store needs no migration.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create vector index collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "vector-kind",
				Sources: cli.EnvVars("MEMORY_SERVICE_VECTOR_KIND"),
				Usage:   "Vector index to migrate",
				Value:   "qdrant",
			},
			&cli.StringFlag{
				Name:    "embedding-kind",
				Sources: cli.EnvVars("MEMORY_SERVICE_EMBEDDING_KIND"),
				Usage:   "Embedding provider; selects the collection dimension",
				Value:   "openai",
			},
			&cli.StringFlag{
				Name:    "vector-qdrant-host",
				Sources: cli.EnvVars("MEMORY_SERVICE_VECTOR_QDRANT_HOST", "MEMORY_SERVICE_QDRANT_HOST"),
				Usage:   "Qdrant host:port",
				Value:   "localhost:6334",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.VectorType = cmd.String("vector-kind")
			cfg.EmbedType = cmd.String("embedding-kind")
			cfg.QdrantHost = cmd.String("vector-qdrant-host")
			cfg.VectorMigrateAtStart = true
			if err := cfg.ApplyEnvOverrides(); err != nil {
				return err
			}
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "migrators", registrymigrate.Names())
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
