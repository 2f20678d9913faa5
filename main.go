package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"github.com/voice-engine-studio/memory-service/internal/cmd/extract"
	"github.com/voice-engine-studio/memory-service/internal/cmd/migrate"
	"github.com/voice-engine-studio/memory-service/internal/cmd/serve"
)

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to load .env", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "memory-service",
		Usage: "Long-term user memory service for Voice Engine Studio",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			extract.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
