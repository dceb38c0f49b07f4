// rerxctl is the operator tooling for the filing pipeline: dry-run document
// generation, structural validation, connectivity checks, and one-shot
// file/poll runs outside the scheduled poller.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rerfiler/internal/platform/config"
	"rerfiler/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "rerxctl",
		Short:         "Operate the real-estate report filing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBuildCmd(),
		newValidateCmd(),
		newCheckCmd(),
		newFileCmd(),
		newPollCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("command failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.New(slog.LevelWarn), nil
}
