package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"voice-quiz-control/internal/config"
	"voice-quiz-control/internal/logger"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	// .env must be read before flag defaults are taken from the environment
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("dotenv not loaded", "error", err)
	}

	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "voice-quiz-control",
		Short:        "Control plane for a voice-driven quiz display",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (default from config, then 8080)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	return cmd
}

// loadConfig reads the config and installs the configured logger as the default.
func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger.Init(cfg.Log.Level, cfg.Log.Format), nil
}
