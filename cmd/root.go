package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/tmixerflow/internal/config"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger

	// settings holds defaults, the config file, TMIXERFLOW_* variables and bound flags.
	settings = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "tmixerflow",
	Short: "Continuation and topology optimization drivers for T-mixer flows",
	Long: `tmixerflow ramps gravity on a two-phase drift column by continuation and
optimizes the porous design of a two-inlet mixing channel, writing one
stream per tracked quantity below the run directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		if configPath != "" {
			if err := config.ReadFile(settings, configPath); err != nil {
				return err
			}
			slog.Debug("Loaded config file", "path", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("output-dir", config.Default().OutputDir, "Base directory for runs and checkpoints")
	bindFlag(rootCmd.PersistentFlags().Lookup("output-dir"), "output_dir")
}
