package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"contourtrack/internal/config"
	"contourtrack/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "contourtrack",
	Short: "Contour tracking base station toolkit",
	Long: "contourtrack runs a base station for a field of ContourTracking motes, " +
		"simulates such a field and replays what a station recorded.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the station config named by the persistent flags. The
// --log-level flag wins over the file.
func loadConfig() (*config.StationConfig, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// withLogger attaches a logger writing to w at the configured level.
func withLogger(ctx context.Context, cfg *config.StationConfig, w io.Writer) (context.Context, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return ctx, err
	}
	return logging.NewContext(ctx, logging.NewWithLevel(w, level)), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/station.yaml", "Path to station configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schemas/station.cue", "Path to CUE schema file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(dashboardCmd)
}
