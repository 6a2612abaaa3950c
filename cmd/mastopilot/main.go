package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/mastopilot/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "mastopilot",
	Short: "Mastodon autopilot: posts about document updates, replies to mentions",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A .env next to the working directory is a convenience for local
		// runs; a missing file is not an error.
		if err := godotenv.Load(); err == nil {
			slog.Debug("loaded .env")
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".mastopilot", "config.json"), "config file path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file or exits; commands past flag parsing
// cannot do anything useful without one.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
