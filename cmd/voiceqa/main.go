// Command voiceqa is the entry point for the voice question answering server
// and its command line helpers.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/phsym/console-slog"
	"github.com/spf13/cobra"

	"github.com/MrWong99/voiceqa/internal/config"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "voiceqa",
		Short:         "Voice question answering over a curated Q&A corpus",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "voiceqa.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override server.log_format (text, json, console)")

	root.AddCommand(
		newServeCmd(flags),
		newAskCmd(flags),
		newConsoleCmd(flags),
		newUploadCmd(flags),
	)
	return root
}

// setup loads the configuration, applies flag overrides and installs the
// default logger.
func setup(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/voiceqa.example.yaml to get started", flags.configPath)
		}
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(flags.logLevel)
		if !cfg.Server.LogLevel.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q", flags.logLevel)
		}
	}
	if flags.logFormat != "" {
		cfg.Server.LogFormat = config.LogFormat(flags.logFormat)
		if !cfg.Server.LogFormat.IsValid() {
			return nil, fmt.Errorf("invalid --log-format %q", flags.logFormat)
		}
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel, cfg.Server.LogFormat))
	return cfg, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	switch format {
	case config.LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	case config.LogFormatConsole:
		return slog.New(console.NewHandler(w, &console.HandlerOptions{Level: lvl}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
}
