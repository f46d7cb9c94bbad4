package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/MrWong99/voiceqa/internal/app"
	"github.com/MrWong99/voiceqa/internal/config"
	"github.com/MrWong99/voiceqa/internal/observe"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	slog.Info("voiceqa starting",
		"version", Version,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)
	providers, err := buildProviders(cfg, reg, buildOptions{tts: true, stt: true})
	if err != nil {
		return err
	}

	opts := []app.Option{app.WithMetrics(observe.DefaultMetrics())}
	if !cfg.Observe.DisableMetrics {
		opts = append(opts, app.WithMetricsHandler(promhttp.Handler()))
	}

	printStartupSummary(cmd.OutOrStdout(), cfg)

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		closeSources(providers.Sources)
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        voiceqa · startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	for i, s := range cfg.Corpus.Sources {
		printProvider(w, fmt.Sprintf("Source %d", i+1), s.Name, "")
	}
	if wr, ok := cfg.Corpus.WriterEntry(); ok {
		printProvider(w, "Uploads", wr.Name, "")
	}
	printProvider(w, "TTS", cfg.Speech.TTS.Name, cfg.Speech.TTS.Model)
	printProvider(w, "STT", cfg.Speech.STT.Name, cfg.Speech.STT.Model)
	printValue(w, "Scorer", fmt.Sprintf("%s > %g", cfg.Matcher.Scorer, *cfg.Matcher.Threshold))
	printValue(w, "History", fmt.Sprintf("%s, %d shown", cfg.History.Policy, *cfg.History.Capacity))
	if cfg.Server.ListenAddr != "" {
		printValue(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printValue(w, kind, value)
}

func printValue(w io.Writer, key, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}
