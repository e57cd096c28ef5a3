package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/observe"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		Long: `Serve starts the HTTP API on server.listen_addr. Sessions are started
with POST /v1/sessions and observed on the /v1/events WebSocket. The config
file is watched; a changed log level applies immediately.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	// ── Configuration + watcher ───────────────────────────────────────────────
	// The watcher callback is bound once the app exists. Run starts the
	// watcher, so no callback can fire before then.
	var application *app.App
	watcher, err := config.NewWatcher(path, func(old, new *config.Config, d config.ConfigDiff) {
		application.Reload(old, new, d)
	})
	if err != nil {
		return configError(path, err)
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	levels := setupLogger(cfg)
	slog.Info("parley starting",
		"version", version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Setup(ctx, observe.TelemetryConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg, telemetry.Metrics)
	if err != nil {
		return err
	}

	printStartupSummary(cmd.OutOrStdout(), cfg)

	application, err = app.New(ctx, cfg, providers,
		app.WithMetrics(telemetry.Metrics),
		app.WithMetricsHandler(telemetry.Handler()),
		app.WithLevelVar(levels),
		app.WithWatcher(watcher),
	)
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         parley · startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "STT", cfg.Providers.STT)
	printProvider(w, "LLM", cfg.Providers.LLM)
	printProvider(w, "TTS", cfg.Providers.TTS)
	printRow(w, "Capture", fmt.Sprintf("%s %ds@%dHz", cfg.Capture.Source, cfg.Capture.MaxDuration, cfg.Capture.SampleRate))
	printRow(w, "Playback", string(cfg.Playback.Sink))
	if cfg.Journal.PostgresDSN != "" {
		printRow(w, "Journal", "postgres")
	} else {
		printRow(w, "Journal", fmt.Sprintf("memory (%d)", cfg.Journal.Capacity))
	}
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind string, e config.ProviderEntry) {
	value := e.Name
	switch {
	case value == "":
		value = "(not configured)"
	case e.Model != "":
		value = e.Name + " / " + e.Model
	}
	if n := len(e.Fallbacks); n > 0 {
		value = fmt.Sprintf("%s +%d", value, n)
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, key, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}
