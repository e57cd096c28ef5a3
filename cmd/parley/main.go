// Command parley runs the push-to-talk voice round trip: record an utterance,
// transcribe it, ask a language model and play the synthesized answer.
//
// Usage:
//
//	parley serve --config config.yaml     run the HTTP/WebSocket API
//	parley run --config config.yaml       run one session from the terminal
//	parley inspect reply.wav              print a WAV container's format
//	parley b64 encode|decode <in> <out>   convert between WAV and base64 text
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/config"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "parley:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Push-to-talk voice round trip: speech in, speech out",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newInspectCmd(),
		newB64Cmd(),
	)
	return root
}

// loadConfig reads the file named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, configError(path, err)
	}
	return cfg, path, nil
}

func configError(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
	}
	return err
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The level is read through levels so a
// config reload can change it without rebuilding the handler.
func newLogger(w io.Writer, format config.LogFormat, levels *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levels}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// setupLogger installs the default logger for cfg and returns its level var.
func setupLogger(cfg *config.Config) *slog.LevelVar {
	levels := new(slog.LevelVar)
	levels.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogFormat, levels))
	return levels
}
