package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/pipeline"
	"github.com/MrWong99/parley/pkg/audio/wav"
)

// errSessionFailed makes run exit non-zero after the reason was printed.
var errSessionFailed = errors.New("session failed")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single session from the terminal",
		Long: `Run records one utterance, sends it through the configured providers and
plays the reply. Recording ends when Enter is pressed, after --duration, or at
capture.max_duration, whichever comes first.`,
		Args: cobra.NoArgs,
		RunE: runOnce,
	}
	cmd.Flags().Duration("duration", 0, "stop recording after this long (0 waits for Enter)")
	cmd.Flags().StringP("out", "o", "", "also write the reply to this WAV file")
	return cmd
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	out, _ := cmd.Flags().GetString("out")

	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg, nil)
	if err != nil {
		return err
	}
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	orch := application.Orchestrator()
	events, unsubscribe := orch.Subscribe(16)
	defer unsubscribe()

	sess, err := orch.Start(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if duration > 0 {
		fmt.Fprintf(w, "recording for up to %s (max %ds)…\n", duration, cfg.Capture.MaxDuration)
		t := time.AfterFunc(duration, func() { _ = orch.Stop() })
		defer t.Stop()
	} else {
		fmt.Fprintf(w, "recording, press Enter to stop (max %ds)…\n", cfg.Capture.MaxDuration)
		go waitForEnter(cmd.InOrStdin(), orch)
	}

	return report(w, events, sess, orch, out)
}

// waitForEnter stops recording on the first line read from r.
func waitForEnter(r io.Reader, orch *pipeline.Orchestrator) {
	if _, err := bufio.NewReader(r).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return
	}
	if err := orch.Stop(); err != nil && !errors.Is(err, pipeline.ErrNotRecording) {
		slog.Debug("stop recording", "err", err)
	}
}

// report prints the session's progress until it finished, then waits for
// playback and journaling to complete.
func report(w io.Writer, events <-chan pipeline.Event, sess *pipeline.Session, orch *pipeline.Orchestrator, out string) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return pipeline.ErrClosed
			}
			if err := printEvent(w, ev, sess.ID, out); err != nil {
				return err
			}
		case <-sess.Done():
			// Events published before Done may still be buffered.
			for drained := false; !drained; {
				select {
				case ev, ok := <-events:
					if !ok {
						drained = true
						break
					}
					if err := printEvent(w, ev, sess.ID, out); err != nil {
						return err
					}
				default:
					drained = true
				}
			}
			orch.Wait()
			if sess.Snapshot().Failure != nil {
				return errSessionFailed
			}
			return nil
		}
	}
}

func printEvent(w io.Writer, ev pipeline.Event, sessionID, out string) error {
	if ev.Session != sessionID {
		return nil
	}
	switch ev.State {
	case pipeline.Generating:
		fmt.Fprintf(w, "you said:    %s\n", ev.Transcript)
	case pipeline.Decoding:
		fmt.Fprintf(w, "reply:       %s\n", ev.Reply)
	case pipeline.Playing:
		fmt.Fprintf(w, "playing:     %s (%s)\n", ev.Audio.Duration().Round(time.Millisecond), ev.Audio.Format())
		if out == "" {
			return nil
		}
		if err := os.WriteFile(out, wav.Encode(*ev.Audio), 0o644); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		fmt.Fprintf(w, "saved reply: %s\n", out)
	case pipeline.Failed:
		fmt.Fprintf(w, "failed:      %s\n", ev.Failure.Reason())
	case pipeline.Idle:
	default:
		fmt.Fprintf(w, "%s…\n", ev.State)
	}
	return nil
}
