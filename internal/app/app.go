// Package app wires all parley subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates the journal, the
// capture source, the playback sink and the pipeline orchestrator, Run serves
// the HTTP API until ctx is cancelled, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithJournal,
// WithSource, WithSink, ...). When an option is not provided, New creates the
// real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/pipeline"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/sink"
	"github.com/MrWong99/parley/pkg/audio/source"
	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/memory/postgres"
)

// App owns all subsystem lifetimes and serves the parley HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// base is the context every API-started session derives from. Request
	// contexts end with the response and must not bound a session.
	base context.Context

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics *observe.Metrics
	scrape  http.Handler
	journal memory.Store
	ping    func(context.Context) error
	source  audio.CaptureSource
	sink    audio.Sink
	orch    *pipeline.Orchestrator
	health  *health.Handler
	levels  *slog.LevelVar
	watcher *config.Watcher
	handler http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects a session journal instead of creating one from config.
func WithJournal(s memory.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithSource injects a capture source instead of creating one from config.
func WithSource(s audio.CaptureSource) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects a playback sink instead of creating one from config.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics, typically
// [observe.Telemetry.Handler]. Default: the global Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLevelVar lets config reloads change the log level of the handler that
// was built around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levels = v }
}

// WithWatcher makes Run poll the config file through w. The watcher's
// callback should call [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders]. ctx is kept as the parent of every session
// started through the API and bounds the journal connection attempt.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		base:      ctx,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	// ── 1. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Capture source ────────────────────────────────────────────────
	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init capture source: %w", err)
	}

	// ── 3. Playback sink ─────────────────────────────────────────────────
	if err := a.initSink(); err != nil {
		return nil, fmt.Errorf("app: init playback sink: %w", err)
	}

	// ── 4. Orchestrator ──────────────────────────────────────────────────
	if err := a.initOrchestrator(); err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	// ── 5. Health + routes ───────────────────────────────────────────────
	a.health = health.New(
		health.Ping("journal", a.ping),
		health.Breakers("stt", providers.Breakers["stt"]...),
		health.Breakers("llm", providers.Breakers["llm"]...),
		health.Breakers("tts", providers.Breakers["tts"]...),
	)
	a.handler = observe.Middleware(a.metrics)(a.routes())

	slog.Info("app initialised",
		"stt", providers.STTName,
		"llm", providers.LLMName,
		"tts", providers.TTSName,
		"capture", a.cfg.Capture.Source,
		"playback", a.cfg.Playback.Sink,
	)
	return a, nil
}

// initJournal connects to PostgreSQL when a DSN is configured and otherwise
// keeps finished sessions in an in-memory ring.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}

	dsn := a.cfg.Journal.PostgresDSN
	if dsn == "" {
		a.journal = memory.NewRing(a.cfg.Journal.Capacity)
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.journal = store
	a.ping = store.Ping
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}
	switch a.cfg.Capture.Source {
	case config.CaptureFile:
		f, err := source.NewFile(a.cfg.Capture.Path)
		if err != nil {
			return err
		}
		a.source = f
	case config.CaptureSilence, "":
		a.source = source.Silence{}
	default:
		return fmt.Errorf("unknown capture source %q", a.cfg.Capture.Source)
	}
	return nil
}

func (a *App) initSink() error {
	if a.sink == nil {
		switch a.cfg.Playback.Sink {
		case config.SinkDir:
			d, err := sink.NewDir(a.cfg.Playback.Dir)
			if err != nil {
				return err
			}
			a.sink = d
		case config.SinkLog, "":
			a.sink = sink.Log{}
		default:
			return fmt.Errorf("unknown playback sink %q", a.cfg.Playback.Sink)
		}
	}

	if pb := a.cfg.Playback; pb.SampleRate > 0 || pb.Channels > 0 {
		a.sink = audio.NewConvertingSink(a.sink, audio.Format{
			SampleRate: pb.SampleRate,
			Channels:   pb.Channels,
		})
	}
	return nil
}

func (a *App) initOrchestrator() error {
	c := a.cfg.Capture
	opts := []pipeline.Option{
		pipeline.WithMaxDuration(c.MaxDuration),
		pipeline.WithSampleRate(c.SampleRate),
		pipeline.WithDeviceID(c.DeviceID),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithJournal(a.journal),
		pipeline.WithProviderNames(a.providers.STTName, a.providers.LLMName, a.providers.TTSName),
	}
	if c.Tick > 0 {
		opts = append(opts, pipeline.WithTick(c.Tick))
	}
	if a.cfg.Pipeline.WAVDecode == config.DecodeFixed {
		opts = append(opts, pipeline.WithDecoder(wav.Decode))
	}
	if p := a.cfg.Pipeline.Placeholder; p != "" {
		opts = append(opts, pipeline.WithPlaceholder(p))
	}
	if p := a.cfg.Pipeline.NoSpeechPlaceholder; p != "" {
		opts = append(opts, pipeline.WithNoSpeechPlaceholder(p))
	}

	o, err := pipeline.New(a.source, a.providers.STT, a.providers.LLM, a.providers.TTS, a.sink, opts...)
	if err != nil {
		return err
	}
	a.orch = o
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the pipeline orchestrator driven by the API.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orch
}

// Journal returns the session journal.
func (a *App) Journal() memory.Store {
	return a.journal
}

// Handler returns the HTTP handler serving the full API, wrapped in the
// observability middleware.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on server.listen_addr and, when a watcher was
// given, polls the config file. It blocks until ctx is cancelled or the
// server fails, and returns nil after a clean stop.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown http: %w", err)
		}
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	return g.Wait()
}

// Reload applies a changed config file. Only the log level takes effect
// live; other changed sections are reported and need a restart. It has the
// signature of a [config.Watcher] callback.
func (a *App) Reload(_, _ *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. The orchestrator
// is closed first so a live session is cancelled and its journal write is
// flushed before the journal goes away. If ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		done := make(chan error, 1)
		go func() { done <- a.orch.Close() }()
		select {
		case err := <-done:
			if err != nil {
				slog.Warn("orchestrator close error", "err", err)
			}
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded while closing orchestrator")
			shutdownErr = ctx.Err()
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
