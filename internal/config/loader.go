package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxDuration     = 5
	DefaultSampleRate      = 44100
	DefaultTick            = 20 * time.Millisecond
	DefaultJournalCapacity = 256
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"huggingface", "whisper", "deepgram", "openai"},
	"llm": {"huggingface", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"silent", "jsonaudio", "coqui", "elevenlabs", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, resolves ${VAR} references,
// fills in defaults and validates the result. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ExpandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces secrets written as "${VAR}" with the value of the
// environment variable VAR. Only whole-value references are expanded.
func ExpandEnv(cfg *Config) {
	expandEntry(&cfg.Providers.STT)
	expandEntry(&cfg.Providers.LLM)
	expandEntry(&cfg.Providers.TTS)
	cfg.Journal.PostgresDSN = expandRef(cfg.Journal.PostgresDSN)
}

func expandEntry(e *ProviderEntry) {
	e.APIKey = expandRef(e.APIKey)
	e.BaseURL = expandRef(e.BaseURL)
	for i := range e.Fallbacks {
		expandEntry(&e.Fallbacks[i])
	}
}

func expandRef(v string) string {
	if name, ok := strings.CutPrefix(v, "${"); ok {
		if name, ok = strings.CutSuffix(name, "}"); ok && name != "" {
			return os.Getenv(name)
		}
	}
	return v
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Capture.Source == "" {
		if cfg.Capture.Path != "" {
			cfg.Capture.Source = CaptureFile
		} else {
			cfg.Capture.Source = CaptureSilence
		}
	}
	if cfg.Capture.MaxDuration == 0 {
		cfg.Capture.MaxDuration = DefaultMaxDuration
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = DefaultSampleRate
	}
	if cfg.Capture.Tick == 0 {
		cfg.Capture.Tick = DefaultTick
	}
	if cfg.Playback.Sink == "" {
		if cfg.Playback.Dir != "" {
			cfg.Playback.Sink = SinkDir
		} else {
			cfg.Playback.Sink = SinkLog
		}
	}
	if cfg.Pipeline.WAVDecode == "" {
		cfg.Pipeline.WAVDecode = DecodeParse
	}
	if cfg.Journal.Capacity == 0 {
		cfg.Journal.Capacity = DefaultJournalCapacity
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT, true)...)
	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM, true)...)
	errs = append(errs, validateEntry("tts", "providers.tts", cfg.Providers.TTS, true)...)
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies will not be spoken")
	}

	// Capture
	if cfg.Capture.Source != "" && !cfg.Capture.Source.IsValid() {
		errs = append(errs, fmt.Errorf("capture.source %q is invalid; valid values: file, silence", cfg.Capture.Source))
	}
	if cfg.Capture.Source == CaptureFile && cfg.Capture.Path == "" {
		errs = append(errs, errors.New("capture.path is required when capture.source is file"))
	}
	if cfg.Capture.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.max_duration %d must be positive", cfg.Capture.MaxDuration))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Tick < 0 {
		errs = append(errs, fmt.Errorf("capture.tick %s must be positive", cfg.Capture.Tick))
	}

	// Playback
	if cfg.Playback.Sink != "" && !cfg.Playback.Sink.IsValid() {
		errs = append(errs, fmt.Errorf("playback.sink %q is invalid; valid values: log, dir", cfg.Playback.Sink))
	}
	if cfg.Playback.Sink == SinkDir && cfg.Playback.Dir == "" {
		errs = append(errs, errors.New("playback.dir is required when playback.sink is dir"))
	}
	if cfg.Playback.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate %d must not be negative", cfg.Playback.SampleRate))
	}
	if c := cfg.Playback.Channels; c != 0 && c != 1 && c != 2 {
		errs = append(errs, fmt.Errorf("playback.channels %d is invalid; valid values: 1, 2", c))
	}

	// Pipeline
	if cfg.Pipeline.WAVDecode != "" && !cfg.Pipeline.WAVDecode.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.wav_decode %q is invalid; valid values: parse, fixed", cfg.Pipeline.WAVDecode))
	}

	// Journal
	if cfg.Journal.Capacity < 0 {
		errs = append(errs, fmt.Errorf("journal.capacity %d must not be negative", cfg.Journal.Capacity))
	}

	return errors.Join(errs...)
}

// validateEntry checks a provider entry and, when top is set, its fallbacks.
func validateEntry(kind, prefix string, e ProviderEntry, top bool) []error {
	var errs []error
	if e.Name == "" && len(e.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("%s.fallbacks requires %s.name", prefix, prefix))
	}
	validateProviderName(kind, e.Name)
	for i, fb := range e.Fallbacks {
		fp := fmt.Sprintf("%s.fallbacks[%d]", prefix, i)
		if !top {
			errs = append(errs, fmt.Errorf("%s: nested fallbacks are not supported", fp))
			continue
		}
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", fp))
		}
		errs = append(errs, validateEntry(kind, fp, fb, false)...)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
