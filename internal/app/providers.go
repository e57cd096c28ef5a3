package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Providers holds one provider per remote stage. A stage configured with
// fallbacks is a resilience group; otherwise it is the bare provider.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	// STTName, LLMName and TTSName are the primary provider names, used as
	// metric labels.
	STTName string
	LLMName string
	TTSName string

	// Breakers holds the circuit breakers of each stage that has fallbacks,
	// keyed by "stt", "llm" or "tts".
	Breakers map[string][]*resilience.CircuitBreaker
}

// member is one created provider of a fallback chain.
type member[T any] struct {
	name     string
	provider T
}

// BuildProviders instantiates every provider named in cfg through reg. A
// missing TTS entry falls back to [tts.Silent]; STT and LLM are required.
// Breaker transitions of fallback chains are logged and counted on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	ps := &Providers{Breakers: make(map[string][]*resilience.CircuitBreaker)}

	// ── STT ──────────────────────────────────────────────────────────────
	if cfg.Providers.STT.Name == "" {
		return nil, errors.New("app: providers.stt.name is required")
	}
	sttChain, err := chain("stt", cfg.Providers.STT, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	ps.STTName = sttChain[0].name
	ps.STT = sttChain[0].provider
	if len(sttChain) > 1 {
		g := resilience.NewSTT(sttChain[0].provider, sttChain[0].name, breakerConfig("stt", m))
		ps.Breakers["stt"] = addFallbacks(g.FallbackGroup, sttChain[1:])
		ps.STT = g
	}

	// ── LLM ──────────────────────────────────────────────────────────────
	if cfg.Providers.LLM.Name == "" {
		return nil, errors.New("app: providers.llm.name is required")
	}
	llmChain, err := chain("llm", cfg.Providers.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	ps.LLMName = llmChain[0].name
	ps.LLM = llmChain[0].provider
	if len(llmChain) > 1 {
		g := resilience.NewLLM(llmChain[0].provider, llmChain[0].name, breakerConfig("llm", m))
		ps.Breakers["llm"] = addFallbacks(g.FallbackGroup, llmChain[1:])
		ps.LLM = g
	}

	// ── TTS ──────────────────────────────────────────────────────────────
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no tts provider configured, replies will be silent")
		ps.TTS = tts.Silent{}
		ps.TTSName = "silent"
		return ps, nil
	}
	ttsChain, err := chain("tts", cfg.Providers.TTS, reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	ps.TTSName = ttsChain[0].name
	ps.TTS = ttsChain[0].provider
	if len(ttsChain) > 1 {
		g := resilience.NewTTS(ttsChain[0].provider, ttsChain[0].name, breakerConfig("tts", m))
		ps.Breakers["tts"] = addFallbacks(g.FallbackGroup, ttsChain[1:])
		ps.TTS = g
	}

	return ps, nil
}

// chain creates the primary provider of entry followed by its fallbacks.
// Fallbacks get an index suffix so two entries with the same provider name
// keep separate breakers.
func chain[T any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]member[T], error) {
	entries := append([]config.ProviderEntry{entry}, entry.Fallbacks...)
	members := make([]member[T], 0, len(entries))
	for i, e := range entries {
		p, err := create(e)
		if err != nil {
			return nil, fmt.Errorf("app: create %s provider %q: %w", kind, e.Name, err)
		}
		name := e.Name
		if i > 0 {
			name = fmt.Sprintf("%s#%d", e.Name, i)
		}
		members = append(members, member[T]{name: name, provider: p})
		slog.Info("provider created", "kind", kind, "name", name, "model", e.Model, "fallback", i > 0)
	}
	return members, nil
}

func addFallbacks[T any](g *resilience.FallbackGroup[T], fallbacks []member[T]) []*resilience.CircuitBreaker {
	for _, f := range fallbacks {
		g.AddFallback(f.name, f.provider)
	}
	return g.Breakers()
}

func breakerConfig(kind string, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed",
					"kind", kind,
					"provider", name,
					"from", from.String(),
					"to", to.String(),
				)
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
		OnFailover: func(answered string, skipped []string) {
			slog.Info("fallback provider answered", "kind", kind, "provider", answered, "skipped", skipped)
			m.RecordFailover(context.Background(), kind, answered)
		},
	}
}
