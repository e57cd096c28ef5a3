package app_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/parley/internal/app"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/provider/llm"
	llmmock "github.com/MrWong99/parley/pkg/provider/llm/mock"
	"github.com/MrWong99/parley/pkg/provider/stt"
	sttmock "github.com/MrWong99/parley/pkg/provider/stt/mock"
	"github.com/MrWong99/parley/pkg/provider/tts"
	ttsmock "github.com/MrWong99/parley/pkg/provider/tts/mock"
)

// mockRegistry registers "primary" and "backup" for every kind. The stt
// mocks transcribe to their own name so tests can see which one answered.
func mockRegistry(sttErr map[string]error) *config.Registry {
	reg := config.NewRegistry()
	for _, name := range []string{"primary", "backup"} {
		reg.RegisterSTT(name, func(config.ProviderEntry) (stt.Provider, error) {
			return &sttmock.Provider{Text: name, Err: sttErr[name]}, nil
		})
		reg.RegisterLLM(name, func(config.ProviderEntry) (llm.Provider, error) {
			return &llmmock.Provider{Text: name}, nil
		})
		reg.RegisterTTS(name, func(config.ProviderEntry) (tts.Provider, error) {
			return &ttsmock.Provider{}, nil
		})
	}
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, errors.New("no credentials")
	})
	return reg
}

func providersConfig(stt, llm, tts config.ProviderEntry) *config.Config {
	return &config.Config{Providers: config.ProvidersConfig{STT: stt, LLM: llm, TTS: tts}}
}

func TestBuildProviders_Plain(t *testing.T) {
	t.Parallel()

	cfg := providersConfig(
		config.ProviderEntry{Name: "primary"},
		config.ProviderEntry{Name: "primary"},
		config.ProviderEntry{Name: "backup"},
	)
	ps, err := app.BuildProviders(cfg, mockRegistry(nil), nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.STT.(*sttmock.Provider); !ok {
		t.Errorf("STT = %T, want the bare provider", ps.STT)
	}
	if ps.TTSName != "backup" {
		t.Errorf("TTSName = %q, want backup", ps.TTSName)
	}
	if len(ps.Breakers) != 0 {
		t.Errorf("Breakers = %v, want none", ps.Breakers)
	}
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()

	cfg := providersConfig(
		config.ProviderEntry{Name: "primary", Fallbacks: []config.ProviderEntry{{Name: "backup"}}},
		config.ProviderEntry{Name: "primary", Fallbacks: []config.ProviderEntry{{Name: "primary"}}},
		config.ProviderEntry{Name: "primary"},
	)
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	reg := mockRegistry(map[string]error{"primary": errors.New("down")})
	ps, err := app.BuildProviders(cfg, reg, m)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}

	if _, ok := ps.STT.(*resilience.STT); !ok {
		t.Fatalf("STT = %T, want *resilience.STT", ps.STT)
	}
	r, err := ps.STT.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text, _ := r.Text(); text != "backup" {
		t.Errorf("Transcribe answered by %q, want backup", text)
	}
	if n := failovers(t, reader); n != 1 {
		t.Errorf("recorded %d failovers, want 1", n)
	}

	if got := len(ps.Breakers["stt"]); got != 2 {
		t.Errorf("stt breakers = %d, want 2", got)
	}
	llmBreakers := ps.Breakers["llm"]
	if len(llmBreakers) != 2 {
		t.Fatalf("llm breakers = %d, want 2", len(llmBreakers))
	}
	if a, b := llmBreakers[0].Name(), llmBreakers[1].Name(); a == b {
		t.Errorf("breaker names collide: %q", a)
	}
	if _, ok := ps.Breakers["tts"]; ok {
		t.Error("tts has breakers without fallbacks")
	}
}

func TestBuildProviders_SilentTTS(t *testing.T) {
	t.Parallel()

	cfg := providersConfig(
		config.ProviderEntry{Name: "primary"},
		config.ProviderEntry{Name: "primary"},
		config.ProviderEntry{},
	)
	ps, err := app.BuildProviders(cfg, mockRegistry(nil), nil)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.TTS.(tts.Silent); !ok {
		t.Errorf("TTS = %T, want tts.Silent", ps.TTS)
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.Config
		want error
	}{
		{
			name: "missing stt",
			cfg:  providersConfig(config.ProviderEntry{}, config.ProviderEntry{Name: "primary"}, config.ProviderEntry{}),
		},
		{
			name: "missing llm",
			cfg:  providersConfig(config.ProviderEntry{Name: "primary"}, config.ProviderEntry{}, config.ProviderEntry{}),
		},
		{
			name: "unregistered",
			cfg:  providersConfig(config.ProviderEntry{Name: "nope"}, config.ProviderEntry{Name: "primary"}, config.ProviderEntry{}),
			want: config.ErrProviderNotRegistered,
		},
		{
			name: "unregistered fallback",
			cfg: providersConfig(
				config.ProviderEntry{Name: "primary"},
				config.ProviderEntry{Name: "primary", Fallbacks: []config.ProviderEntry{{Name: "nope"}}},
				config.ProviderEntry{},
			),
			want: config.ErrProviderNotRegistered,
		},
		{
			name: "factory error",
			cfg: providersConfig(
				config.ProviderEntry{Name: "primary"},
				config.ProviderEntry{Name: "primary"},
				config.ProviderEntry{Name: "broken"},
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := app.BuildProviders(tt.cfg, mockRegistry(nil), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// failovers sums the failover counter collected from reader.
func failovers(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var n int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok && met.Name == "parley.provider.failovers" {
				for _, dp := range sum.DataPoints {
					n += dp.Value
				}
			}
		}
	}
	return n
}
