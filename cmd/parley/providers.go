package main

import (
	"log/slog"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/llm/anyllm"
	hfllm "github.com/MrWong99/parley/pkg/provider/llm/huggingface"
	oallm "github.com/MrWong99/parley/pkg/provider/llm/openai"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/stt/deepgram"
	hfstt "github.com/MrWong99/parley/pkg/provider/stt/huggingface"
	oastt "github.com/MrWong99/parley/pkg/provider/stt/openai"
	"github.com/MrWong99/parley/pkg/provider/stt/whisper"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/provider/tts/coqui"
	"github.com/MrWong99/parley/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/parley/pkg/provider/tts/jsonaudio"
	oatts "github.com/MrWong99/parley/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the implementation packages. Vendor-specific settings come from
// entry.Options.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("huggingface", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []hfstt.Option
		if entry.Model != "" {
			opts = append(opts, hfstt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, hfstt.WithBaseURL(entry.BaseURL))
		}
		if wait, ok := config.OptBool(entry.Options, "wait_for_model"); ok {
			opts = append(opts, hfstt.WithWaitForModel(wait))
		}
		return hfstt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if pass, ok := config.OptBool(entry.Options, "passthrough"); ok {
			opts = append(opts, whisper.WithPassthrough(pass))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if kw := config.OptString(entry.Options, "keywords"); kw != "" {
			opts = append(opts, deepgram.WithKeywords(splitList(kw)...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		if d := optSeconds(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("huggingface", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []hfllm.Option
		if entry.Model != "" {
			opts = append(opts, hfllm.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, hfllm.WithBaseURL(entry.BaseURL))
		}
		if n, ok := config.OptInt(entry.Options, "max_new_tokens"); ok {
			opts = append(opts, hfllm.WithMaxNewTokens(n))
		}
		if t, ok := config.OptFloat(entry.Options, "temperature"); ok {
			opts = append(opts, hfllm.WithTemperature(t))
		}
		if full, ok := config.OptBool(entry.Options, "return_full_text"); ok {
			opts = append(opts, hfllm.WithReturnFullText(full))
		}
		return hfllm.New(entry.APIKey, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if prompt := config.OptString(entry.Options, "system_prompt"); prompt != "" {
			opts = append(opts, oallm.WithSystemPrompt(prompt))
		}
		if t, ok := config.OptFloat(entry.Options, "temperature"); ok {
			opts = append(opts, oallm.WithTemperature(t))
		}
		if n, ok := config.OptInt(entry.Options, "max_tokens"); ok {
			opts = append(opts, oallm.WithMaxTokens(n))
		}
		if d := optSeconds(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile and
	// ollama go through any-llm and share the same pattern: optional APIKey
	// plus optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral",
		"groq", "llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			var settings []anyllm.Setting
			if prompt := config.OptString(entry.Options, "system_prompt"); prompt != "" {
				settings = append(settings, anyllm.WithSystemPrompt(prompt))
			}
			if t, ok := config.OptFloat(entry.Options, "temperature"); ok {
				settings = append(settings, anyllm.WithTemperature(t))
			}
			if n, ok := config.OptInt(entry.Options, "max_tokens"); ok {
				settings = append(settings, anyllm.WithMaxTokens(n))
			}
			return p.Apply(settings...), nil
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("silent", func(config.ProviderEntry) (tts.Provider, error) {
		return tts.Silent{}, nil
	})

	reg.RegisterTTS("jsonaudio", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []jsonaudio.Option
		if entry.APIKey != "" {
			opts = append(opts, jsonaudio.WithToken(entry.APIKey))
		}
		if voice := config.OptString(entry.Options, "voice"); voice != "" {
			opts = append(opts, jsonaudio.WithVoice(voice))
		}
		if field := config.OptString(entry.Options, "field"); field != "" {
			opts = append(opts, jsonaudio.WithField(field))
		}
		return jsonaudio.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := config.OptString(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := config.OptString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate, ok := config.OptInt(entry.Options, "output_sample_rate"); ok {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		if d := optSeconds(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		if outputFmt := config.OptString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		stability, okS := config.OptFloat(entry.Options, "stability")
		similarity, okB := config.OptFloat(entry.Options, "similarity_boost")
		if okS || okB {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, config.OptString(entry.Options, "voice_id"), opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if voice := config.OptString(entry.Options, "voice"); voice != "" {
			opts = append(opts, oatts.WithVoice(voice))
		}
		if speed, ok := config.OptFloat(entry.Options, "speed"); ok {
			opts = append(opts, oatts.WithSpeed(speed))
		}
		if d := optSeconds(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oatts.WithTimeout(d))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optSeconds reads a timeout given in (possibly fractional) seconds.
func optSeconds(opts map[string]any, key string) time.Duration {
	s, ok := config.OptFloat(opts, key)
	if !ok || s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// splitList splits a comma separated option value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
