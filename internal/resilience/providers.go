package resilience

import (
	"context"

	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/reply"
)

// STT implements [stt.Provider] with failover across several transcription
// backends.
type STT struct {
	*FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STT)(nil)

// NewSTT creates an [STT] with primary as the preferred backend.
func NewSTT(primary stt.Provider, primaryName string, cfg FallbackConfig) *STT {
	return &STT{NewFallbackGroup(primary, primaryName, cfg)}
}

// Transcribe sends the utterance to the first healthy backend.
func (f *STT) Transcribe(ctx context.Context, wav []byte) (reply.Reply, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p stt.Provider) (reply.Reply, error) {
		return p.Transcribe(ctx, wav)
	})
}

// LLM implements [llm.Provider] with failover across several generation
// backends.
type LLM struct {
	*FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM creates an [LLM] with primary as the preferred backend.
func NewLLM(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLM {
	return &LLM{NewFallbackGroup(primary, primaryName, cfg)}
}

// Generate sends the prompt to the first healthy backend.
func (f *LLM) Generate(ctx context.Context, prompt string) (reply.Reply, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p llm.Provider) (reply.Reply, error) {
		return p.Generate(ctx, prompt)
	})
}

// TTS implements [tts.Provider] with failover across several speech
// backends.
type TTS struct {
	*FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS creates a [TTS] with primary as the preferred backend.
func NewTTS(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTS {
	return &TTS{NewFallbackGroup(primary, primaryName, cfg)}
}

// Synthesize sends the text to the first healthy backend.
func (f *TTS) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p tts.Provider) (tts.Speech, error) {
		return p.Synthesize(ctx, text)
	})
}
