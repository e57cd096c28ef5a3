// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one complete reply text into audio. Backends either
// return a WAV container directly or, for services that embed audio in a
// JSON field, the container's base64 text form; [Speech] carries whichever
// the backend produced and the caller decodes it.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
)

// Speech is the output of a synthesis call. At most one field is set; both
// empty means the backend produced no audio.
type Speech struct {
	// Container is a WAV container.
	Container []byte

	// Encoded is a WAV container in standard base64 text form.
	Encoded string
}

// Empty reports whether the backend produced no audio at all.
func (s Speech) Empty() bool {
	return len(s.Container) == 0 && s.Encoded == ""
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into speech. Cancelling ctx aborts the call.
	Synthesize(ctx context.Context, text string) (Speech, error)
}

// Func adapts a plain function to [Provider].
type Func func(ctx context.Context, text string) (Speech, error)

// Synthesize calls f(ctx, text).
func (f Func) Synthesize(ctx context.Context, text string) (Speech, error) {
	return f(ctx, text)
}

// Silent is a Provider that never produces audio. Pipelines configured
// without a speech backend use it; the empty result is reported downstream
// as empty audio rather than played.
type Silent struct{}

var _ Provider = Silent{}

// Synthesize returns an empty Speech.
func (Silent) Synthesize(ctx context.Context, _ string) (Speech, error) {
	return Speech{}, ctx.Err()
}
