// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider accepts one complete utterance encoded as a WAV container
// and returns the remote service's raw reply together with the location of
// the transcript inside it. Parsing the reply is left to the caller so that
// malformed replies and empty transcripts can be told apart uniformly across
// backends (see package reply).
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/parley/pkg/reply"
)

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe sends the WAV container to the backend and returns its raw
	// reply. Network faults and non-2xx statuses are returned as errors
	// matching httpapi.ErrTransport; cancelling ctx aborts the call.
	Transcribe(ctx context.Context, wav []byte) (reply.Reply, error)
}

// Func adapts a plain function to [Provider].
type Func func(ctx context.Context, wav []byte) (reply.Reply, error)

// Transcribe calls f(ctx, wav).
func (f Func) Transcribe(ctx context.Context, wav []byte) (reply.Reply, error) {
	return f(ctx, wav)
}
