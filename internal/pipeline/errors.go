package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/pkg/audio/textcodec"
	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/reply"
)

var (
	// ErrBusy is returned by Start while a session is live.
	ErrBusy = errors.New("pipeline: a session is already in progress")

	// ErrNotRecording is returned by Stop outside the Recording state.
	ErrNotRecording = errors.New("pipeline: no session is recording")

	// ErrIdle is returned by Cancel when no session is live.
	ErrIdle = errors.New("pipeline: no session in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline: orchestrator closed")

	// ErrEmptyAudio is the cause of a [KindEmptyAudio] failure.
	ErrEmptyAudio = errors.New("pipeline: reply audio has no playable samples")
)

// Kind classifies a session failure.
type Kind int

const (
	// KindInternal is anything not covered by a more specific kind.
	KindInternal Kind = iota
	// KindTransport is a non-success status or network fault from a remote call.
	KindTransport
	// KindParse is a malformed structured reply.
	KindParse
	// KindMissingField is a well-formed reply without the expected content.
	KindMissingField
	// KindMalformedAudio is a corrupt or unsupported WAV container.
	KindMalformedAudio
	// KindDecode is an invalid base64 audio payload.
	KindDecode
	// KindEmptyAudio is a reply with zero playable samples.
	KindEmptyAudio
	// KindCapture is a recording device failure.
	KindCapture
	// KindCancelled is a session aborted by Cancel or Close.
	KindCancelled
)

var kindNames = [...]string{
	KindInternal:       "internal",
	KindTransport:      "transport",
	KindParse:          "parse",
	KindMissingField:   "missing_field",
	KindMalformedAudio: "malformed_audio",
	KindDecode:         "decode",
	KindEmptyAudio:     "empty_audio",
	KindCapture:        "capture",
	KindCancelled:      "cancelled",
}

// String implements [fmt.Stringer].
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Failure is the terminal outcome of a failed session.
type Failure struct {
	Kind  Kind
	Stage State
	Err   error
}

// Error implements error.
func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline: %s failed (%s): %v", f.Stage, f.Kind, f.Err)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Reason returns the text shown to the user.
func (f *Failure) Reason() string {
	switch f.Kind {
	case KindTransport:
		var se *httpapi.StatusError
		if errors.As(f.Err, &se) {
			return fmt.Sprintf("%s error: %d %s", service(f.Stage), se.Code, se.Reason)
		}
		return fmt.Sprintf("%s unreachable", service(f.Stage))
	case KindParse:
		return fmt.Sprintf("Malformed reply from the %s.", service(f.Stage))
	case KindMissingField:
		if f.Stage == Transcribing {
			return "No speech recognized."
		}
		return fmt.Sprintf("No response from the %s.", service(f.Stage))
	case KindMalformedAudio:
		return "The reply audio is not a supported WAV file."
	case KindDecode:
		return "The reply audio could not be decoded."
	case KindEmptyAudio:
		return "The reply contained no audio."
	case KindCapture:
		return "Recording failed."
	case KindCancelled:
		return "Cancelled."
	default:
		return "Internal error."
	}
}

// MarshalJSON encodes the failure with its reason and cause as text.
func (f *Failure) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind   Kind   `json:"kind"`
		Stage  State  `json:"stage"`
		Reason string `json:"reason"`
		Error  string `json:"error,omitempty"`
	}
	w := wire{Kind: f.Kind, Stage: f.Stage, Reason: f.Reason()}
	if f.Err != nil {
		w.Error = f.Err.Error()
	}
	return marshalJSON(w)
}

func service(stage State) string {
	switch stage {
	case Transcribing:
		return "transcription service"
	case Generating:
		return "language model"
	case Decoding:
		return "speech service"
	default:
		return "remote service"
	}
}

// classify wraps err, returned while the session was in stage, in a Failure.
// A done session context always yields KindCancelled. Untyped errors from a
// remote stage count as transport faults.
func classify(ctx context.Context, stage State, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	f = &Failure{Stage: stage, Err: err}
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		f.Kind = KindCancelled
	case errors.Is(err, httpapi.ErrTransport):
		f.Kind = KindTransport
	case errors.Is(err, reply.ErrMissingField):
		f.Kind = KindMissingField
	case errors.Is(err, reply.ErrParse):
		f.Kind = KindParse
	case errors.Is(err, wav.ErrMalformedAudio):
		f.Kind = KindMalformedAudio
	case errors.Is(err, textcodec.ErrDecode):
		f.Kind = KindDecode
	case errors.Is(err, ErrEmptyAudio):
		f.Kind = KindEmptyAudio
	case stage == Recording:
		f.Kind = KindCapture
	case errors.Is(err, resilience.ErrCircuitOpen), remote(stage):
		f.Kind = KindTransport
	default:
		f.Kind = KindInternal
	}
	return f
}

func remote(stage State) bool {
	return stage == Transcribing || stage == Generating || stage == Decoding
}
