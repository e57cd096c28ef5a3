package pipeline

import (
	"fmt"
)

// State is a stage of the session lifecycle.
type State int

const (
	// Idle means no session is live and Start is accepted.
	Idle State = iota
	// Recording means audio is being captured.
	Recording
	// Encoding means the capture is being packed into a WAV container.
	Encoding
	// Transcribing means the speech-to-text call is in flight.
	Transcribing
	// Generating means the language model call is in flight.
	Generating
	// Decoding means the reply is being synthesized and decoded into samples.
	Decoding
	// Playing means the decoded reply was handed to the sink.
	Playing
	// Failed means the session ended with a [Failure].
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	Recording:    "recording",
	Encoding:     "encoding",
	Transcribing: "transcribing",
	Generating:   "generating",
	Decoding:     "decoding",
	Playing:      "playing",
	Failed:       "failed",
}

// String implements [fmt.Stringer].
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown state %q", b)
}

// Busy reports whether a session is live in state s.
func (s State) Busy() bool {
	return s != Idle
}
