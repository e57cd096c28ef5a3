// Package memory defines the session journal: one [Record] per finished
// pipeline session, written when the session reaches its outcome and listed
// by the HTTP API and the CLI.
//
// Two backends are provided: [Ring], a bounded in-memory journal used when no
// database is configured, and the postgres sub-package. All interfaces are
// public so that external packages can supply alternative backends.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by [Store.Get] when no record has the requested id.
var ErrNotFound = errors.New("memory: record not found")

// Session outcomes stored in [Record.Outcome].
const (
	OutcomePlayed = "played"
	OutcomeFailed = "failed"
)

// Record is the journal row of one finished session.
type Record struct {
	// SessionID is the unique session identifier.
	SessionID string `json:"session_id"`

	// StartedAt is when recording began.
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when the session reached its outcome.
	EndedAt time.Time `json:"ended_at"`

	// Outcome is OutcomePlayed or OutcomeFailed.
	Outcome string `json:"outcome"`

	// FailedStage is the pipeline state the session failed in. Empty on success.
	FailedStage string `json:"failed_stage,omitempty"`

	// FailureKind is the failure classification (e.g. "transport"). Empty on success.
	FailureKind string `json:"failure_kind,omitempty"`

	// FailureReason is the user-visible failure text. Empty on success.
	FailureReason string `json:"failure_reason,omitempty"`

	// Transcript is the recognised speech, if the session got that far.
	Transcript string `json:"transcript,omitempty"`

	// Reply is the generated reply text, if the session got that far.
	Reply string `json:"reply,omitempty"`

	// Samples is the number of samples handed to playback.
	Samples int `json:"samples"`

	// SampleRate is the rate of the played audio. Zero if nothing played.
	SampleRate int `json:"sample_rate,omitempty"`
}

// Duration returns EndedAt - StartedAt.
func (r Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// ListOpts filters [Store.List]. All non-zero fields are applied as AND
// conditions. Results are ordered newest first.
type ListOpts struct {
	// Outcome restricts results to one outcome.
	Outcome string

	// FailureKind restricts results to one failure kind.
	FailureKind string

	// After filters records started after this instant (exclusive).
	After time.Time

	// Before filters records started before this instant (exclusive).
	Before time.Time

	// Query matches records whose transcript or reply contains all of its
	// words. Matching is backend specific: Ring does a case-insensitive
	// substring match, postgres uses full-text search.
	Query string

	// Limit caps the number of results. 0 lets the backend pick a default.
	Limit int
}

// Match reports whether r satisfies every filter in o except Limit.
func (o ListOpts) Match(r Record) bool {
	if o.Outcome != "" && r.Outcome != o.Outcome {
		return false
	}
	if o.FailureKind != "" && r.FailureKind != o.FailureKind {
		return false
	}
	if !o.After.IsZero() && !r.StartedAt.After(o.After) {
		return false
	}
	if !o.Before.IsZero() && !r.StartedAt.Before(o.Before) {
		return false
	}
	if o.Query != "" {
		haystack := strings.ToLower(r.Transcript + " " + r.Reply)
		for word := range strings.FieldsSeq(strings.ToLower(o.Query)) {
			if !strings.Contains(haystack, word) {
				return false
			}
		}
	}
	return true
}

// Store is the session journal.
type Store interface {
	// Append writes rec. Appending a SessionID twice replaces the earlier row.
	Append(ctx context.Context, rec Record) error

	// Get returns the record for sessionID, or [ErrNotFound].
	Get(ctx context.Context, sessionID string) (Record, error)

	// List returns records matching opts, newest first.
	List(ctx context.Context, opts ListOpts) ([]Record, error)
}
