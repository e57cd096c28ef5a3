package pipeline

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/memory"
)

// Session is one push-to-talk round trip, from Start to its outcome. The
// orchestrator owns it while it runs; callers observe it through [Session.Snapshot]
// and [Session.Done].
type Session struct {
	// ID is a random UUID.
	ID string

	// StartedAt is when Start accepted the session.
	StartedAt time.Time

	done chan struct{}

	mu   sync.Mutex
	snap Snapshot
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitzero"`
	CaptureEnd string    `json:"capture_end,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Reply      string    `json:"reply,omitempty"`
	Samples    int       `json:"samples"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Failure    *Failure  `json:"failure,omitempty"`
}

func newSession(now time.Time) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		StartedAt: now,
		done:      make(chan struct{}),
		snap:      Snapshot{ID: id, State: Recording, StartedAt: now},
	}
}

// Snapshot returns a copy of the session's current progress.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Done is closed once the session reached its outcome and the orchestrator
// is back to Idle.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) update(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	return s.snap
}

// Record converts a finished snapshot into its journal row.
func (snap Snapshot) Record() memory.Record {
	r := memory.Record{
		SessionID:  snap.ID,
		StartedAt:  snap.StartedAt,
		EndedAt:    snap.EndedAt,
		Outcome:    memory.OutcomePlayed,
		Transcript: snap.Transcript,
		Reply:      snap.Reply,
		Samples:    snap.Samples,
		SampleRate: snap.SampleRate,
	}
	if snap.Failure != nil {
		r.Outcome = memory.OutcomeFailed
		r.FailedStage = snap.Failure.Stage.String()
		r.FailureKind = snap.Failure.Kind.String()
		r.FailureReason = snap.Failure.Reason()
	}
	return r
}

// Event is a state-change notification published to subscribers.
type Event struct {
	// Session is the id of the session the event belongs to.
	Session string

	// State is the state just entered.
	State State

	// At is when the state was entered.
	At time.Time

	// Transcript is set from Generating onward.
	Transcript string

	// Reply is set from Decoding onward.
	Reply string

	// Audio is the buffer handed to the sink. Set on Playing only; it is
	// shared with the sink and must not be modified.
	Audio *audio.SampleBuffer

	// Failure is set on Failed only.
	Failure *Failure
}

func marshalJSON(v any) ([]byte, error) {
	return sonic.Marshal(v)
}
