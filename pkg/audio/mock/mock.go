// Package mock provides in-memory implementations of [audio.CaptureSource],
// [audio.CaptureHandle] and [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on call counts and arguments.
//
// Typical usage:
//
//	src := &mock.Source{Recording: mock.Tone(44100, 0.25)}
//	sink := &mock.Sink{}
//	buf, end, err := audio.Capture(ctx, src, audio.CaptureOptions{MaxSeconds: 1})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Source.Open] call.
type OpenCall struct {
	DeviceID   string
	Loop       bool
	MaxSeconds int
	SampleRate int
}

// Source is a mock [audio.CaptureSource]. Each Open returns a fresh [Handle]
// that plays back Recording.
type Source struct {
	mu sync.Mutex

	// Recording is what the device "hears". Nil means the device never
	// stops by itself and records silence forever.
	Recording []float32

	// Channels of Recording. Zero means mono.
	Channels int

	// FramesPerTick controls how fast the handle advances on each Position
	// query. Zero makes the whole recording available immediately.
	FramesPerTick int

	// OpenErr is returned by Open when non-nil.
	OpenErr error

	// Calls records every Open call.
	Calls []OpenCall

	// Handles holds the handles returned by Open, in order.
	Handles []*Handle
}

var _ audio.CaptureSource = (*Source)(nil)

// Open implements [audio.CaptureSource].
func (s *Source) Open(_ context.Context, deviceID string, loop bool, maxSeconds, sampleRate int) (audio.CaptureHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, OpenCall{DeviceID: deviceID, Loop: loop, MaxSeconds: maxSeconds, SampleRate: sampleRate})
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	ch := s.Channels
	if ch <= 0 {
		ch = 1
	}
	h := &Handle{
		capacity:  maxSeconds * sampleRate,
		channels:  ch,
		recording: s.Recording,
		endless:   s.Recording == nil,
		step:      s.FramesPerTick,
		done:      make(chan struct{}),
	}
	if s.Recording != nil && s.FramesPerTick <= 0 {
		h.position = min(len(s.Recording)/ch, h.capacity)
		close(h.done)
	}
	s.Handles = append(s.Handles, h)
	return h, nil
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is the live recording returned by [Source.Open].
type Handle struct {
	mu        sync.Mutex
	capacity  int
	channels  int
	recording []float32
	endless   bool
	step      int
	position  int
	done      chan struct{}
	closed    bool
}

var _ audio.CaptureHandle = (*Handle)(nil)

// Position implements [audio.CaptureHandle]. Every call advances the
// simulated device by the source's FramesPerTick.
func (h *Handle) Position() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.step <= 0 {
		return h.position
	}
	limit := h.capacity
	if !h.endless {
		limit = min(limit, len(h.recording)/h.channels)
	}
	h.position = min(h.position+h.step, limit)
	if !h.endless && h.position == limit {
		select {
		case <-h.done:
		default:
			close(h.done)
		}
	}
	return h.position
}

// Capacity implements [audio.CaptureHandle].
func (h *Handle) Capacity() int { return h.capacity }

// Channels implements [audio.CaptureHandle].
func (h *Handle) Channels() int { return h.channels }

// Read implements [audio.CaptureHandle].
func (h *Handle) Read(frames int) []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := min(frames, h.position) * h.channels
	out := make([]float32, n)
	if !h.endless {
		copy(out, h.recording)
	}
	return out
}

// Done implements [audio.CaptureHandle].
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close implements [audio.CaptureHandle].
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink] that records every buffer it is asked to play.
type Sink struct {
	mu     sync.Mutex
	played []audio.SampleBuffer
	notify chan struct{}
}

var _ audio.Sink = (*Sink)(nil)

// Play implements [audio.Sink].
func (s *Sink) Play(b audio.SampleBuffer) {
	s.mu.Lock()
	s.played = append(s.played, b)
	n := s.notify
	s.mu.Unlock()
	if n != nil {
		select {
		case n <- struct{}{}:
		default:
		}
	}
}

// Played returns a copy of every buffer passed to Play.
func (s *Sink) Played() []audio.SampleBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.SampleBuffer(nil), s.played...)
}

// WaitPlayed blocks until at least n buffers were played or timeout passes.
// It reports whether the count was reached.
func (s *Sink) WaitPlayed(n int, timeout time.Duration) bool {
	s.mu.Lock()
	if s.notify == nil {
		s.notify = make(chan struct{}, 1)
	}
	notify := s.notify
	s.mu.Unlock()

	deadline := time.After(timeout)
	for {
		if len(s.Played()) >= n {
			return true
		}
		select {
		case <-notify:
		case <-deadline:
			return len(s.Played()) >= n
		}
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// Tone returns seconds of a constant-amplitude square-ish test signal at
// sampleRate, mono.
func Tone(sampleRate int, seconds float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)
	for i := range out {
		if (i/50)%2 == 0 {
			out[i] = 0.5
		} else {
			out[i] = -0.5
		}
	}
	return out
}
