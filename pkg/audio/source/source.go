// Package source provides [audio.CaptureSource] implementations that do not
// need a sound card: a WAV file replayed in real time and an endless silent
// device. They let the pipeline run headless on servers and in CI.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/wav"
)

// ─── File ─────────────────────────────────────────────────────────────────────

// File replays a WAV file as if a microphone were recording it. The device id
// passed to Open is ignored.
type File struct {
	path string

	mu   sync.Mutex
	data audio.SampleBuffer // cached, at the rate of the last Open
}

var _ audio.CaptureSource = (*File)(nil)

// NewFile returns a source that replays the WAV file at path. The file is
// read and validated immediately so a bad path fails at startup.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("source: file path must not be empty")
	}
	f := &File{path: path}
	if _, err := f.load(0); err != nil {
		return nil, err
	}
	return f, nil
}

// load returns the file's samples as mono at sampleRate. Zero keeps the
// file's own rate.
func (f *File) load(sampleRate int) (audio.SampleBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.data.Empty() && (sampleRate == 0 || f.data.SampleRate == sampleRate) {
		return f.data, nil
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("source: read %s: %w", f.path, err)
	}
	buf, err := wav.Parse(raw)
	if err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("source: %s: %w", f.path, err)
	}
	buf = audio.ToMono(buf)
	if sampleRate > 0 {
		buf = audio.Resample(buf, sampleRate)
	}
	f.data = buf
	return buf, nil
}

// Open implements [audio.CaptureSource].
func (f *File) Open(_ context.Context, _ string, loop bool, maxSeconds, sampleRate int) (audio.CaptureHandle, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("source: sample rate must be positive, got %d", sampleRate)
	}
	buf, err := f.load(sampleRate)
	if err != nil {
		return nil, err
	}
	return newHandle(buf.Samples, loop, maxSeconds*sampleRate, sampleRate), nil
}

// ─── Silence ──────────────────────────────────────────────────────────────────

// Silence is a device that records zeros until the ceiling or a stop ends
// the capture. It never completes on its own.
type Silence struct{}

var _ audio.CaptureSource = Silence{}

// Open implements [audio.CaptureSource].
func (Silence) Open(_ context.Context, _ string, _ bool, maxSeconds, sampleRate int) (audio.CaptureHandle, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("source: sample rate must be positive, got %d", sampleRate)
	}
	return newHandle(nil, true, maxSeconds*sampleRate, sampleRate), nil
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// handle advances its position with wall-clock time at sampleRate frames per
// second, like a real device writing into a fixed buffer.
type handle struct {
	samples  []float32 // mono recording; nil records silence
	loop     bool
	capacity int
	rate     int
	started  time.Time

	done  chan struct{}
	timer *time.Timer

	mu     sync.Mutex
	closed bool
	frozen int
}

func newHandle(samples []float32, loop bool, capacity, rate int) *handle {
	h := &handle{
		samples:  samples,
		loop:     loop,
		capacity: capacity,
		rate:     rate,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	if !loop {
		end := h.end()
		h.timer = time.AfterFunc(framesToDuration(end, rate), func() { close(h.done) })
	}
	return h
}

// end is the frame at which a non-looping recording stops by itself.
func (h *handle) end() int {
	if h.samples == nil {
		return h.capacity
	}
	return min(len(h.samples), h.capacity)
}

func framesToDuration(frames, rate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// Position implements [audio.CaptureHandle]. Looping handles wrap at the
// buffer capacity.
func (h *handle) Position() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return h.frozen
	}
	return h.positionLocked()
}

func (h *handle) positionLocked() int {
	elapsed := int(time.Since(h.started).Seconds() * float64(h.rate))
	if h.loop {
		if h.capacity <= 0 {
			return 0
		}
		return elapsed % h.capacity
	}
	return min(elapsed, h.end())
}

// Capacity implements [audio.CaptureHandle].
func (h *handle) Capacity() int { return h.capacity }

// Channels implements [audio.CaptureHandle]. File and silence sources are mono.
func (h *handle) Channels() int { return 1 }

// Read implements [audio.CaptureHandle]. Frames past the recording are
// silent; a looping recording repeats.
func (h *handle) Read(frames int) []float32 {
	out := make([]float32, max(frames, 0))
	if len(h.samples) == 0 {
		return out
	}
	for i := range out {
		if i >= len(h.samples) && !h.loop {
			break
		}
		out[i] = h.samples[i%len(h.samples)]
	}
	return out
}

// Done implements [audio.CaptureHandle].
func (h *handle) Done() <-chan struct{} { return h.done }

// Close implements [audio.CaptureHandle]. The position stops advancing.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.frozen = h.positionLocked()
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
	}
	return nil
}
