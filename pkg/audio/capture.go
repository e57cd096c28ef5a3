package audio

import (
	"context"
	"fmt"
	"time"
)

// Capture defaults, matching a five second push-to-talk clip recorded at
// CD quality.
const (
	DefaultMaxSeconds = 5
	DefaultSampleRate = 44100
	DefaultTick       = 20 * time.Millisecond
)

// CaptureSource opens a recording on a capture device. Implementations must
// be safe for concurrent use.
type CaptureSource interface {
	// Open starts recording into a buffer sized for maxSeconds of audio at
	// sampleRate. When loop is true the device wraps around and records
	// until the handle is closed.
	Open(ctx context.Context, deviceID string, loop bool, maxSeconds, sampleRate int) (CaptureHandle, error)
}

// CaptureHandle is a live recording started by [CaptureSource.Open].
type CaptureHandle interface {
	// Position returns the number of frames recorded so far.
	Position() int

	// Capacity returns the size of the recording buffer in frames.
	Capacity() int

	// Channels returns the channel count of the recorded audio.
	Channels() int

	// Read returns a copy of at most the first frames frames recorded so far,
	// as interleaved normalized samples.
	Read(frames int) []float32

	// Done is closed when the device stops recording on its own.
	Done() <-chan struct{}

	// Close stops the recording and releases the device.
	Close() error
}

// CaptureOptions configures a [Capture] call.
type CaptureOptions struct {
	DeviceID   string
	Loop       bool
	MaxSeconds int
	SampleRate int

	// Tick is the polling interval used to detect natural completion.
	Tick time.Duration

	// Ceiling overrides the wall-clock cutoff. Zero means MaxSeconds.
	Ceiling time.Duration

	// Stop ends the recording early when closed.
	Stop <-chan struct{}
}

func (o *CaptureOptions) setDefaults() {
	if o.MaxSeconds <= 0 {
		o.MaxSeconds = DefaultMaxSeconds
	}
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.Ceiling <= 0 {
		o.Ceiling = time.Duration(o.MaxSeconds) * time.Second
	}
}

// CaptureEnd tells why a capture finished.
type CaptureEnd int

const (
	// EndNatural means the device filled its buffer or stopped by itself.
	EndNatural CaptureEnd = iota
	// EndStopped means the caller closed CaptureOptions.Stop.
	EndStopped
	// EndCeiling means the duration ceiling forced the cutoff.
	EndCeiling
)

// String implements [fmt.Stringer].
func (e CaptureEnd) String() string {
	switch e {
	case EndNatural:
		return "natural"
	case EndStopped:
		return "stopped"
	case EndCeiling:
		return "ceiling"
	default:
		return fmt.Sprintf("CaptureEnd(%d)", int(e))
	}
}

// Capture records from src until the device completes, opts.Stop closes, or
// the duration ceiling elapses, whichever happens first. The device position
// is polled once per opts.Tick.
//
// The result never holds more than MaxSeconds*SampleRate frames. A stop or
// natural end truncates to the frames actually recorded; a forced cutoff
// yields exactly MaxSeconds*SampleRate frames, zero-filled past the device
// position. Cancelling ctx abandons the recording and returns ctx.Err().
func Capture(ctx context.Context, src CaptureSource, opts CaptureOptions) (SampleBuffer, CaptureEnd, error) {
	opts.setDefaults()

	h, err := src.Open(ctx, opts.DeviceID, opts.Loop, opts.MaxSeconds, opts.SampleRate)
	if err != nil {
		return SampleBuffer{}, 0, fmt.Errorf("audio: open capture device %q: %w", opts.DeviceID, err)
	}
	defer h.Close()

	limit := opts.MaxSeconds * opts.SampleRate
	if c := h.Capacity(); c > 0 && c < limit {
		limit = c
	}

	ceiling := time.NewTimer(opts.Ceiling)
	defer ceiling.Stop()
	ticker := time.NewTicker(opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return SampleBuffer{}, 0, ctx.Err()
		case <-opts.Stop:
			return collect(h, min(h.Position(), limit), opts.SampleRate), EndStopped, nil
		case <-ceiling.C:
			return collect(h, limit, opts.SampleRate), EndCeiling, nil
		case <-h.Done():
			return collect(h, min(h.Position(), limit), opts.SampleRate), EndNatural, nil
		case <-ticker.C:
			if !opts.Loop && h.Position() >= limit {
				return collect(h, limit, opts.SampleRate), EndNatural, nil
			}
		}
	}
}

// collect reads frames frames from h, zero-filling anything the device has
// not written yet.
func collect(h CaptureHandle, frames, sampleRate int) SampleBuffer {
	ch := h.Channels()
	if ch <= 0 {
		ch = 1
	}
	samples := make([]float32, frames*ch)
	copy(samples, h.Read(frames))
	return SampleBuffer{Samples: samples, SampleRate: sampleRate, Channels: ch}
}
