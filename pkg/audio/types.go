// Package audio holds the PCM sample buffer that flows through the pipeline
// together with the capture and playback seams that produce and consume it.
//
// Samples are normalized float32 values in [-1, 1]. Multi-channel audio is
// interleaved (L, R, L, R, ...). Only mono and stereo are supported.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBuffer is returned by [SampleBuffer.Validate] for buffers whose
// metadata does not describe their samples.
var ErrInvalidBuffer = errors.New("audio: invalid sample buffer")

// SampleBuffer is a block of normalized PCM audio plus its format.
//
// A buffer is owned by exactly one pipeline stage at a time. Stages hand a
// buffer on by value and must not keep a reference to Samples afterwards.
type SampleBuffer struct {
	// Samples are interleaved normalized samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 44100 for capture, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Format returns the buffer's sample rate and channel count.
func (b SampleBuffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels}
}

// Frames returns the number of sample frames (samples per channel).
func (b SampleBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b SampleBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Empty reports whether the buffer holds no playable samples.
func (b SampleBuffer) Empty() bool {
	return len(b.Samples) == 0
}

// Validate checks the buffer invariants: a positive sample rate, one or two
// channels, and a sample count that is a multiple of the channel count.
func (b SampleBuffer) Validate() error {
	switch {
	case b.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidBuffer, b.SampleRate)
	case b.Channels != 1 && b.Channels != 2:
		return fmt.Errorf("%w: %d channels", ErrInvalidBuffer, b.Channels)
	case len(b.Samples)%b.Channels != 0:
		return fmt.Errorf("%w: %d samples not divisible by %d channels", ErrInvalidBuffer, len(b.Samples), b.Channels)
	}
	return nil
}

// Normalize converts signed 16-bit samples to a [SampleBuffer] by dividing
// each value by 32768. The results lie in [-1, 1).
func Normalize(raw []int16, sampleRate, channels int) SampleBuffer {
	samples := make([]float32, len(raw))
	for i, s := range raw {
		samples[i] = float32(s) / 32768.0
	}
	return SampleBuffer{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

// Quantize is the inverse of [Normalize]: it scales each sample by 32767,
// rounds to the nearest integer and clamps to the int16 range.
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = quantizeSample(s)
	}
	return out
}

func quantizeSample(s float32) int16 {
	v := float64(s) * 32767
	// Round half away from zero.
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	}
	return int16(v)
}
