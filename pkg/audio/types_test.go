package audio_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	b := audio.Normalize([]int16{0, 16384, -16384, 32767, -32768}, 44100, 1)
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1}
	if len(b.Samples) != len(want) {
		t.Fatalf("len = %d, want %d", len(b.Samples), len(want))
	}
	for i := range want {
		if b.Samples[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, b.Samples[i], want[i])
		}
		if b.Samples[i] > 1 || b.Samples[i] < -1 {
			t.Errorf("sample %d out of range: %v", i, b.Samples[i])
		}
	}
	if b.SampleRate != 44100 || b.Channels != 1 {
		t.Errorf("format = %v, want 44100Hz mono", b.Format())
	}
}

func TestQuantize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full scale", 1, 32767},
		{"negative full scale", -1, -32767},
		{"over range", 1.5, 32767},
		{"under range", -1.5, -32768},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Quantize([]float32{tc.in})[0]
			if got != tc.want {
				t.Errorf("Quantize(%v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeQuantize_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := make([]int16, 0, 512)
	for v := -32768; v <= 32767; v += 128 {
		raw = append(raw, int16(v))
	}
	b := audio.Normalize(raw, 16000, 1)
	back := audio.Quantize(b.Samples)
	for i := range raw {
		if d := math.Abs(float64(back[i]) - float64(raw[i])); d > 1 {
			t.Fatalf("sample %d: %d became %d", i, raw[i], back[i])
		}
	}
}

func TestSampleBuffer_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		buf     audio.SampleBuffer
		wantErr bool
	}{
		{"mono ok", audio.SampleBuffer{Samples: make([]float32, 3), SampleRate: 44100, Channels: 1}, false},
		{"stereo ok", audio.SampleBuffer{Samples: make([]float32, 4), SampleRate: 48000, Channels: 2}, false},
		{"empty ok", audio.SampleBuffer{SampleRate: 16000, Channels: 1}, false},
		{"stereo odd", audio.SampleBuffer{Samples: make([]float32, 3), SampleRate: 48000, Channels: 2}, true},
		{"zero rate", audio.SampleBuffer{Samples: make([]float32, 2), Channels: 1}, true},
		{"three channels", audio.SampleBuffer{Samples: make([]float32, 3), SampleRate: 8000, Channels: 3}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.buf.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, audio.ErrInvalidBuffer) {
				t.Errorf("error %v does not wrap ErrInvalidBuffer", err)
			}
		})
	}
}

func TestSampleBuffer_Duration(t *testing.T) {
	t.Parallel()

	b := audio.SampleBuffer{Samples: make([]float32, 88200), SampleRate: 44100, Channels: 2}
	if got := b.Frames(); got != 44100 {
		t.Errorf("Frames() = %d, want 44100", got)
	}
	if got := b.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
}
