package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/mock"
)

func TestCapture_CeilingForcesFullBuffer(t *testing.T) {
	t.Parallel()

	// The device never completes on its own and never advances.
	src := &mock.Source{}
	buf, end, err := audio.Capture(context.Background(), src, audio.CaptureOptions{
		MaxSeconds: 5,
		SampleRate: 8000,
		Tick:       time.Millisecond,
		Ceiling:    20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if end != audio.EndCeiling {
		t.Errorf("end = %v, want ceiling", end)
	}
	if got, want := len(buf.Samples), 5*8000; got != want {
		t.Errorf("samples = %d, want %d", got, want)
	}
	if buf.SampleRate != 8000 || buf.Channels != 1 {
		t.Errorf("format = %v, want 8000Hz mono", buf.Format())
	}
	if !src.Handles[0].Closed() {
		t.Error("capture handle was not closed")
	}
}

func TestCapture_NaturalCompletion(t *testing.T) {
	t.Parallel()

	src := &mock.Source{Recording: mock.Tone(8000, 0.5), FramesPerTick: 1000}
	buf, end, err := audio.Capture(context.Background(), src, audio.CaptureOptions{
		MaxSeconds: 5,
		SampleRate: 8000,
		Tick:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if end != audio.EndNatural {
		t.Errorf("end = %v, want natural", end)
	}
	if got := len(buf.Samples); got != 4000 {
		t.Errorf("samples = %d, want 4000 (truncated to recorded audio)", got)
	}
	if buf.Samples[0] != 0.5 {
		t.Errorf("first sample = %v, want 0.5", buf.Samples[0])
	}
}

func TestCapture_NeverExceedsCeilingFrames(t *testing.T) {
	t.Parallel()

	// Two seconds of audio offered to a one second recording.
	src := &mock.Source{Recording: mock.Tone(8000, 2)}
	buf, _, err := audio.Capture(context.Background(), src, audio.CaptureOptions{
		MaxSeconds: 1,
		SampleRate: 8000,
		Tick:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got := len(buf.Samples); got != 8000 {
		t.Errorf("samples = %d, want 8000", got)
	}
}

func TestCapture_StopTruncates(t *testing.T) {
	t.Parallel()

	src := &mock.Source{Recording: mock.Tone(8000, 5), FramesPerTick: 100}
	stop := make(chan struct{})
	close(stop)

	buf, end, err := audio.Capture(context.Background(), src, audio.CaptureOptions{
		MaxSeconds: 5,
		SampleRate: 8000,
		Tick:       time.Hour,
		Stop:       stop,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if end != audio.EndStopped {
		t.Errorf("end = %v, want stopped", end)
	}
	// Stop is observed before any tick, so only the single position query
	// made while finalizing has advanced the device.
	if got := len(buf.Samples); got != 100 {
		t.Errorf("samples = %d, want 100", got)
	}
}

func TestCapture_PassesDeviceParameters(t *testing.T) {
	t.Parallel()

	src := &mock.Source{Recording: []float32{}}
	_, _, err := audio.Capture(context.Background(), src, audio.CaptureOptions{DeviceID: "mic-1"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	want := mock.OpenCall{DeviceID: "mic-1", Loop: false, MaxSeconds: audio.DefaultMaxSeconds, SampleRate: audio.DefaultSampleRate}
	if len(src.Calls) != 1 || src.Calls[0] != want {
		t.Errorf("Open calls = %+v, want [%+v]", src.Calls, want)
	}
}

func TestCapture_OpenError(t *testing.T) {
	t.Parallel()

	boom := errors.New("device busy")
	_, _, err := audio.Capture(context.Background(), &mock.Source{OpenErr: boom}, audio.CaptureOptions{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
}

func TestCapture_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := audio.Capture(ctx, &mock.Source{}, audio.CaptureOptions{Tick: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
