package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/wav"
)

func writeWAV(t *testing.T, b audio.SampleBuffer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, wav.Encode(b), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%100) / 200
	}
	return out
}

func TestNewFile_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewFile(""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewFile(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(bad, []byte("not a wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(bad); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestFile_CaptureCompletesNaturally(t *testing.T) {
	t.Parallel()

	const rate = 8000
	path := writeWAV(t, audio.SampleBuffer{Samples: ramp(rate / 20), SampleRate: rate, Channels: 1})
	src, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	start := time.Now()
	buf, end, err := audio.Capture(context.Background(), src, audio.CaptureOptions{
		MaxSeconds: 2,
		SampleRate: rate,
		Tick:       time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if end != audio.EndNatural {
		t.Errorf("end = %v, want natural", end)
	}
	if buf.Frames() != rate/20 {
		t.Errorf("frames = %d, want %d", buf.Frames(), rate/20)
	}
	if d := time.Since(start); d < 40*time.Millisecond {
		t.Errorf("capture took %v, want about real time", d)
	}
}

func TestFile_ResamplesToRequestedRate(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, audio.SampleBuffer{Samples: ramp(1600), SampleRate: 16000, Channels: 1})
	src, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	h, err := src.Open(context.Background(), "", false, 1, 8000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	<-h.Done()
	if got := h.Position(); got != 800 {
		t.Errorf("position = %d, want 800", got)
	}
}

func TestFile_StereoIsDownmixed(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, audio.SampleBuffer{Samples: ramp(200), SampleRate: 8000, Channels: 2})
	src, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	h, err := src.Open(context.Background(), "", false, 1, 8000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	if h.Channels() != 1 {
		t.Errorf("channels = %d, want 1", h.Channels())
	}
	if got := len(h.Read(100)); got != 100 {
		t.Errorf("read %d samples, want 100", got)
	}
}

func TestSilence_RunsToCeiling(t *testing.T) {
	t.Parallel()

	buf, end, err := audio.Capture(context.Background(), Silence{}, audio.CaptureOptions{
		MaxSeconds: 1,
		SampleRate: 1000,
		Tick:       time.Millisecond,
		Ceiling:    30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if end != audio.EndCeiling {
		t.Errorf("end = %v, want ceiling", end)
	}
	if buf.Frames() != 1000 {
		t.Errorf("frames = %d, want 1000", buf.Frames())
	}
	for i, s := range buf.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}
}

func TestSilence_RejectsZeroRate(t *testing.T) {
	t.Parallel()

	if _, err := (Silence{}).Open(context.Background(), "", false, 1, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestHandle_CloseFreezesPosition(t *testing.T) {
	t.Parallel()

	h := newHandle(nil, true, 1000, 1000)
	time.Sleep(5 * time.Millisecond)
	_ = h.Close()
	p := h.Position()
	time.Sleep(5 * time.Millisecond)
	if h.Position() != p {
		t.Error("position advanced after Close")
	}
}
