package tts_test

import (
	"context"
	"testing"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

func TestSpeech_Empty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    tts.Speech
		want bool
	}{
		{name: "zero", s: tts.Speech{}, want: true},
		{name: "empty container slice", s: tts.Speech{Container: []byte{}}, want: true},
		{name: "container", s: tts.Speech{Container: []byte{1}}, want: false},
		{name: "encoded", s: tts.Speech{Encoded: "AA=="}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.s.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSilent(t *testing.T) {
	t.Parallel()

	s, err := tts.Silent{}.Synthesize(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !s.Empty() {
		t.Error("Silent produced audio")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (tts.Silent{}).Synthesize(ctx, "x"); err == nil {
		t.Error("expected ctx error")
	}
}
