package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/provider/httpapi"
)

// ---- test helpers ----

func testWAV(rate int) []byte {
	samples := make([]float32, rate/10)
	for i := range samples {
		samples[i] = 0.25
	}
	return wav.Encode(audio.SampleBuffer{Samples: samples, SampleRate: rate, Channels: 1})
}

// ---- New ----

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		opts    []Option
		wantErr bool
	}{
		{name: "empty url", url: "", wantErr: true},
		{name: "standard default", url: "http://localhost:5002"},
		{name: "xtts without speaker", url: "http://x", opts: []Option{WithAPIMode(APIModeXTTS)}, wantErr: true},
		{name: "xtts with speaker", url: "http://x", opts: []Option{WithAPIMode(APIModeXTTS), WithSpeaker("a")}},
		{name: "unknown mode", url: "http://x", opts: []Option{WithAPIMode("bogus")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.url, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	t.Parallel()
	p, err := New("http://localhost:5002/")
	if err != nil {
		t.Fatal(err)
	}
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q", p.serverURL)
	}
}

// ---- Synthesize ----

func TestSynthesize_Standard(t *testing.T) {
	t.Parallel()

	want := testWAV(22050)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("text") != "hi there" || q.Get("speaker_id") != "p225" || q.Get("language_id") != "de" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(want)
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithSpeaker("p225"), WithLanguage("de"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.Synthesize(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(s.Container) != len(want) {
		t.Errorf("container = %d bytes, want %d", len(s.Container), len(want))
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()

	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(testWAV(24000))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("narrator"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(context.Background(), "hello"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Text != "hello" || got.SpeakerWav != "narrator" || got.Language != defaultLanguage {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesize_Resamples(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testWAV(22050))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithOutputSampleRate(44100))
	s, err := p.Synthesize(context.Background(), "x")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	buf, err := wav.Parse(s.Container)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if buf.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", buf.SampleRate)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	_, err := p.Synthesize(context.Background(), "x")
	if !errors.Is(err, httpapi.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

// ---- Speakers ----

func TestSpeakers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case detailsEndpoint:
			_, _ = w.Write([]byte(`{"model_name":"vctk","speakers":["p226","p225"]}`))
		case studioSpeakersEndpoint:
			_, _ = w.Write([]byte(`{"Ana":{},"Claribel":{}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	std, _ := New(srv.URL)
	got, err := std.Speakers(context.Background())
	if err != nil {
		t.Fatalf("standard Speakers: %v", err)
	}
	if !slices.Equal(got, []string{"p225", "p226"}) {
		t.Errorf("standard = %v", got)
	}

	xtts, _ := New(srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("Ana"))
	got, err = xtts.Speakers(context.Background())
	if err != nil {
		t.Fatalf("xtts Speakers: %v", err)
	}
	if !slices.Equal(got, []string{"Ana", "Claribel"}) {
		t.Errorf("xtts = %v", got)
	}
}
