package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/provider/httpapi"
)

// fakeServer accepts one stream-input connection, records the text messages
// and answers with the given audio messages.
func fakeServer(t *testing.T, replies []audioResponse, got *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/stream-input") {
			t.Errorf("path = %q", r.URL.Path)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for range 3 {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			*got = append(*got, m)
		}
		for _, resp := range replies {
			data, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
}

func pcmChunk(samples ...int16) string {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return base64.StdEncoding.EncodeToString(b)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()

	var got []map[string]any
	srv := fakeServer(t, []audioResponse{
		{Audio: pcmChunk(100, 200)},
		{Audio: pcmChunk(-300)},
		{IsFinal: true},
	}, &got)
	defer srv.Close()

	p, err := New("key", "voice-1", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.Synthesize(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	buf, err := wav.Parse(s.Container)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if buf.SampleRate != 16000 || buf.Frames() != 3 {
		t.Errorf("buffer = %d Hz, %d frames", buf.SampleRate, buf.Frames())
	}

	if len(got) != 3 {
		t.Fatalf("server saw %d messages, want 3", len(got))
	}
	if got[0]["xi_api_key"] != "key" {
		t.Errorf("BOI = %v", got[0])
	}
	if got[1]["text"] != "hi there " {
		t.Errorf("text message = %v", got[1])
	}
	if got[2]["text"] != "" {
		t.Errorf("flush = %v", got[2])
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()

	var got []map[string]any
	srv := fakeServer(t, []audioResponse{{IsFinal: true}}, &got)
	defer srv.Close()

	p, _ := New("key", "v", WithEndpoint(wsURL(srv)))
	s, err := p.Synthesize(context.Background(), "x")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !s.Empty() {
		t.Error("expected empty speech")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	var got []map[string]any
	srv := fakeServer(t, []audioResponse{{Error: "quota_exceeded"}}, &got)
	defer srv.Close()

	p, _ := New("key", "v", WithEndpoint(wsURL(srv)))
	_, err := p.Synthesize(context.Background(), "x")
	if !errors.Is(err, httpapi.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestSynthesize_DialFailure(t *testing.T) {
	t.Parallel()

	p, _ := New("key", "v", WithEndpoint("ws://127.0.0.1:1"))
	_, err := p.Synthesize(context.Background(), "x")
	if !errors.Is(err, httpapi.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, _ := New("key", "voice-abc123", WithModel("eleven_flash_v2_5"), WithOutputFormat("pcm_24000"))
	got := p.streamURL()
	want := "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?model_id=eleven_flash_v2_5&output_format=pcm_24000"
	if got != want {
		t.Errorf("streamURL = %q, want %q", got, want)
	}
	if p.sampleRate != 24000 {
		t.Errorf("sampleRate = %d", p.sampleRate)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "v"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("k", ""); err == nil {
		t.Error("expected error for empty voice")
	}
	if _, err := New("k", "v", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM format")
	}
}
