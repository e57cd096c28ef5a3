package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/parley/pkg/provider/httpapi"
)

// TestBuildParams_SystemPrompt checks that the system prompt precedes the user turn.
func TestBuildParams_SystemPrompt(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini", WithSystemPrompt("Be brief."), WithMaxTokens(50))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := p.buildParams("hello")
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be a user message")
	}
}

// TestBuildParams_NoSystemPrompt checks that only the user turn is sent by default.
func TestBuildParams_NoSystemPrompt(t *testing.T) {
	p, _ := New("sk-test", "gpt-4o-mini")
	params := p.buildParams("hello")
	if len(params.Messages) != 1 || params.Messages[0].OfUser == nil {
		t.Fatalf("expected a single user message, got %d messages", len(params.Messages))
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestGenerate(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	r, err := p.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	text, err := r.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "hi there" {
		t.Errorf("text = %q, want %q", text, "hi there")
	}
	if gotModel != "gpt-4o-mini" {
		t.Errorf("model = %q", gotModel)
	}
}

func TestGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	_, err := p.Generate(context.Background(), "hello")
	var se *httpapi.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 StatusError", err)
	}
}
