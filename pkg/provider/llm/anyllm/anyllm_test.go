package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_UserOnly checks that a bare prompt becomes a single user message.
func TestBuildParams_UserOnly(t *testing.T) {
	p := &Provider{model: "llama3.2:1b"}
	params := p.buildParams(" hello ")
	if params.Model != "llama3.2:1b" {
		t.Errorf("expected model llama3.2:1b, got %q", params.Model)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "user" {
		t.Errorf("expected role user, got %q", params.Messages[0].Role)
	}
	if got := params.Messages[0].ContentString(); got != "hello" {
		t.Errorf("expected trimmed content %q, got %q", "hello", got)
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("expected no sampling overrides by default")
	}
}

// TestBuildParams_Settings checks that settings flow into the request.
func TestBuildParams_Settings(t *testing.T) {
	p := (&Provider{model: "m"}).Apply(
		WithSystemPrompt("Answer in one sentence."),
		WithTemperature(0.2),
		WithMaxTokens(40),
	)
	params := p.buildParams("hi")
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("expected system message first, got %q", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 40 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("no-such-vendor", "m"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that OpenAI provider constructs successfully with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", p.model)
	}
}

// TestNew_Anthropic_WithAPIKey checks that Anthropic provider constructs successfully.
func TestNew_Anthropic_WithAPIKey(t *testing.T) {
	p, err := NewAnthropic("claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}
