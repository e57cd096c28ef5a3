// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("ollama", "llama3.2:1b")
//	p, err := anyllm.NewAnthropic("claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/reply"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
	temperature  *float64
	maxTokens    *int
}

// Setting customises a Provider after construction.
type Setting func(*Provider)

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(prompt string) Setting {
	return func(p *Provider) {
		p.systemPrompt = prompt
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Setting {
	return func(p *Provider) {
		p.temperature = &t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Setting {
	return func(p *Provider) {
		p.maxTokens = &n
	}
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "claude-3-5-sonnet-latest").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// If no API key option is provided, the provider will fall back to the relevant
// environment variable (e.g., OPENAI_API_KEY, ANTHROPIC_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// NewWithBackend wraps an already constructed any-llm-go backend.
func NewWithBackend(backend anyllmlib.Provider, model string, settings ...Setting) *Provider {
	p := &Provider{backend: backend, model: model}
	return p.Apply(settings...)
}

// NewAnthropic creates a Provider backed by Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts...)
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// Apply applies settings to p and returns it.
func (p *Provider) Apply(settings ...Setting) *Provider {
	for _, s := range settings {
		s(p)
	}
	return p
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Generate implements llm.Provider. The typed completion is re-encoded in
// the chat reply shape so the caller extracts the text the same way as for
// raw chat replies.
func (p *Provider) Generate(ctx context.Context, prompt string) (reply.Reply, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(prompt))
	if err != nil {
		return reply.Reply{}, fmt.Errorf("anyllm: completion: %w", err)
	}

	out := llm.ChatReply{Choices: make([]llm.ChatChoice, 0, len(resp.Choices))}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{Message: llm.ChatMessage{
			Role:    string(c.Message.Role),
			Content: c.Message.ContentString(),
		}})
	}
	body, err := sonic.Marshal(out)
	if err != nil {
		return reply.Reply{}, fmt.Errorf("anyllm: encode reply: %w", err)
	}
	return reply.Reply{Body: body, Field: llm.ChatContentField}, nil
}

// buildParams converts a prompt into anyllm CompletionParams.
func (p *Provider) buildParams(prompt string) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if p.systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: p.systemPrompt,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: strings.TrimSpace(prompt),
	})

	return anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
}
