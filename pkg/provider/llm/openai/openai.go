// Package openai provides an LLM provider backed by the OpenAI chat
// completions API (and compatible servers such as vLLM or LM Studio).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/reply"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	cfg    config
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	systemPrompt string
	temperature  float64
	maxTokens    int
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the API default.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// WithMaxTokens caps the completion length. Zero leaves the API default.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model, cfg: cfg}, nil
}

// Generate implements llm.Provider. The raw chat completion body is
// returned; the text lives at choices.0.message.content.
func (p *Provider) Generate(ctx context.Context, prompt string) (reply.Reply, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(prompt))
	if err != nil {
		return reply.Reply{}, fmt.Errorf("openai: chat completion: %w", classify(err))
	}
	return reply.Reply{Body: []byte(resp.RawJSON()), Field: llm.ChatContentField}, nil
}

// buildParams converts a prompt into OpenAI ChatCompletionNewParams.
func (p *Provider) buildParams(prompt string) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if p.cfg.systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(p.cfg.systemPrompt))
	}
	messages = append(messages, oai.UserMessage(prompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if p.cfg.temperature != 0 {
		params.Temperature = param.NewOpt(p.cfg.temperature)
	}
	if p.cfg.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(p.cfg.maxTokens))
	}
	return params
}
