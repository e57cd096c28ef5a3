// Package huggingface provides an LLM provider for text-generation models
// served by the Hugging Face Inference API (e.g. meta-llama/Llama-3.2-1B).
//
// The request body is {"inputs": "<prompt>"} plus optional generation
// parameters; the reply is a JSON array of {"generated_text": ...} objects.
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/reply"
)

const (
	// DefaultBaseURL is the hosted Inference API model root.
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
	defaultModel   = "meta-llama/Llama-3.2-1B"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// request is the text-generation task payload.
type request struct {
	Inputs     string      `json:"inputs"`
	Parameters *parameters `json:"parameters,omitempty"`
}

type parameters struct {
	MaxNewTokens   int      `json:"max_new_tokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	ReturnFullText *bool    `json:"return_full_text,omitempty"`
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model repository id.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the model root URL. The request goes to
// <baseURL>/<model>, or to baseURL itself when the model is empty.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithMaxNewTokens caps the generated length.
func WithMaxNewTokens(n int) Option {
	return func(p *Provider) {
		p.params().MaxNewTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.params().Temperature = &t
	}
}

// WithReturnFullText controls whether the prompt is echoed at the start of
// generated_text. The API echoes it by default.
func WithReturnFullText(full bool) Option {
	return func(p *Provider) {
		p.params().ReturnFullText = &full
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.hc = hc
	}
}

// Provider implements llm.Provider against the Hugging Face Inference API.
type Provider struct {
	baseURL    string
	model      string
	parameters *parameters
	hc         *http.Client
	client     *httpapi.Client
}

func (p *Provider) params() *parameters {
	if p.parameters == nil {
		p.parameters = &parameters{}
	}
	return p.parameters
}

// New creates a Provider authenticating with the given access token.
func New(token string, opts ...Option) (*Provider, error) {
	if token == "" {
		return nil, errors.New("huggingface: token must not be empty")
	}
	p := &Provider{
		baseURL: DefaultBaseURL,
		model:   defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	httpOpts := []httpapi.Option{httpapi.WithBearerToken(token)}
	if p.hc != nil {
		httpOpts = append(httpOpts, httpapi.WithHTTPClient(p.hc))
	}
	p.client = httpapi.New(httpOpts...)
	return p, nil
}

// Endpoint returns the URL prompts are posted to.
func (p *Provider) Endpoint() string {
	if p.model == "" {
		return p.baseURL
	}
	return p.baseURL + "/" + p.model
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string) (reply.Reply, error) {
	body, err := sonic.Marshal(request{Inputs: prompt, Parameters: p.parameters})
	if err != nil {
		return reply.Reply{}, fmt.Errorf("huggingface: encode request: %w", err)
	}
	data, err := p.client.Post(ctx, p.Endpoint(), "application/json", body, "application/json")
	if err != nil {
		return reply.Reply{}, fmt.Errorf("huggingface: generate: %w", err)
	}
	return reply.Reply{Body: data, Field: "generated_text", Sequence: true}, nil
}
