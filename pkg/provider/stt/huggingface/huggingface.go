// Package huggingface provides an STT provider for speech-recognition models
// served by the Hugging Face Inference API (e.g. openai/whisper-large-v3).
//
// The utterance is posted as the raw request body with Content-Type
// audio/wav; the reply is a JSON object with a "text" field.
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/reply"
)

const (
	// DefaultBaseURL is the hosted Inference API model root.
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
	defaultModel   = "openai/whisper-large"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model repository id (e.g. "openai/whisper-large-v3").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the model root URL. The request goes to
// <baseURL>/<model>, or to baseURL itself when the model is empty, which
// suits dedicated inference endpoints.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpOpts = append(p.httpOpts, httpapi.WithHTTPClient(hc))
	}
}

// WithWaitForModel asks the API to hold the request while a cold model loads
// instead of failing fast with 503.
func WithWaitForModel(wait bool) Option {
	return func(p *Provider) {
		if wait {
			p.httpOpts = append(p.httpOpts, httpapi.WithHeader("X-Wait-For-Model", "true"))
		}
	}
}

// Provider implements stt.Provider against the Hugging Face Inference API.
type Provider struct {
	baseURL  string
	model    string
	httpOpts []httpapi.Option
	client   *httpapi.Client
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
	p.client = httpapi.New(append([]httpapi.Option{httpapi.WithBearerToken(token)}, p.httpOpts...)...)
	return p, nil
}

// Endpoint returns the URL the utterance is posted to.
func (p *Provider) Endpoint() string {
	if p.model == "" {
		return p.baseURL
	}
	return p.baseURL + "/" + p.model
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (reply.Reply, error) {
	body, err := p.client.Post(ctx, p.Endpoint(), "audio/wav", wav, "application/json")
	if err != nil {
		return reply.Reply{}, fmt.Errorf("huggingface: transcribe: %w", err)
	}
	return reply.Reply{Body: body, Field: "text"}, nil
}
