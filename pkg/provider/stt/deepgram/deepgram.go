// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio API (POST /v1/listen). It implements the stt.Provider
// interface.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/reply"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// transcriptField locates the best alternative of the first channel.
	transcriptField = "results.channels.0.alternatives.0.transcript"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeywords adds vocabulary hints in Deepgram's "word:boost" form
// (e.g., "Eldrinax:5").
func WithKeywords(keywords ...string) Option {
	return func(p *Provider) {
		p.keywords = append(p.keywords, keywords...)
	}
}

// WithEndpoint overrides the listen endpoint (useful for self-hosted
// deployments and tests).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.hc = hc
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey   string
	model    string
	language string
	keywords []string
	endpoint string
	hc       *http.Client
	client   *httpapi.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	httpOpts := []httpapi.Option{httpapi.WithAuthorization("Token", apiKey)}
	if p.hc != nil {
		httpOpts = append(httpOpts, httpapi.WithHTTPClient(p.hc))
	}
	p.client = httpapi.New(httpOpts...)
	return p, nil
}

// Transcribe implements stt.Provider. The WAV header tells Deepgram the
// encoding, so no sample rate parameters are sent.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (reply.Reply, error) {
	u, err := p.buildURL()
	if err != nil {
		return reply.Reply{}, fmt.Errorf("deepgram: build URL: %w", err)
	}
	body, err := p.client.Post(ctx, u, "audio/wav", wav, "application/json")
	if err != nil {
		return reply.Reply{}, fmt.Errorf("deepgram: listen: %w", err)
	}
	return reply.Reply{Body: body, Field: transcriptField}, nil
}

// buildURL constructs the listen endpoint URL with query parameters.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	for _, kw := range p.keywords {
		q.Add("keywords", kw)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
