// Package jsonaudio provides a TTS provider for speech servers that accept
// {"text": "..."} and answer with {"audio_base64": "<base64 WAV>"}.
//
// The base64 payload is returned undecoded in [tts.Speech.Encoded]; the
// caller runs it through textcodec and wav.
package jsonaudio

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/reply"
)

const defaultField = "audio_base64"

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

type request struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithToken authenticates requests with a bearer token.
func WithToken(token string) Option {
	return func(p *Provider) {
		p.token = token
	}
}

// WithVoice adds a "voice" field to every request.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithField changes the reply field holding the audio (default "audio_base64").
func WithField(field string) Option {
	return func(p *Provider) {
		p.field = field
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.hc = hc
	}
}

// Provider implements tts.Provider for base64-in-JSON speech servers.
type Provider struct {
	endpoint string
	token    string
	voice    string
	field    string
	hc       *http.Client
	client   *httpapi.Client
}

// New creates a Provider posting to endpoint.
func New(endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("jsonaudio: endpoint must not be empty")
	}
	p := &Provider{endpoint: endpoint, field: defaultField}
	for _, o := range opts {
		o(p)
	}
	httpOpts := []httpapi.Option{httpapi.WithBearerToken(p.token)}
	if p.hc != nil {
		httpOpts = append(httpOpts, httpapi.WithHTTPClient(p.hc))
	}
	p.client = httpapi.New(httpOpts...)
	return p, nil
}

// Synthesize implements tts.Provider. A reply without the audio field
// yields an error matching reply.ErrMissingField.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	body, err := sonic.Marshal(request{Text: text, Voice: p.voice})
	if err != nil {
		return tts.Speech{}, fmt.Errorf("jsonaudio: encode request: %w", err)
	}
	data, err := p.client.Post(ctx, p.endpoint, "application/json", body, "application/json")
	if err != nil {
		return tts.Speech{}, fmt.Errorf("jsonaudio: synthesize: %w", err)
	}
	encoded, err := reply.ExtractField(data, p.field, false)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("jsonaudio: %w", err)
	}
	return tts.Speech{Encoded: encoded}, nil
}
