// Package openai provides a TTS provider backed by the OpenAI speech API
// (tts-1, gpt-4o-mini-tts and compatible servers). Audio is requested in WAV
// format and returned as-is.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

const (
	defaultModel = "tts-1"
	defaultVoice = "alloy"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	voice  string
	speed  float64
}

type config struct {
	baseURL string
	model   string
	voice   string
	speed   float64
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model. Defaults to "tts-1".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithVoice sets the voice. Defaults to "alloy".
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithSpeed sets the playback speed (0.25 to 4.0). Zero leaves the server default.
func WithSpeed(speed float64) Option {
	return func(c *config) {
		c.speed = speed
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel, voice: defaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
		speed:  cfg.speed,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if p.speed > 0 {
		params.Speed = param.NewOpt(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("openai: synthesize: %w", classify(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("openai: read speech: %w: %w", httpapi.ErrTransport, err)
	}
	return tts.Speech{Container: data}, nil
}
