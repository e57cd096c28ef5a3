// Package coqui provides a TTS provider backed by a locally-running Coqui TTS
// server. Two server flavours are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with query
//     parameters; the speaker list comes from GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is
//     POST /tts_to_audio/ with a JSON body; the speaker list comes from
//     GET /studio_speakers.
//
// Both servers answer with a complete WAV file, which is returned unchanged
// unless an output sample rate is configured.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithSpeaker("p225"),
//	)
//	speech, err := p.Synthesize(ctx, "hi there")
package coqui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// ---- APIMode ----

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// ---- options ----

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g. "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker selects the speaker. In XTTS mode it is the speaker_wav value
// and required; in standard mode it is optional for single-speaker models.
func WithSpeaker(id string) Option {
	return func(p *Provider) {
		p.speaker = id
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate resamples the synthesised audio to rate before it is
// returned. 0 (default) keeps the model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by a Coqui TTS server. It is safe
// for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
	client     *httpapi.Client
}

// New creates a new Coqui Provider targeting the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard:
	case APIModeXTTS:
		if p.speaker == "" {
			return nil, errors.New("coqui: speaker must not be empty in XTTS mode")
		}
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	p.client = httpapi.New(httpapi.WithHTTPClient(p.httpClient))
	return p, nil
}

// ---- internal request/response types ----

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ---- Synthesize ----

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	var (
		container []byte
		err       error
	)
	if p.apiMode == APIModeXTTS {
		container, err = p.synthesizeXTTS(ctx, text)
	} else {
		container, err = p.synthesizeStandard(ctx, text)
	}
	if err != nil {
		return tts.Speech{}, err
	}
	if p.outputRate > 0 {
		container, err = p.resample(container)
		if err != nil {
			return tts.Speech{}, err
		}
	}
	return tts.Speech{Container: container}, nil
}

func (p *Provider) synthesizeXTTS(ctx context.Context, text string) ([]byte, error) {
	body, err := sonic.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: p.speaker,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal request: %w", err)
	}
	data, err := p.client.Post(ctx, p.serverURL+ttsEndpoint, "application/json", body, "audio/wav")
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize: %w", err)
	}
	return data, nil
}

func (p *Provider) synthesizeStandard(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	if p.speaker != "" {
		q.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	data, err := p.client.Do(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), "", nil, "audio/wav")
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize: %w", err)
	}
	return data, nil
}

// resample re-encodes container at the configured output rate, keeping its
// channel count.
func (p *Provider) resample(container []byte) ([]byte, error) {
	buf, err := wav.Parse(container)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if buf.SampleRate == p.outputRate {
		return container, nil
	}
	return wav.Encode(audio.Resample(buf, p.outputRate)), nil
}

// ---- Speakers ----

// Speakers returns the speaker names the server offers, sorted. Single-speaker
// standard models return an empty slice.
func (p *Provider) Speakers(ctx context.Context) ([]string, error) {
	if p.apiMode == APIModeXTTS {
		return p.speakersXTTS(ctx)
	}
	return p.speakersStandard(ctx)
}

func (p *Provider) speakersXTTS(ctx context.Context) ([]string, error) {
	data, err := p.client.Do(ctx, http.MethodGet, p.serverURL+studioSpeakersEndpoint, "", nil, "application/json")
	if err != nil {
		return nil, fmt.Errorf("coqui: list speakers: %w", err)
	}
	var speakers map[string]any
	if err := sonic.Unmarshal(data, &speakers); err != nil {
		return nil, fmt.Errorf("coqui: decode speakers: %w", err)
	}
	names := make([]string, 0, len(speakers))
	for name := range speakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *Provider) speakersStandard(ctx context.Context) ([]string, error) {
	data, err := p.client.Do(ctx, http.MethodGet, p.serverURL+detailsEndpoint, "", nil, "application/json")
	if err != nil {
		return nil, fmt.Errorf("coqui: list speakers: %w", err)
	}
	var details detailsResponse
	if err := sonic.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("coqui: decode details: %w", err)
	}
	names := append([]string{}, details.Speakers...)
	sort.Strings(names)
	return names, nil
}
