// Package whisper provides an STT provider for a running whisper.cpp server
// (the whisper-server binary, which exposes POST /inference).
//
// whisper.cpp only accepts 16 kHz mono input unless the server was started
// with --convert, so the provider re-encodes each utterance to that format
// before uploading it as a multipart form.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	r, err := p.Transcribe(ctx, wavBytes)
//	text, err := r.Text()
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/reply"
)

const (
	defaultLanguage = "en"

	// serverSampleRate is the only rate whisper.cpp decodes natively.
	serverSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithPassthrough uploads containers unchanged. Use it when the server was
// started with --convert and can resample on its own.
func WithPassthrough(passthrough bool) Option {
	return func(p *Provider) {
		p.passthrough = passthrough
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.client = httpapi.New(httpapi.WithHTTPClient(hc))
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL   string
	model       string
	language    string
	passthrough bool
	client      *httpapi.Client
}

// New creates a new whisper.cpp Provider. serverURL must not be empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		client:    httpapi.New(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, container []byte) (reply.Reply, error) {
	if !p.passthrough {
		var err error
		container, err = toServerFormat(container)
		if err != nil {
			return reply.Reply{}, fmt.Errorf("whisper: %w", err)
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return reply.Reply{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(container); err != nil {
		return reply.Reply{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "json"},
		{"language", p.language},
		{"model", p.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return reply.Reply{}, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return reply.Reply{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	data, err := p.client.Post(ctx, p.serverURL+"/inference", mw.FormDataContentType(), body.Bytes(), "application/json")
	if err != nil {
		return reply.Reply{}, fmt.Errorf("whisper: inference: %w", err)
	}
	return reply.Reply{Body: data, Field: "text"}, nil
}

// toServerFormat re-encodes container as 16 kHz mono unless it already is.
func toServerFormat(container []byte) ([]byte, error) {
	buf, err := wav.Parse(container)
	if err != nil {
		return nil, err
	}
	if buf.SampleRate == serverSampleRate && buf.Channels == 1 {
		return container, nil
	}
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: serverSampleRate, Channels: 1}}
	return wav.Encode(conv.Convert(buf)), nil
}
