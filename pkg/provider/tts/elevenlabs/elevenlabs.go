// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// The reply text is sent as a single input message followed by a flush; the
// base64 PCM chunks the server streams back are collected until the final
// message and wrapped in a WAV container.
package elevenlabs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/textcodec"
	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/provider/httpapi"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

const (
	defaultEndpoint  = "wss://api.elevenlabs.io/v1"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
// Only pcm_* formats are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpoint overrides the WebSocket API base (default
// "wss://api.elevenlabs.io/v1").
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithVoiceSettings overrides the stability and similarity boost sent with
// the first message. Defaults are 0.5 and 0.75.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarityBoost}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	sampleRate   int
	endpoint     string
	settings     voiceSettings
}

// New creates a new ElevenLabs Provider speaking with voiceID.
func New(apiKey, voiceID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		endpoint:     defaultEndpoint,
		settings:     voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	conn, _, err := websocket.Dial(ctx, p.streamURL(), nil)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("elevenlabs: dial: %w: %w", httpapi.ErrTransport, err)
	}
	defer conn.CloseNow()

	// ElevenLabs requires a non-empty first text value.
	if err := p.send(ctx, conn, boiMessage{Text: " ", VoiceSettings: &p.settings, XiAPIKey: p.apiKey}); err != nil {
		return tts.Speech{}, err
	}
	if err := p.send(ctx, conn, textMessage{Text: text + " "}); err != nil {
		return tts.Speech{}, err
	}
	if err := p.send(ctx, conn, textMessage{Text: ""}); err != nil {
		return tts.Speech{}, err
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return tts.Speech{}, fmt.Errorf("elevenlabs: read: %w: %w", httpapi.ErrTransport, err)
		}
		var resp audioResponse
		if err := sonic.Unmarshal(msg, &resp); err != nil {
			return tts.Speech{}, fmt.Errorf("elevenlabs: decode message: %w", err)
		}
		if resp.Error != "" {
			return tts.Speech{}, fmt.Errorf("elevenlabs: %w: %s", httpapi.ErrTransport, resp.Error)
		}
		if resp.Audio != "" {
			chunk, err := textcodec.FromText(resp.Audio)
			if err != nil {
				return tts.Speech{}, fmt.Errorf("elevenlabs: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if len(pcm) == 0 {
		return tts.Speech{}, nil
	}
	buf := audio.Normalize(pcmToInt16(pcm), p.sampleRate, 1)
	return tts.Speech{Container: wav.Encode(buf)}, nil
}

func (p *Provider) send(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("elevenlabs: encode message: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("elevenlabs: write: %w: %w", httpapi.ErrTransport, err)
	}
	return nil
}

// ---- helpers ----

// streamURL constructs the stream-input URL for the configured voice.
func (p *Provider) streamURL() string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return p.endpoint + "/text-to-speech/" + url.PathEscape(p.voiceID) + "/stream-input?" + q.Encode()
}

// pcmRate extracts the sample rate from a "pcm_<rate>" output format.
func pcmRate(format string) (int, error) {
	rate, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not PCM", format)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return n, nil
}

// pcmToInt16 reinterprets little-endian 16-bit PCM. A trailing odd byte is
// dropped.
func pcmToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
