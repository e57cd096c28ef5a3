// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Speech: tts.Speech{Container: wav.Encode(buf)}}
//	s, _ := p.Synthesize(ctx, "hi there")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Speech is returned by every successful Synthesize call.
	Speech tts.Speech

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Block, if non-nil, makes Synthesize wait until it is closed or ctx is done.
	Block chan struct{}

	// Calls records every call to Synthesize.
	Calls []SynthesizeCall
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns Speech or Err.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text})
	block, speech, err := p.Block, p.Speech, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return tts.Speech{}, ctx.Err()
		}
	}
	if err != nil {
		return tts.Speech{}, err
	}
	return speech, nil
}

// Texts returns the text of every recorded call. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
