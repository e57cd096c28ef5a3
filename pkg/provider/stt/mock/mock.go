// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Text: "hello"}
//	r, _ := p.Transcribe(ctx, wavBytes)
//	text, _ := r.Text() // "hello"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/reply"
	"github.com/bytedance/sonic"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the container passed to Transcribe.
	WAV []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is wrapped as {"text": Text} when Reply is nil.
	Text string

	// Reply, if non-nil, is returned verbatim instead of a reply built from Text.
	Reply *reply.Reply

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Block, if non-nil, makes Transcribe wait until it is closed or ctx is done.
	Block chan struct{}

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured reply or error.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (reply.Reply, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{WAV: append([]byte(nil), wav...)})
	block, r, text, err := p.Block, p.Reply, p.Text, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return reply.Reply{}, ctx.Err()
		}
	}
	if err != nil {
		return reply.Reply{}, err
	}
	if r != nil {
		return *r, nil
	}
	body, _ := sonic.Marshal(map[string]string{"text": text})
	return reply.Reply{Body: body, Field: "text"}, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
