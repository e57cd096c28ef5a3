// Package mock provides a test double for the llm.Provider interface.
//
// By default the mock answers like a hosted text-generation endpoint:
// [{"generated_text": Text}].
//
// Example:
//
//	p := &mock.Provider{Text: "hi there"}
//	r, _ := p.Generate(ctx, "hello")
//	text, _ := r.Text() // "hi there"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/reply"
	"github.com/bytedance/sonic"
)

// GenerateCall records a single invocation of Provider.Generate.
type GenerateCall struct {
	Prompt string
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is wrapped as [{"generated_text": Text}] when Reply is nil.
	Text string

	// Reply, if non-nil, is returned verbatim instead of a reply built from Text.
	Reply *reply.Reply

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// Block, if non-nil, makes Generate wait until it is closed or ctx is done.
	Block chan struct{}

	// Calls records every call to Generate.
	Calls []GenerateCall
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Generate records the call and returns the configured reply or error.
func (p *Provider) Generate(ctx context.Context, prompt string) (reply.Reply, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, GenerateCall{Prompt: prompt})
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
	body, _ := sonic.Marshal([]map[string]string{{"generated_text": text}})
	return reply.Reply{Body: body, Field: "generated_text", Sequence: true}, nil
}

// Prompts returns the prompts of every recorded call. Thread-safe.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Prompt
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
