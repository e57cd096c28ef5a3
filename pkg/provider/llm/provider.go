// Package llm defines the Provider interface for text-generation backends.
//
// A provider receives the user's transcript as a prompt and returns the
// backend's raw reply together with the location of the generated text in
// it (see package reply). Hosted text-generation endpoints reply with a
// sequence of candidates; chat endpoints reply with a choices array. Both
// shapes are described by [reply.Reply] so the caller parses them the same
// way.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/parley/pkg/reply"
)

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Generate sends prompt to the backend and returns its raw reply.
	// Cancelling ctx aborts the call.
	Generate(ctx context.Context, prompt string) (reply.Reply, error)
}

// Func adapts a plain function to [Provider].
type Func func(ctx context.Context, prompt string) (reply.Reply, error)

// Generate calls f(ctx, prompt).
func (f Func) Generate(ctx context.Context, prompt string) (reply.Reply, error) {
	return f(ctx, prompt)
}

// ChatReply is the minimal chat-completion reply shape, used by backends
// whose SDK returns typed values rather than the raw body.
type ChatReply struct {
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice is one candidate of a [ChatReply].
type ChatChoice struct {
	Message ChatMessage `json:"message"`
}

// ChatMessage is the assistant message of a [ChatChoice].
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatContentField locates the first choice's content in a chat reply.
const ChatContentField = "choices.0.message.content"
