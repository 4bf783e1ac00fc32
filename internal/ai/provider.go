package ai

import (
	"context"
	"errors"
)

// ChatMessage is the provider-facing view of a conversation turn.
type ChatMessage struct {
	Role    string
	Content string
}

// StreamChunk is one fragment of a streamed completion: either a piece of
// text or the name of a tool the agent invoked, never both.
type StreamChunk struct {
	Content string
	Action  string
}

// ErrGaveUp signals the provider returned without producing an answer; the
// caller may retry the whole attempt.
var ErrGaveUp = errors.New("completion provider gave up")

type CompletionProvider interface {
	// CompletionStream starts a streamed completion and returns a channel
	// of fragments, closed when the provider finishes.
	CompletionStream(ctx context.Context, messages []ChatMessage, user string) (<-chan StreamChunk, error)
	// CompletionOnce returns the full answer in one round trip.
	CompletionOnce(ctx context.Context, messages []ChatMessage, user string) (string, error)
	// Model is the configured model identifier.
	Model() string
	// MaxTokens is the model's configured context-window budget.
	MaxTokens() int
	// TokensIn estimates the token count of text under the model's
	// tokenizer.
	TokensIn(text string) int
}

type Embedder interface {
	Embed(ctx context.Context, text, user string) ([]float32, error)
}

type Moderator interface {
	// Moderated reports whether the text violates content policy.
	Moderated(ctx context.Context, text string) (bool, error)
}
