package stream

import (
	"context"

	"github.com/google/uuid"
)

// Stopword terminates a channel. It is reserved: the completion provider
// never emits it as literal content.
const Stopword = "STOP"

// Stream carries ordered text fragments from a background completion job to
// a waiting consumer, keyed by the one-time token minted on the triggering
// user message. Producer and consumer are never co-scheduled; the channel
// lives in shared storage until Clean.
type Stream interface {
	// Push appends one fragment. Fire-and-forget from the producer's view;
	// errors are for logging only.
	Push(ctx context.Context, token uuid.UUID, content string) error
	// End pushes the stopword.
	End(ctx context.Context, token uuid.UUID) error
	// Tail follows the channel from the beginning. The returned Go channel
	// always delivers the stopword as its final element before closing:
	// on stopword receipt, when shouldStop reports true, or when no new
	// fragment arrives within the blocking window (a producer that died
	// silently must not hold the consumer open forever).
	Tail(ctx context.Context, token uuid.UUID, shouldStop func() bool) <-chan string
	// Clean deletes the channel's backing storage. Idempotent.
	Clean(ctx context.Context, token uuid.UUID) error
	Readiness(ctx context.Context) error
}
