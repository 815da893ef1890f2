package queue

import (
	"context"
	"errors"
	"time"
)

// ErrDiscard marks a handler failure that must not be retried. The job is
// acknowledged and dropped.
var ErrDiscard = errors.New("discard job")

// Enqueuer publishes messages to the queue. The returned ID identifies the job.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *Message) (string, error)
}

// Dequeuer consumes messages from the queue.
// Start begins consuming in background goroutines.
// Stop gracefully shuts down consumers.
type Dequeuer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DLQMessage wraps a message that exhausted its retries.
type DLQMessage struct {
	// EntryID is the backend's identifier of the DLQ entry. It is filled in
	// by List and is the value Reprocess accepts.
	EntryID         string    `json:"entry_id,omitempty"`
	OriginalMessage *Message  `json:"original_message"`
	FailureReason   string    `json:"failure_reason"`
	MovedAt         time.Time `json:"moved_at"`
}

// DeadLetterQueue manages failed messages.
type DeadLetterQueue interface {
	MoveToDLQ(ctx context.Context, msg *Message, reason string) error
	List(ctx context.Context, limit int) ([]DLQMessage, error)
	Reprocess(ctx context.Context, entryIDs []string) (int, error)
}

// MessageHandler processes a single queue message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// HandleMessage calls f(ctx, msg).
func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Pinger is implemented by enqueuers that can check backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
