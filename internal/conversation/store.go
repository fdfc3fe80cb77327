// Package conversation keeps bounded per-conversation message history.
package conversation

import (
	"context"

	"ragspace/internal/model"
)

// Store is the conversation history port. Implementations are safe for
// concurrent use; append order within one conversation is the order of
// successful Append calls.
type Store interface {
	// Create returns a fresh conversation id.
	Create(ctx context.Context) (string, error)

	// Append adds a message, creating the conversation on demand and
	// evicting the oldest messages beyond the cap.
	Append(ctx context.Context, id string, msg model.Message) error

	// Get returns the tail of size limit (all messages when limit <= 0).
	Get(ctx context.Context, id string, limit int) ([]model.Message, error)

	// Clear removes the conversation.
	Clear(ctx context.Context, id string) error
}
