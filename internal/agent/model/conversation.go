package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type ThreadRepository interface {
	// LoadHistory retrieves the ordered message history for a thread.
	LoadHistory(ctx context.Context, threadID string) (*ConversationHistory, error)

	// LoadState retrieves the persisted thread state, or nil if the thread
	// has no committed state yet.
	LoadState(ctx context.Context, threadID string) (*ThreadState, error)

	// CommitTurn atomically appends the turn's messages and replaces the
	// thread state. Partial commits must not be observable.
	CommitTurn(ctx context.Context, threadID string, messages []*schema.Message, state *ThreadState) error

	// Clear removes all history and state for a thread.
	Clear(ctx context.Context, threadID string) error
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ThreadID string
	Messages []*schema.Message
}
