package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/model"
)

// MemoryThreadRepository is an in-process ThreadRepository for the CLI chat
// mode and tests. Commits hold the lock for the whole write, matching the
// atomicity of the Redis implementation.
type MemoryThreadRepository struct {
	mu       sync.RWMutex
	messages map[string][]*schema.Message
	states   map[string]*model.ThreadState
}

func NewMemoryThreadRepository() *MemoryThreadRepository {
	return &MemoryThreadRepository{
		messages: map[string][]*schema.Message{},
		states:   map[string]*model.ThreadState{},
	}
}

func (r *MemoryThreadRepository) LoadHistory(_ context.Context, threadID string) (*model.ConversationHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.messages[threadID]
	msgs := make([]*schema.Message, len(src))
	copy(msgs, src)
	return &model.ConversationHistory{ThreadID: threadID, Messages: msgs}, nil
}

func (r *MemoryThreadRepository) LoadState(_ context.Context, threadID string) (*model.ThreadState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[threadID]
	if !ok {
		return nil, nil
	}
	copied := *st
	return &copied, nil
}

func (r *MemoryThreadRepository) CommitTurn(_ context.Context, threadID string, messages []*schema.Message, state *model.ThreadState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[threadID] = append(r.messages[threadID], messages...)
	copied := *state
	r.states[threadID] = &copied
	return nil
}

func (r *MemoryThreadRepository) Clear(_ context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, threadID)
	delete(r.states, threadID)
	return nil
}

var _ model.ThreadRepository = (*MemoryThreadRepository)(nil)
