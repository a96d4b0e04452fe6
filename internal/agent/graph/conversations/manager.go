package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/model"
)

// MessagesManager loads thread history and persisted clarification state for
// a turn and commits the finished turn back. Nothing is written to the store
// until CommitTurn, so an interrupted turn leaves the thread untouched.
type MessagesManager struct {
	threadRepo      model.ThreadRepository
	historyMaxTurns int
}

func NewMessagesManager(threadRepo model.ThreadRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		threadRepo:      threadRepo,
		historyMaxTurns: config.History.MaxTurns,
	}
}

// LoadTurn assembles the working state for an incoming user message.
// A thread with no persisted state starts from the zero ThreadState.
func (cm *MessagesManager) LoadTurn(ctx context.Context, threadID string, query string) (*model.Turn, error) {
	history, err := cm.threadRepo.LoadHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state, err := cm.threadRepo.LoadState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &model.ThreadState{}
	}

	window := trimTail(history.Messages, cm.historyMaxTurns*2)
	return model.NewTurn(threadID, query, *state, window), nil
}

// HistoryWindow returns the recent messages of a turn prefixed with a system
// prompt and suffixed with the current user message, ready for a chat model.
func (cm *MessagesManager) HistoryWindow(turn *model.Turn, systemPrompt string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turn.History)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, turn.History...)
	messages = append(messages, schema.UserMessage(turn.Query))
	return messages
}

// CommitTurn persists the user message, the assistant reply and the next
// thread state in a single atomic write.
func (cm *MessagesManager) CommitTurn(ctx context.Context, threadID string, userText string, assistantText string, state *model.ThreadState) error {
	messages := []*schema.Message{
		schema.UserMessage(userText),
		schema.AssistantMessage(assistantText, nil),
	}
	return cm.threadRepo.CommitTurn(ctx, threadID, messages, state)
}

// Clear drops all persisted data for a thread.
func (cm *MessagesManager) Clear(ctx context.Context, threadID string) error {
	return cm.threadRepo.Clear(ctx, threadID)
}

func trimTail(messages []*schema.Message, max int) []*schema.Message {
	if max <= 0 || len(messages) == 0 {
		return nil
	}
	if len(messages) > max {
		messages = messages[len(messages)-max:]
	}
	result := make([]*schema.Message, len(messages))
	copy(result, messages)
	return result
}
