package conversations

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/repo"
)

func testManager(maxTurns int) (*MessagesManager, *repo.MemoryThreadRepository) {
	store := repo.NewMemoryThreadRepository()
	cfg := model.ConversationConfig{}
	cfg.History.MaxTurns = maxTurns
	return NewMessagesManager(store, cfg), store
}

func TestLoadTurnFreshThread(t *testing.T) {
	m, _ := testManager(4)
	turn, err := m.LoadTurn(context.Background(), "t1", "где мфц")
	require.NoError(t, err)

	assert.Equal(t, "t1", turn.ThreadID)
	assert.Equal(t, "где мфц", turn.Query)
	assert.Empty(t, turn.History)
	assert.Equal(t, model.ThreadState{}, turn.Thread)
	assert.Equal(t, -1, turn.State.SelectedCandidateIndex)
}

func TestCommitThenLoadRoundTrip(t *testing.T) {
	m, _ := testManager(4)
	ctx := context.Background()

	state := &model.ThreadState{
		Category:              model.CategoryMFC,
		AwaitingClarification: true,
		ClarificationAttempts: 1,
		ExtractedDistrict:     "Калининский",
	}
	require.NoError(t, m.CommitTurn(ctx, "t1", "где мфц", "Уточните адрес", state))

	turn, err := m.LoadTurn(ctx, "t1", "невский 28")
	require.NoError(t, err)
	assert.Equal(t, *state, turn.Thread)
	require.Len(t, turn.History, 2)
	assert.Equal(t, schema.User, turn.History[0].Role)
	assert.Equal(t, schema.Assistant, turn.History[1].Role)
}

func TestLoadTurnTrimsHistoryWindow(t *testing.T) {
	m, _ := testManager(2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.CommitTurn(ctx, "t1",
			fmt.Sprintf("вопрос %d", i), fmt.Sprintf("ответ %d", i), &model.ThreadState{}))
	}

	turn, err := m.LoadTurn(ctx, "t1", "ещё вопрос")
	require.NoError(t, err)
	// Two turns of window, two messages each, newest kept.
	require.Len(t, turn.History, 4)
	assert.Equal(t, "вопрос 3", turn.History[0].Content)
	assert.Equal(t, "ответ 4", turn.History[3].Content)
}

func TestHistoryWindowShape(t *testing.T) {
	m, _ := testManager(4)
	ctx := context.Background()
	require.NoError(t, m.CommitTurn(ctx, "t1", "привет", "Здравствуйте!", &model.ThreadState{}))

	turn, err := m.LoadTurn(ctx, "t1", "где мфц")
	require.NoError(t, err)

	messages := m.HistoryWindow(turn, "системный промпт")
	require.Len(t, messages, 4)
	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, "системный промпт", messages[0].Content)
	assert.Equal(t, schema.User, messages[len(messages)-1].Role)
	assert.Equal(t, "где мфц", messages[len(messages)-1].Content)
}

func TestClear(t *testing.T) {
	m, _ := testManager(4)
	ctx := context.Background()
	require.NoError(t, m.CommitTurn(ctx, "t1", "привет", "Здравствуйте!", &model.ThreadState{}))
	require.NoError(t, m.Clear(ctx, "t1"))

	turn, err := m.LoadTurn(ctx, "t1", "снова привет")
	require.NoError(t, err)
	assert.Empty(t, turn.History)
	assert.Equal(t, model.ThreadState{}, turn.Thread)
}
