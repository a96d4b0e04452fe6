package repo

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorodbot/server/internal/agent/model"
)

func TestMemoryThreadRepository(t *testing.T) {
	r := NewMemoryThreadRepository()
	ctx := context.Background()

	// Fresh threads have no state and empty history.
	st, err := r.LoadState(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, st)
	hist, err := r.LoadHistory(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, hist.Messages)

	err = r.CommitTurn(ctx, "t1",
		[]*schema.Message{schema.UserMessage("где мфц"), schema.AssistantMessage("Уточните адрес", nil)},
		&model.ThreadState{Category: model.CategoryMFC, AwaitingClarification: true, ClarificationAttempts: 1},
	)
	require.NoError(t, err)

	hist, err = r.LoadHistory(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "где мфц", hist.Messages[0].Content)

	st, err = r.LoadState(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, model.CategoryMFC, st.Category)
	assert.True(t, st.AwaitingClarification)

	// Loaded state is a copy, mutating it must not leak into the repo.
	st.ClarificationAttempts = 99
	again, err := r.LoadState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.ClarificationAttempts)

	// Threads are isolated.
	other, err := r.LoadState(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, r.Clear(ctx, "t1"))
	st, err = r.LoadState(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, st)
	hist, err = r.LoadHistory(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, hist.Messages)
}
