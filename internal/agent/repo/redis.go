package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/gorodbot/server/internal/agent/model"
	errx "github.com/gorodbot/server/internal/core/error"
	logx "github.com/gorodbot/server/pkg/logger"
)

// RedisThreadRepository stores each thread as a message list plus a state
// JSON blob. CommitTurn writes both in one MULTI/EXEC so a thread never
// observes a turn's messages without its state or vice versa.
type RedisThreadRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisThreadRepository(rdb redis.Cmdable, ttl time.Duration) *RedisThreadRepository {
	return &RedisThreadRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisThreadRepository) messagesKey(threadID string) string {
	return fmt.Sprintf("thread:%s:messages", threadID)
}

func (r *RedisThreadRepository) stateKey(threadID string) string {
	return fmt.Sprintf("thread:%s:state", threadID)
}

func (r *RedisThreadRepository) LoadHistory(ctx context.Context, threadID string) (*model.ConversationHistory, error) {
	key := r.messagesKey(threadID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return &model.ConversationHistory{ThreadID: threadID, Messages: []*schema.Message{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("threadID", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return &model.ConversationHistory{ThreadID: threadID, Messages: msgs}, nil
}

func (r *RedisThreadRepository) LoadState(ctx context.Context, threadID string) (*model.ThreadState, error) {
	key := r.stateKey(threadID)

	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread state from redis")
		return nil, errx.WrapRedis(err)
	}

	var state model.ThreadState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to unmarshal thread state")
		return nil, fmt.Errorf("unmarshal thread state: %w", err)
	}
	return &state, nil
}

func (r *RedisThreadRepository) CommitTurn(ctx context.Context, threadID string, messages []*schema.Message, state *model.ThreadState) error {
	encoded := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("threadID", threadID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		encoded = append(encoded, b)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to marshal thread state")
		return fmt.Errorf("marshal thread state: %w", err)
	}

	msgKey := r.messagesKey(threadID)
	stKey := r.stateKey(threadID)

	pipe := r.rdb.TxPipeline()
	if len(encoded) > 0 {
		pipe.RPush(ctx, msgKey, encoded...)
	}
	pipe.Set(ctx, stKey, stateJSON, r.ttl)
	if r.ttl > 0 {
		pipe.Expire(ctx, msgKey, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to commit turn to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisThreadRepository) Clear(ctx context.Context, threadID string) error {
	if err := r.rdb.Del(ctx, r.messagesKey(threadID), r.stateKey(threadID)).Err(); err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to delete thread from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.ThreadRepository = (*RedisThreadRepository)(nil)
