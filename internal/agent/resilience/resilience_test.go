package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     5 * time.Millisecond,
		Timeout:         time.Second,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	out, failure := Do(context.Background(), "op", fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.Nil(t, failure)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	out, failure := Do(context.Background(), "op", fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewError(KindTransient, "connection reset", nil)
		}
		return 42, nil
	})
	require.Nil(t, failure)
	assert.Equal(t, 42, out)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsRetryableKind(t *testing.T) {
	calls := 0
	_, failure := Do(context.Background(), "op", fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", NewError(KindRateLimit, "too many requests", nil)
	})
	require.NotNil(t, failure)
	assert.Equal(t, KindRateLimit, failure.Kind)
	assert.Equal(t, 3, failure.Attempted)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableKind(t *testing.T) {
	calls := 0
	_, failure := Do(context.Background(), "op", fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", NewError(KindValidation, "bad request", nil)
	})
	require.NotNil(t, failure)
	assert.Equal(t, KindValidation, failure.Kind)
	assert.Equal(t, 1, failure.Attempted)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(5)
	p.InitialInterval = time.Minute // backoff would block, cancellation must win

	_, failure := Do(ctx, "op", p, func(ctx context.Context) (string, error) {
		cancel()
		return "", NewError(KindTransient, "flaky", nil)
	})
	require.NotNil(t, failure)
	assert.Equal(t, KindTimeout, failure.Kind)
}

func TestKindRetryable(t *testing.T) {
	assert.True(t, KindTransient.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindRateLimit.Retryable())
	assert.False(t, KindServiceUnavailable.Retryable())
	assert.False(t, KindValidation.Retryable())
	assert.False(t, KindUnknown.Retryable())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{NewError(KindValidation, "x", nil), KindValidation},
		{fmt.Errorf("wrap: %w", NewError(KindRateLimit, "x", nil)), KindRateLimit},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("request timed out"), KindTimeout},
		{errors.New("429 resource_exhausted"), KindRateLimit},
		{errors.New("upstream returned 503"), KindServiceUnavailable},
		{errors.New("connection refused"), KindTransient},
		{errors.New("something odd"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, Classify(tt.err), "error %v", tt.err)
	}
}

func TestUserMessage(t *testing.T) {
	for _, k := range []Kind{KindTransient, KindTimeout, KindRateLimit, KindServiceUnavailable, KindValidation, KindUnknown} {
		assert.NotEmpty(t, UserMessage(k))
	}
	assert.Equal(t, UserMessage(KindUnknown), UserMessage(Kind("nonsense")))
}
