// Package resilience wraps every call to an external dependency (LLM,
// city-data API, knowledge-base search) in a retry/timeout policy and a
// typed error taxonomy. Callers never see raw errors escape: an exhausted
// policy yields a *Failure that the orchestrator converts into a fallback
// value or a user-visible apology.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	logx "github.com/gorodbot/server/pkg/logger"
)

// Kind classifies an external-call failure and decides the strategy.
type Kind string

const (
	KindTransient          Kind = "transient"
	KindTimeout            Kind = "timeout"
	KindRateLimit          Kind = "rate_limit"
	KindServiceUnavailable Kind = "service_unavailable"
	KindValidation         Kind = "validation"
	KindUnknown            Kind = "unknown"
)

// Retryable reports whether another attempt can help for this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindTimeout, KindRateLimit:
		return true
	}
	return false
}

// Error is a classified external-call error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error around an underlying cause.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Failure is the typed terminal result of an exhausted policy. It is a
// value, not a panic: callers must turn it into a fallback or an apology.
type Failure struct {
	Kind      Kind
	Message   string
	Attempted int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("[%s] %s (attempts=%d)", f.Kind, f.Message, f.Attempted)
}

// Policy describes retry/backoff/timeout behaviour for one call site.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	Jitter          bool
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// DefaultLLMPolicy matches the stock settings for model calls.
func DefaultLLMPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		BackoffFactor:   2.0,
		MaxInterval:     10 * time.Second,
		Jitter:          true,
		Timeout:         30 * time.Second,
	}
}

// DefaultAPIPolicy uses fewer attempts and shorter waits for city APIs.
func DefaultAPIPolicy() Policy {
	return Policy{
		MaxAttempts:     2,
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     5 * time.Second,
		Jitter:          true,
		Timeout:         15 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 2.0
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 10 * time.Second
	}
	return p
}

// Classify maps an arbitrary error onto the taxonomy. Already-classified
// errors keep their kind; everything else is inspected by type and text.
func Classify(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindTransient
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "timed out") || strings.Contains(s, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(s, "rate limit") || strings.Contains(s, "429") || strings.Contains(s, "resource_exhausted"):
		return KindRateLimit
	case strings.Contains(s, "500") || strings.Contains(s, "502") || strings.Contains(s, "503") || strings.Contains(s, "504") || strings.Contains(s, "unavailable"):
		return KindServiceUnavailable
	case strings.Contains(s, "connection") || strings.Contains(s, "network") || strings.Contains(s, "broken pipe") || strings.Contains(s, "reset by peer"):
		return KindTransient
	}
	return KindUnknown
}

// Do runs op under the policy. Each attempt gets its own deadline; attempts
// stop early on a non-retryable kind or on parent context cancellation.
// Returns the op's value, or a *Failure once the policy is exhausted.
func Do[T any](ctx context.Context, name string, p Policy, op func(context.Context) (T, error)) (T, *Failure) {
	var zero T
	p = p.normalized()

	interval := p.InitialInterval
	var lastErr error
	var lastKind Kind

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		out, err := op(attemptCtx)
		cancel()
		if err == nil {
			return out, nil
		}

		lastErr = err
		lastKind = Classify(err)

		logx.Warn().
			Str("call", name).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Str("kind", string(lastKind)).
			Err(err).
			Msg("external call failed")

		if !lastKind.Retryable() || attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, withJitter(interval, p.Jitter)); err != nil {
			// Parent cancelled while backing off.
			return zero, &Failure{Kind: KindTimeout, Message: err.Error(), Attempted: attempt}
		}
		interval = nextInterval(interval, p)
	}

	return zero, &Failure{
		Kind:      lastKind,
		Message:   lastErr.Error(),
		Attempted: attemptsFor(lastKind, p.MaxAttempts),
	}
}

func attemptsFor(kind Kind, max int) int {
	if kind.Retryable() {
		return max
	}
	return 1
}

func nextInterval(cur time.Duration, p Policy) time.Duration {
	next := time.Duration(float64(cur) * p.BackoffFactor)
	if next > p.MaxInterval {
		next = p.MaxInterval
	}
	return next
}

func withJitter(d time.Duration, jitter bool) time.Duration {
	if !jitter || d <= 0 {
		return d
	}
	// up to +-25%
	delta := time.Duration(rand.Int63n(int64(d)/2+1)) - d/4
	return d + delta
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// userMessages are the fixed RU apologies shown when a call cannot recover.
var userMessages = map[Kind]string{
	KindTransient:          "Произошла временная ошибка. Пожалуйста, повторите запрос.",
	KindTimeout:            "Сервис не ответил вовремя. Попробуйте ещё раз через несколько секунд.",
	KindRateLimit:          "Слишком много запросов. Пожалуйста, подождите минуту и попробуйте снова.",
	KindServiceUnavailable: "Сервис временно недоступен. Мы уже работаем над решением проблемы. Попробуйте позже.",
	KindValidation:         "Не удалось обработать запрос. Пожалуйста, переформулируйте вопрос.",
	KindUnknown:            "Произошла непредвиденная ошибка. Мы уже знаем о проблеме и работаем над её решением.",
}

// UserMessage returns the fixed user-visible apology for a failure kind.
func UserMessage(kind Kind) string {
	if m, ok := userMessages[kind]; ok {
		return m
	}
	return userMessages[KindUnknown]
}
