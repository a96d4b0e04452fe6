package nodes

import (
	"context"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/resilience"
	logx "github.com/gorodbot/server/pkg/logger"
)

// generate runs one chat model call under the LLM retry policy and records
// usage cost into graph state.
func generate(
	ctx context.Context,
	m einomodel.BaseChatModel,
	callName string,
	modelName string,
	policy resilience.Policy,
	messages []*schema.Message,
) (*schema.Message, *resilience.Failure) {
	out, failure := resilience.Do(ctx, callName, policy, func(ctx context.Context) (*schema.Message, error) {
		return m.Generate(ctx, messages)
	})
	if failure != nil {
		return nil, failure
	}
	recordUsage(ctx, callName, modelName, out)
	return out, nil
}

// recordUsage accumulates the per-call LLM cost into the invocation state.
func recordUsage(ctx context.Context, callName, modelName string, out *schema.Message) {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)

	_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		state.TotalCostUSD += totalC
		logx.Debug().
			Str("thread_id", state.ThreadID).
			Str("call", callName).
			Str("model", modelName).
			Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
			Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
			Float64("input_cost_usd", inC).
			Float64("output_cost_usd", outC).
			Float64("total_cost_usd", state.TotalCostUSD).
			Msg("LLM usage")
		return nil
	})
}

// budgetExhausted reports whether another clarification turn is allowed.
// The counter holds completed clarification turns, so a turn that would
// exceed the budget falls back instead of asking again.
func budgetExhausted(turn *model.Turn, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return turn.Thread.ClarificationAttempts >= maxAttempts
}
