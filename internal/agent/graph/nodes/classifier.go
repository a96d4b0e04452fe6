package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/gorodbot/server/internal/agent/graph/parsers"
	"github.com/gorodbot/server/internal/agent/graph/prompts"
	"github.com/gorodbot/server/internal/agent/model"
	logx "github.com/gorodbot/server/pkg/logger"
)

// NewClassifierNode assigns the turn its category. Candidate-pick turns
// keep their restored category; every other turn goes through the router
// model, including answers to missing-parameter questions, so an explicit
// topic change mid-clarification is honored.
func NewClassifierNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		if turn.State.ResumedCandidate {
			turn.SetMeta(metaClassification, "resumed")
			return turn, nil
		}

		systemPrompt, err := prompts.RenderClassifierSystem(ctx)
		if err != nil {
			return nil, err
		}
		messages := deps.Manager.HistoryWindow(turn, systemPrompt)

		out, failure := generate(ctx, deps.Models.Router, "classify", deps.Models.RouterModelName, deps.LLMPolicy, messages)
		if failure != nil {
			// A dead router must not kill the turn. Route to the knowledge
			// base, which answers without structured outputs.
			logx.Warn().
				Str("thread_id", turn.ThreadID).
				Str("kind", string(failure.Kind)).
				Msg("classifier unavailable, routing to knowledge base")
			turn.State.Category = model.CategoryRAG
			turn.State.CategoryConfidence = 0.5
			turn.SetMeta(metaClassification, "router_unavailable")
			turn.SetMeta(metaFailure, failure.Error())
			return turn, nil
		}

		classification, err := parsers.ParseClassification(out.Content)
		if err != nil {
			logx.Warn().Err(err).Str("thread_id", turn.ThreadID).Msg("unparseable classification, routing to knowledge base")
			turn.State.Category = model.CategoryRAG
			turn.State.CategoryConfidence = 0.5
			turn.SetMeta(metaClassification, "parse_failed")
			return turn, nil
		}

		category, _ := model.ParseCategory(classification.Category)
		turn.State.Category = category
		turn.State.CategoryConfidence = classification.Confidence
		turn.SetMeta(metaClassification, "model")

		// A changed topic abandons the pending clarification: counters and
		// carried slots restart for the new category.
		if turn.Thread.AwaitingClarification && turn.Thread.Category != "" && turn.Thread.Category != category {
			logx.Debug().
				Str("thread_id", turn.ThreadID).
				Str("from", string(turn.Thread.Category)).
				Str("to", string(category)).
				Msg("topic change resets clarification state")
			turn.Thread = model.ThreadState{}
		}

		logx.Debug().
			Str("thread_id", turn.ThreadID).
			Str("category", string(category)).
			Float64("confidence", classification.Confidence).
			Msg("query classified")
		return turn, nil
	})
}

// NewCategoryCondition routes the classified turn to its pipeline.
func NewCategoryCondition() func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, turn *model.Turn) (string, error) {
		switch turn.State.Category {
		case model.CategoryRAG:
			return NodeRAG, nil
		case model.CategoryConversation:
			return NodeConversation, nil
		default:
			return NodeSlots, nil
		}
	}
}
