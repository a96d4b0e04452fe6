package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/graph/conversations"
	"github.com/gorodbot/server/internal/agent/graph/parsers"
	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/resilience"
	"github.com/gorodbot/server/internal/agent/toxicity"
	"github.com/gorodbot/server/internal/agent/tools"
	"github.com/gorodbot/server/internal/cityapi"
	"github.com/gorodbot/server/internal/rag"
	logx "github.com/gorodbot/server/pkg/logger"
)

// Node names used when wiring the orchestrator graph.
const (
	NodeIntake       = "Intake"
	NodeToxicity     = "ToxicityGate"
	NodeToxicReply   = "ToxicReply"
	NodeClassifier   = "Classifier"
	NodeSlots        = "SlotChecker"
	NodeAddress      = "AddressValidator"
	NodeClarify      = "Clarify"
	NodeFallback     = "Fallback"
	NodeRAG          = "KnowledgeBase"
	NodeConversation = "SmallTalk"
	NodeExecuteTools = "ToolExecutor"
	NodeRespond      = "Respond"
)

// Metadata keys recorded on turns for diagnostics.
const (
	metaToxicityLevel  = "toxicity_level"
	metaToxicityReply  = "toxicity_reply"
	metaClassification = "classification"
	metaPriorCategory  = "prior_category"
	metaFailure        = "failure"
)

// Deps carries every collaborator the graph nodes need.
type Deps struct {
	Models   *ChatModels
	Manager  *conversations.MessagesManager
	Toxicity *toxicity.Filter
	Geocoder cityapi.Geocoder
	Registry *tools.Registry
	Searcher rag.Searcher

	LLMPolicy resilience.Policy
	APIPolicy resilience.Policy

	MaxClarifications int
	MaxCandidates     int
	SearchTopK        int
}

// NewIntakePreHandler seeds the invocation state for a new turn.
func NewIntakePreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.ThreadID == "" {
			s.ThreadID = in.ThreadID
		}
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewIntakeNode loads the thread and detects answers to a pending
// clarification. A bare ordinal that matches a pending candidate list skips
// classification and geocoding entirely.
func NewIntakeNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) (*model.Turn, error) {
		turn, err := deps.Manager.LoadTurn(ctx, input.ThreadID, input.Query)
		if err != nil {
			return nil, fmt.Errorf("load thread %s: %w", input.ThreadID, err)
		}

		if turn.Thread.AwaitingClarification {
			turn.SetMeta(metaPriorCategory, string(turn.Thread.Category))
		}

		if turn.Thread.AwaitingClarification &&
			turn.Thread.ClarificationType == model.ClarificationCandidates &&
			len(turn.Thread.PendingCandidates) > 0 {
			if idx, ok := parsers.ParseCandidateSelection(input.Query, len(turn.Thread.PendingCandidates)); ok {
				selected := turn.Thread.PendingCandidates[idx]
				turn.State.ResumedCandidate = true
				turn.State.Category = turn.Thread.Category
				turn.State.AddressCandidates = turn.Thread.PendingCandidates
				turn.State.SelectedCandidateIndex = idx
				turn.State.AddressValidated = true
				turn.State.ValidatedBuildingID = selected.BuildingID
				turn.State.ValidatedLat = selected.Lat
				turn.State.ValidatedLon = selected.Lon
				turn.State.ExtractedAddress = selected.FullAddress
				turn.State.ExtractedDistrict = turn.Thread.ExtractedDistrict
				turn.State.SlotsComplete = true
				logx.Debug().
					Str("thread_id", input.ThreadID).
					Int("candidate", idx+1).
					Str("address", selected.FullAddress).
					Msg("resumed pending candidate selection")
			}
		}

		return turn, nil
	})
}

// NewToxicityNode screens the raw query before any model call.
func NewToxicityNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		result := deps.Toxicity.Check(turn.Query)
		turn.SetMeta(metaToxicityLevel, string(result.Level))
		if result.ShouldBlock() {
			turn.SetMeta(metaToxicityReply, deps.Toxicity.Response(result))
			logx.Info().
				Str("thread_id", turn.ThreadID).
				Str("level", string(result.Level)).
				Msg("query blocked by toxicity filter")
		}
		return turn, nil
	})
}

// NewToxicityCondition routes blocked queries straight to the fixed reply.
func NewToxicityCondition() func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, turn *model.Turn) (string, error) {
		if turn.State.Metadata[metaToxicityReply] != "" {
			return NodeToxicReply, nil
		}
		return NodeClassifier, nil
	}
}

// NewToxicReplyNode answers a blocked query with the fixed text. The thread
// state is committed unchanged: a hostile turn neither spends clarification
// budget nor clears a pending question.
func NewToxicReplyNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*schema.Message, error) {
		reply := turn.State.Metadata[metaToxicityReply]
		state := turn.Thread
		if err := deps.Manager.CommitTurn(ctx, turn.ThreadID, turn.Query, reply, &state); err != nil {
			logx.Error().Err(err).Str("thread_id", turn.ThreadID).Msg("failed to commit toxic-reply turn")
			return nil, err
		}
		return Annotate(schema.AssistantMessage(reply, nil), "", state.AwaitingClarification), nil
	})
}

// Extra keys set on terminal messages for the transport layer.
const (
	ExtraCategory              = "category"
	ExtraAwaitingClarification = "awaiting_clarification"
)

// Annotate tags a terminal message with routing facts for the caller.
func Annotate(msg *schema.Message, category model.Category, awaiting bool) *schema.Message {
	if msg.Extra == nil {
		msg.Extra = map[string]any{}
	}
	msg.Extra[ExtraCategory] = string(category)
	msg.Extra[ExtraAwaitingClarification] = awaiting
	return msg
}
