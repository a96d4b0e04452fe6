package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/graph/prompts"
	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/resilience"
	logx "github.com/gorodbot/server/pkg/logger"
)

const metaFallbackUsed = "fallback_used"

// NewRAGNode retrieves knowledge-base chunks for a reference question.
func NewRAGNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		turn.State.FallbackContext = searchKnowledgeBase(ctx, deps, turn.ThreadID, turn.Query)
		return turn, nil
	})
}

// NewConversationNode passes small talk straight to the response model.
func NewConversationNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		return turn, nil
	})
}

// NewFallbackNode handles an exhausted clarification budget: the assistant
// stops asking and answers from the knowledge base with whatever is known.
func NewFallbackNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		logx.Info().
			Str("thread_id", turn.ThreadID).
			Str("category", string(turn.State.Category)).
			Int("attempts", turn.Thread.ClarificationAttempts).
			Msg("clarification budget exhausted, answering from knowledge base")
		turn.SetMeta(metaFallbackUsed, "true")
		turn.State.FallbackContext = searchKnowledgeBase(ctx, deps, turn.ThreadID, turn.Query)
		return turn, nil
	})
}

func searchKnowledgeBase(ctx context.Context, deps *Deps, threadID, query string) string {
	if deps.Searcher == nil {
		return ""
	}
	topK := deps.SearchTopK
	if topK <= 0 {
		topK = 3
	}
	docs, err := deps.Searcher.Search(ctx, query, topK)
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", threadID).Msg("knowledge base search failed")
		return ""
	}
	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		var b strings.Builder
		if doc.Title != "" {
			b.WriteString(doc.Title + "\n")
		}
		b.WriteString(doc.Content)
		if doc.SourceURL != "" {
			b.WriteString("\nИсточник: " + doc.SourceURL)
		}
		chunks = append(chunks, b.String())
	}
	return strings.Join(chunks, "\n\n---\n\n")
}

// NewClarifyNode asks the user the pending question and commits the turn.
// Service-failure apologies keep the previous clarification state so the
// original question stays answerable; real clarifications spend budget.
func NewClarifyNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*schema.Message, error) {
		question := turn.State.ClarificationQuestion

		var next model.ThreadState
		if turn.State.ClarificationType == model.ClarificationOther {
			next = turn.Thread
		} else {
			next = model.ThreadState{
				Category:              turn.State.Category,
				ClarificationAttempts: turn.Thread.ClarificationAttempts + 1,
				AwaitingClarification: true,
				ClarificationType:     turn.State.ClarificationType,
				ExtractedAddress:      turn.State.ExtractedAddress,
				ExtractedDistrict:     turn.State.ExtractedDistrict,
			}
			if turn.State.ClarificationType == model.ClarificationCandidates {
				next.PendingCandidates = turn.State.AddressCandidates
			}
		}

		if err := deps.Manager.CommitTurn(ctx, turn.ThreadID, turn.Query, question, &next); err != nil {
			logx.Error().Err(err).Str("thread_id", turn.ThreadID).Msg("failed to commit clarification turn")
			return nil, err
		}

		logx.Debug().
			Str("thread_id", turn.ThreadID).
			Str("type", string(turn.State.ClarificationType)).
			Int("attempts", next.ClarificationAttempts).
			Msg("clarification asked")
		return Annotate(schema.AssistantMessage(question, nil), turn.State.Category, true), nil
	})
}

// NewRespondNode produces the final user-facing answer and commits the turn.
func NewRespondNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*schema.Message, error) {
		systemPrompt, err := respondSystemPrompt(ctx, turn)
		if err != nil {
			return nil, err
		}
		messages := deps.Manager.HistoryWindow(turn, systemPrompt)

		var response string
		out, failure := generate(ctx, deps.Models.Response, "respond", deps.Models.ResponseModelName, deps.LLMPolicy, messages)
		if failure != nil {
			logx.Warn().
				Str("thread_id", turn.ThreadID).
				Str("kind", string(failure.Kind)).
				Msg("response model unavailable, sending apology")
			response = resilience.UserMessage(failure.Kind)
		} else {
			response = strings.TrimSpace(out.Content)
			if response == "" {
				response = resilience.UserMessage(resilience.KindUnknown)
			}
		}
		turn.State.FinalResponse = response

		// A delivered answer closes the clarification loop; validated slots
		// stay on the thread for follow-up questions.
		next := model.ThreadState{
			Category:          turn.State.Category,
			ExtractedAddress:  turn.State.ExtractedAddress,
			ExtractedDistrict: turn.State.ExtractedDistrict,
		}
		if err := deps.Manager.CommitTurn(ctx, turn.ThreadID, turn.Query, response, &next); err != nil {
			logx.Error().Err(err).Str("thread_id", turn.ThreadID).Msg("failed to commit response turn")
			return nil, err
		}

		return Annotate(schema.AssistantMessage(response, nil), turn.State.Category, false), nil
	})
}

func respondSystemPrompt(ctx context.Context, turn *model.Turn) (string, error) {
	switch {
	case turn.State.Category == model.CategoryConversation:
		return prompts.RenderConversationSystem(ctx)
	case turn.State.Category == model.CategoryRAG || turn.State.Metadata[metaFallbackUsed] == "true":
		var chunks []string
		if turn.State.FallbackContext != "" {
			chunks = []string{turn.State.FallbackContext}
		}
		return prompts.RenderRAGSystem(ctx, chunks)
	default:
		return prompts.RenderResponseSystem(ctx, turn.State.Category, turn.State.ToolOutputs)
	}
}
