package nodes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gorodbot/server/internal/agent/graph/parsers"
	"github.com/gorodbot/server/internal/agent/graph/prompts"
	"github.com/gorodbot/server/internal/agent/model"
	logx "github.com/gorodbot/server/pkg/logger"
)

// NewSlotsNode checks whether the turn carries the parameters its category
// requires, merging values extracted on earlier clarification turns.
func NewSlotsNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		if turn.State.ResumedCandidate {
			return turn, nil
		}

		category := turn.State.Category
		required := model.RequiredSlots(category)
		if len(required) == 0 {
			turn.State.SlotsComplete = true
			// Categories without mandatory slots still benefit from a
			// district mentioned earlier in the thread.
			turn.State.ExtractedDistrict = turn.Thread.ExtractedDistrict
			return turn, nil
		}

		systemPrompt, err := prompts.RenderSlotsSystem(ctx, category)
		if err != nil {
			return nil, err
		}
		messages := deps.Manager.HistoryWindow(turn, systemPrompt)
		if note := carriedSlotsNote(turn); note != "" {
			messages = append([]*schema.Message{messages[0], schema.SystemMessage(note)}, messages[1:]...)
		}

		out, failure := generate(ctx, deps.Models.Router, "check_slots", deps.Models.RouterModelName, deps.LLMPolicy, messages)
		if failure != nil {
			logx.Warn().
				Str("thread_id", turn.ThreadID).
				Str("kind", string(failure.Kind)).
				Msg("slot checker unavailable")
			turn.SetMeta(metaFailure, failure.Error())
			applyCarriedSlots(turn, required)
			return turn, nil
		}

		check, err := parsers.ParseSlotsCheck(out.Content)
		if err != nil {
			logx.Warn().Err(err).Str("thread_id", turn.ThreadID).Msg("unparseable slot check")
			applyCarriedSlots(turn, required)
			return turn, nil
		}

		turn.State.ExtractedAddress = firstNonEmpty(check.ExtractedAddress, turn.Thread.ExtractedAddress)
		turn.State.ExtractedDistrict = firstNonEmpty(check.ExtractedDistrict, turn.Thread.ExtractedDistrict)
		turn.State.SlotsComplete = slotsSatisfied(turn, required)

		if !turn.State.SlotsComplete {
			turn.State.MissingParams = missingSlots(turn, required)
			question := strings.TrimSpace(check.ClarificationQuestion)
			if question == "" {
				question = defaultClarification(turn.State.MissingParams)
			}
			turn.State.ClarificationQuestion = question
			turn.State.ClarificationType = model.ClarificationMissing
		}

		logx.Debug().
			Str("thread_id", turn.ThreadID).
			Str("category", string(category)).
			Bool("complete", turn.State.SlotsComplete).
			Strs("missing", turn.State.MissingParams).
			Msg("slot check done")
		return turn, nil
	})
}

// NewSlotsCondition routes a checked turn: validate the address, execute
// tools, ask for the missing value, or give up into the knowledge base.
func NewSlotsCondition(deps *Deps) func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, turn *model.Turn) (string, error) {
		if turn.State.ResumedCandidate {
			return NodeExecuteTools, nil
		}
		if turn.State.SlotsComplete {
			if needsAddressValidation(turn) {
				return NodeAddress, nil
			}
			return NodeExecuteTools, nil
		}
		if budgetExhausted(turn, deps.MaxClarifications) {
			return NodeFallback, nil
		}
		return NodeClarify, nil
	}
}

func needsAddressValidation(turn *model.Turn) bool {
	if turn.State.AddressValidated {
		return false
	}
	return slices.Contains(model.RequiredSlots(turn.State.Category), model.SlotAddress)
}

func slotsSatisfied(turn *model.Turn, required []string) bool {
	for _, slot := range required {
		switch slot {
		case model.SlotAddress:
			if turn.State.ExtractedAddress == "" {
				return false
			}
		case model.SlotDistrict:
			if turn.State.ExtractedDistrict == "" {
				return false
			}
		}
	}
	return true
}

func missingSlots(turn *model.Turn, required []string) []string {
	missing := make([]string, 0, len(required))
	for _, slot := range required {
		switch slot {
		case model.SlotAddress:
			if turn.State.ExtractedAddress == "" {
				missing = append(missing, slot)
			}
		case model.SlotDistrict:
			if turn.State.ExtractedDistrict == "" {
				missing = append(missing, slot)
			}
		}
	}
	return missing
}

// applyCarriedSlots resolves the turn from previously gathered values when
// the checker itself is unavailable.
func applyCarriedSlots(turn *model.Turn, required []string) {
	turn.State.ExtractedAddress = turn.Thread.ExtractedAddress
	turn.State.ExtractedDistrict = turn.Thread.ExtractedDistrict
	turn.State.SlotsComplete = slotsSatisfied(turn, required)
	if !turn.State.SlotsComplete {
		turn.State.MissingParams = missingSlots(turn, required)
		turn.State.ClarificationQuestion = defaultClarification(turn.State.MissingParams)
		turn.State.ClarificationType = model.ClarificationMissing
	}
}

func carriedSlotsNote(turn *model.Turn) string {
	parts := make([]string, 0, 2)
	if turn.Thread.ExtractedAddress != "" {
		parts = append(parts, fmt.Sprintf("адрес: %s", turn.Thread.ExtractedAddress))
	}
	if turn.Thread.ExtractedDistrict != "" {
		parts = append(parts, fmt.Sprintf("район: %s", turn.Thread.ExtractedDistrict))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Ранее в этом диалоге пользователь уже указал: " + strings.Join(parts, "; ")
}

func defaultClarification(missing []string) string {
	if slices.Contains(missing, model.SlotDistrict) && !slices.Contains(missing, model.SlotAddress) {
		return "Подскажите, пожалуйста, какой район вас интересует? Например, Калининский."
	}
	return "Уточните, пожалуйста, адрес: улицу и номер дома. Например, Невский проспект 28."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
