package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/resilience"
	logx "github.com/gorodbot/server/pkg/logger"
)

// NewAddressNode resolves the extracted address against the geocoder.
// One candidate validates the turn, several become a numbered pick list,
// none or too many send the question back to the user.
func NewAddressNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		if turn.State.AddressValidated {
			return turn, nil
		}

		maxCandidates := deps.MaxCandidates
		if maxCandidates <= 0 {
			maxCandidates = 5
		}

		// One extra row tells apart "exactly max" from "too many to list".
		candidates, err := deps.Geocoder.ResolveAddress(ctx, turn.State.ExtractedAddress, maxCandidates+1)
		if err != nil {
			kind := resilience.Classify(err)
			logx.Warn().
				Err(err).
				Str("thread_id", turn.ThreadID).
				Str("kind", string(kind)).
				Msg("geocoder unavailable")
			turn.SetMeta(metaFailure, err.Error())
			turn.State.ClarificationQuestion = resilience.UserMessage(kind)
			turn.State.ClarificationType = model.ClarificationOther
			return turn, nil
		}

		switch {
		case len(candidates) == 0:
			turn.State.ClarificationQuestion = fmt.Sprintf(
				"Не нашла адрес «%s». Проверьте, пожалуйста, улицу и номер дома и напишите адрес ещё раз.",
				turn.State.ExtractedAddress,
			)
			turn.State.ClarificationType = model.ClarificationMissing
			turn.State.MissingParams = []string{model.SlotAddress}

		case len(candidates) == 1:
			selected := candidates[0]
			turn.State.AddressValidated = true
			turn.State.AddressCandidates = candidates
			turn.State.SelectedCandidateIndex = 0
			turn.State.ValidatedBuildingID = selected.BuildingID
			turn.State.ValidatedLat = selected.Lat
			turn.State.ValidatedLon = selected.Lon
			turn.State.ExtractedAddress = selected.FullAddress
			logx.Debug().
				Str("thread_id", turn.ThreadID).
				Str("address", selected.FullAddress).
				Int64("building_id", selected.BuildingID).
				Msg("address validated")

		case len(candidates) > maxCandidates:
			turn.State.ClarificationQuestion = "Нашлось слишком много похожих адресов. Уточните, пожалуйста, адрес подробнее: улицу, номер дома и корпус, если есть."
			turn.State.ClarificationType = model.ClarificationMissing
			turn.State.MissingParams = []string{model.SlotAddress}

		default:
			turn.State.AddressCandidates = candidates
			turn.State.ClarificationQuestion = candidateQuestion(candidates)
			turn.State.ClarificationType = model.ClarificationCandidates
		}

		return turn, nil
	})
}

// NewAddressCondition routes the validated or questioned turn.
func NewAddressCondition(deps *Deps) func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, turn *model.Turn) (string, error) {
		if turn.State.AddressValidated {
			return NodeExecuteTools, nil
		}
		// Service failures always reach the user as an apology, regardless
		// of the clarification budget.
		if turn.State.ClarificationType == model.ClarificationOther {
			return NodeClarify, nil
		}
		if budgetExhausted(turn, deps.MaxClarifications) {
			return NodeFallback, nil
		}
		return NodeClarify, nil
	}
}

func candidateQuestion(candidates []model.AddressCandidate) string {
	var b strings.Builder
	b.WriteString("Нашлось несколько похожих адресов. Какой из них ваш? Ответьте номером варианта:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.FullAddress)
	}
	return strings.TrimRight(b.String(), "\n")
}
