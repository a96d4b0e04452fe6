package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"

	"github.com/gorodbot/server/internal/agent/model"
	"github.com/gorodbot/server/internal/agent/tools"
	logx "github.com/gorodbot/server/pkg/logger"
)

// NewExecuteToolsNode runs the category's tools with slot-derived arguments.
// Tool selection is deterministic: every runnable tool of the category runs
// once, and individual failures degrade to a marked output instead of
// aborting the turn.
func NewExecuteToolsNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn *model.Turn) (*model.Turn, error) {
		args := argsForTurn(turn)
		entries := tools.Runnable(deps.Registry.ForCategory(turn.State.Category), args)
		if len(entries) == 0 {
			logx.Warn().
				Str("thread_id", turn.ThreadID).
				Str("category", string(turn.State.Category)).
				Msg("no runnable tools for category")
			return turn, nil
		}

		rawArgs, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal tool args: %w", err)
		}

		for _, entry := range entries {
			turn.State.ToolOutputs = append(turn.State.ToolOutputs, runTool(ctx, entry.Tool, string(rawArgs), turn.ThreadID))
		}
		return turn, nil
	})
}

func runTool(ctx context.Context, t tool.BaseTool, rawArgs, threadID string) model.ToolOutput {
	info, err := t.Info(ctx)
	name := "unknown"
	if err == nil && info != nil {
		name = info.Name
	}

	invokable, ok := t.(tool.InvokableTool)
	if !ok {
		return model.ToolOutput{ToolName: name, Output: "tool is not invokable", Success: false}
	}

	out, err := invokable.InvokableRun(ctx, rawArgs)
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", threadID).Str("tool", name).Msg("tool call failed")
		return model.ToolOutput{ToolName: name, Output: err.Error(), Success: false}
	}

	logx.Debug().Str("thread_id", threadID).Str("tool", name).Msg("tool call done")
	return model.ToolOutput{ToolName: name, Output: out, Success: true}
}

func argsForTurn(turn *model.Turn) tools.Args {
	query := turn.AddressForTools()
	if query == "" {
		query = turn.Query
	}
	return tools.Args{
		Query:      query,
		District:   turn.DistrictForTools(),
		BuildingID: turn.State.ValidatedBuildingID,
		Lat:        turn.State.ValidatedLat,
		Lon:        turn.State.ValidatedLon,
	}
}
