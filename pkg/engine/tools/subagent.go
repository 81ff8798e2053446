package tools

import (
	"context"
	"fmt"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// Dispatcher runs a child turn-engine conversation to completion and
// returns its final assistant text. Supplied by the turnengine package at
// construction time: the tools package cannot import turnengine without a
// cycle, so dispatch_subagent is registered separately from
// DefaultRegistry, wired directly against the parent engine's Send method.
type Dispatcher func(ctx context.Context, task string, allowedTools []string) (string, error)

// SubAgentTool dispatches a bounded child conversation sharing the parent's
// event bus (spec.md §9 "Cyclic structures"). High-risk: requires approval
// outside full-auto mode.
type SubAgentTool struct {
	BaseTool
	dispatch Dispatcher
}

// NewSubAgentTool returns a dispatch_subagent tool that delegates task
// execution to dispatch.
func NewSubAgentTool(dispatch Dispatcher) *SubAgentTool {
	return &SubAgentTool{
		BaseTool: NewBaseTool(
			"dispatch_subagent",
			"Dispatch a focused sub-task to a child agent and block until it completes. Use for self-contained work that would otherwise bloat the main conversation's context.",
			[]ParameterDef{
				{Name: "task", Type: "string", Description: "The task for the sub-agent to complete, written as a complete standalone instruction", Required: true},
				{Name: "allowed_tools", Type: "array", Description: "Tool names the sub-agent may use (default: all tools available to the parent)", Required: false},
			},
		),
		dispatch: dispatch,
	}
}

func (t *SubAgentTool) Execute(ctx context.Context, args api.Args) (api.ToolExecutionResult, error) {
	task := GetStringArg(args, "task", "")
	if task == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "task is required"), nil
	}

	var allowed []string
	if raw, ok := args["allowed_tools"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				allowed = append(allowed, s)
			}
		}
	}

	if t.dispatch == nil {
		return failuref(t.Name(), api.ReasonInvalidInput, "dispatch_subagent is not wired to an engine"), nil
	}

	result, err := t.dispatch(ctx, task, allowed)
	if err != nil {
		if ctxDeadlineExceeded(ctx) {
			return failuref(t.Name(), api.ReasonTimeout, "sub-agent timed out"), nil
		}
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}
	return success(t.Name(), result), nil
}

// Preview summarizes the sub-task for the Approval Gate.
func (t *SubAgentTool) Preview(_ context.Context, args api.Args) (api.Preview, error) {
	task := GetStringArg(args, "task", "")
	allowed, _ := args["allowed_tools"].([]any)
	return api.Preview{
		Kind:     api.PreviewCommand,
		Summary:  "Dispatch sub-agent",
		Content:  task,
		RiskHint: fmt.Sprintf("spawns a child conversation with %d allowed tool(s) configured", len(allowed)),
	}, nil
}
