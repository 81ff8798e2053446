package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/errgroup"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// Runner executes a batch of tool invocations with bounded concurrency,
// preserving input order in its results and marking unfinished
// invocations aborted on cancellation (spec.md §4.3/§5). Grounded on the
// evoclaw tool loop's errgroup-based executeParallel: one pre-allocated
// result slot per invocation, no mutex needed because each goroutine only
// writes its own slot.
type Runner struct {
	registry    api.ToolRegistry
	concurrency int
}

// NewRunner returns a Runner capped at concurrency simultaneous
// executions. concurrency <= 0 is treated as 1.
func NewRunner(registry api.ToolRegistry, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{registry: registry, concurrency: concurrency}
}

// Execute runs every invocation, validating its parameters against the
// resolved tool's declared schema before calling it. A canceled ctx marks
// every invocation that hasn't started yet (and any still running once
// cancellation is observed) as aborted; invocations that already finished
// keep their real result.
func (r *Runner) Execute(ctx context.Context, invocations []api.ToolInvocation) []api.ToolExecutionResult {
	if len(invocations) == 0 {
		return nil
	}

	// Fast path: a single call needs no goroutine.
	if len(invocations) == 1 {
		return []api.ToolExecutionResult{r.executeOne(ctx, invocations[0])}
	}

	results := make([]api.ToolExecutionResult, len(invocations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, inv := range invocations {
		i, inv := i, inv
		g.Go(func() error {
			results[i] = r.executeOne(gctx, inv)
			return nil
		})
	}
	_ = g.Wait()

	// Any slot left zero-valued means its goroutine never ran (the group's
	// context was canceled before its turn) — mark those aborted.
	for i, inv := range invocations {
		if results[i].Name == "" {
			results[i] = failure(inv.Name, api.ReasonAborted, context.Canceled)
			results[i].ID = inv.ID
		}
	}
	return results
}

func (r *Runner) executeOne(ctx context.Context, inv api.ToolInvocation) api.ToolExecutionResult {
	start := time.Now()

	tool, ok := r.registry.Get(inv.Name)
	if !ok {
		res := failuref(inv.Name, api.ReasonToolNotFound, "tool not found: %s", inv.Name)
		res.ID = inv.ID
		return withDuration(res, start)
	}

	if err := validateParams(tool, inv.Parameters); err != nil {
		res := failure(inv.Name, api.ReasonInvalidInput, err)
		res.ID = inv.ID
		return withDuration(res, start)
	}

	select {
	case <-ctx.Done():
		res := failure(inv.Name, api.ReasonAborted, ctx.Err())
		res.ID = inv.ID
		return withDuration(res, start)
	default:
	}

	// An edit_instruction means the decider approved the call with a
	// correction instead of running it: the tool never executes, the LLM
	// sees the correction as an edited-reason error on the next round
	// (spec.md §4.5/§6).
	if inv.EditInstruction != "" {
		res := api.ToolExecutionResult{
			Name:   inv.Name,
			ID:     inv.ID,
			Status: api.ExecError,
			Type:   api.ResultText,
			Result: inv.EditInstruction,
			Metadata: &api.ResultMetadata{
				ErrorReason: api.ReasonEdited,
			},
		}
		return withDuration(res, start)
	}

	res, err := tool.Execute(ctx, inv.Parameters)
	if err != nil {
		reason := api.ReasonNetworkError
		if ctxDeadlineExceeded(ctx) {
			reason = api.ReasonTimeout
		} else if ctx.Err() != nil {
			reason = api.ReasonAborted
		}
		res = failure(inv.Name, reason, err)
	} else if res.Status == api.ExecError && ctx.Err() == context.Canceled {
		if res.Metadata == nil {
			res.Metadata = &api.ResultMetadata{}
		}
		res.Metadata.ErrorReason = api.ReasonAborted
	}
	res.ID = inv.ID
	if res.Name == "" {
		res.Name = inv.Name
	}
	return withDuration(res, start)
}

// validateParams checks params against tool's declared JSON Schema, when
// the tool exposes one with at least one property. Tools with an empty
// schema (no declared parameters) accept anything.
func validateParams(tool api.Tool, params map[string]any) error {
	schema := tool.ParametersSchema()
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil // schema itself is malformed; don't block execution on our own bug
	}

	compiler := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	if err := compiler.AddResource("inline.json", doc); err != nil {
		return nil
	}
	compiled, err := compiler.Compile("inline.json")
	if err != nil {
		return nil
	}

	if params == nil {
		params = map[string]any{}
	}
	return compiled.Validate(params)
}
