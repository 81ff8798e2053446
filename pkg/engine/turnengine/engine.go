// Package turnengine implements the Turn Engine (T2): the outer loop that
// drives a language model, the approval gate, and the tool runner to
// completion for one `send` call. Grounded on the teacher's
// runtime.Engine/TurnRunner split, reworked to partition each round's tool
// calls into bypass and approval-required sets; approval-required calls
// are still resolved one gate cycle at a time (see DESIGN.md).
package turnengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/engine/approval"
	"github.com/agentsea/turnengine/pkg/engine/clockid"
	"github.com/agentsea/turnengine/pkg/engine/tools"
)

// ErrTurnInProgress is returned by Send when a turn is already running for
// the given conversation.
var ErrTurnInProgress = errors.New("turnengine: " + api.ErrTurnInProgress)

// Config wires the Turn Engine to its ports. Every field is required except
// Mode, which defaults to api.ModeSuggest.
type Config struct {
	Memory     api.MemoryStore
	Events     api.EventBus
	Tools      api.ToolRegistry
	ToolRunner api.ToolRunner
	LLM        api.LLMPort
	Approval   api.ApprovalGate
	Clock      api.Clock
	IDs        api.IDGenerator
	Cost       api.CostCalculator
	Reminders  api.Reminders
	Context    api.ContextBuilder

	// Mode is the deployment-wide default approval mode; an individual
	// AgentConfig.RequireToolApproval=false always overrides it to
	// api.ModeFullAuto.
	Mode api.ApprovalMode
}

// Engine is the stateless-between-calls Turn Engine. All per-turn state
// lives on the stack of a Send call; Engine itself only tracks which
// conversations currently have a turn in flight.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	active map[string]bool
}

// New returns an Engine wired against cfg.
func New(cfg Config) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = api.ModeSuggest
	}
	return &Engine{cfg: cfg, active: make(map[string]bool)}
}

// Subscribe returns a live feed of conversationID's turn events.
func (e *Engine) Subscribe(conversationID string) api.Subscription {
	return e.cfg.Events.Subscribe(conversationID)
}

// Respond delivers a human decision to a pending tool approval.
func (e *Engine) Respond(ctx context.Context, decision api.ApprovalDecision) error {
	return e.cfg.Approval.Resolve(ctx, decision)
}

func (e *Engine) acquireTurn(conversationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[conversationID] {
		return ErrTurnInProgress
	}
	e.active[conversationID] = true
	return nil
}

func (e *Engine) releaseTurn(conversationID string) {
	e.mu.Lock()
	delete(e.active, conversationID)
	e.mu.Unlock()
}

// Send drives one turn: it builds (or reuses, when retry=true) the user
// message, then loops LLM round → approval → tool execution until the
// model returns a final text reply or the turn is denied or canceled.
// Send blocks for the whole turn, including any human approval waits;
// callers that want a live view should Subscribe before calling Send from
// another goroutine.
func (e *Engine) Send(ctx context.Context, conversationID string, agentCfg api.AgentConfig, payload api.UserMessagePayload, retry bool) error {
	if err := e.acquireTurn(conversationID); err != nil {
		return err
	}
	defer e.releaseTurn(conversationID)

	agentCfg = agentCfg.WithDefaults()
	mode := e.cfg.Mode
	if !agentCfg.RequireToolApproval {
		mode = api.ModeFullAuto
	}

	turnID := e.cfg.IDs.NewID()
	var seq int64
	emit := func(ev api.Event) {
		ev.ConversationID = conversationID
		ev.TurnID = turnID
		seq++
		ev.Seq = seq
		ev.Ts = clockid.AsTime(e.cfg.Clock.Now())
		_ = e.cfg.Events.Publish(ctx, ev)
	}

	history, err := e.cfg.Memory.History(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("turnengine: load history: %w", err)
	}

	if !retry {
		content := buildUserMessage(payload, e.cfg.Reminders)
		userMsg := api.Message{
			ID:        e.cfg.IDs.NewID(),
			Role:      api.RoleUser,
			Content:   content,
			Timestamp: clockid.AsTime(e.cfg.Clock.Now()),
		}
		if err := e.cfg.Memory.Append(ctx, conversationID, userMsg); err != nil {
			return fmt.Errorf("turnengine: append user message: %w", err)
		}
		emit(api.Event{Type: api.EventMemoryAppended, MemoryAppended: &api.MemoryAppendedPayload{Message: userMsg}})
		emit(api.Event{Type: api.EventMessageStarted, MessageStarted: &api.MessageStartedPayload{
			UserMessageID: userMsg.ID,
			DisplayText:   displayText(payload),
		}})
		history = append(history, userMsg)
	}

	providerMessages := e.cfg.Context.Build(history, agentCfg.SystemPrompt, nil)
	toolDefs := toolSchemas(e.cfg.Tools, agentCfg.EnabledTools)
	finalSaved := false

	for {
		select {
		case <-ctx.Done():
			emit(api.Event{Type: api.EventError, Error: &api.ErrorPayload{Reason: api.ReasonAborted, Message: ctx.Err().Error()}})
			emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "canceled"}})
			return ctx.Err()
		default:
		}

		req := api.LLMRequest{
			Model:        agentCfg.Model,
			SystemPrompt: "",
			Messages:     providerMessages,
			Tools:        toolDefs,
			ToolChoice:   api.ToolChoice{Mode: api.ToolChoiceAuto},
			Temperature:  agentCfg.Temperature,
			TopP:         agentCfg.TopP,
			MaxTokens:    agentCfg.MaxTokens,
		}

		assistantMsg, usage, err := e.runRound(ctx, emit, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				emit(api.Event{Type: api.EventError, Error: &api.ErrorPayload{Reason: api.ReasonAborted, Message: err.Error()}})
				emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "canceled"}})
				return err
			}
			emit(api.Event{Type: api.EventError, Error: &api.ErrorPayload{Reason: api.ReasonNetworkError, Message: err.Error()}})
			emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "error"}})
			return fmt.Errorf("turnengine: llm call: %w", err)
		}

		if len(assistantMsg.ToolCalls) == 0 {
			if finalSaved {
				break
			}
			if assistantMsg.Content.IsEmpty() {
				// A provider reply with neither text nor tool calls would
				// violate Invariant 3 (an assistant message never has
				// neither) if persisted as-is; surface it as an explicit
				// error instead of silently writing it to history.
				err := fmt.Errorf("turnengine: model returned an empty reply with no tool calls")
				emit(api.Event{Type: api.EventError, Error: &api.ErrorPayload{Reason: api.ReasonInvalidInput, Message: err.Error()}})
				emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "error"}})
				return err
			}
			assistantMsg.ID = e.cfg.IDs.NewID()
			assistantMsg.Timestamp = clockid.AsTime(e.cfg.Clock.Now())
			if err := e.cfg.Memory.Append(ctx, conversationID, assistantMsg); err != nil {
				return fmt.Errorf("turnengine: append assistant message: %w", err)
			}
			emit(api.Event{Type: api.EventMemoryAppended, MemoryAppended: &api.MemoryAppendedPayload{Message: assistantMsg}})
			emit(api.Event{Type: api.EventAssistantMessage, AssistantMessage: &api.AssistantMessagePayload{Message: assistantMsg}})
			finalSaved = true
			emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "completed"}})
			return nil
		}

		assistantMsg.ID = e.cfg.IDs.NewID()
		assistantMsg.Timestamp = clockid.AsTime(e.cfg.Clock.Now())
		emit(api.Event{Type: api.EventToolCalls, ToolCalls: &api.ToolCallsPayload{Calls: assistantMsg.ToolCalls}})

		invocations, denied, deniedNames, err := e.resolveApprovals(ctx, emit, mode, assistantMsg.ToolCalls)
		if err != nil {
			emit(api.Event{Type: api.EventError, Error: &api.ErrorPayload{Reason: api.ReasonAborted, Message: err.Error()}})
			emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "canceled"}})
			return err
		}

		var results []api.ToolExecutionResult
		if len(invocations) > 0 {
			toolCtx := tools.WithEventBusHandle(ctx, tools.NewEventBusHandle(e.cfg.Events, conversationID, turnID, &seq))
			results = e.cfg.ToolRunner.Execute(toolCtx, invocations)
		}
		// Merge in original call order: denied ids get a synthetic result,
		// everything else gets its Tool Runner result.
		resultByID := make(map[string]api.ToolExecutionResult, len(results))
		for _, r := range results {
			resultByID[r.ID] = r
		}
		merged := make([]api.ToolExecutionResult, 0, len(assistantMsg.ToolCalls))
		for _, call := range assistantMsg.ToolCalls {
			if denied[call.ID] {
				merged = append(merged, api.ToolExecutionResult{
					ID:     call.ID,
					Name:   call.Function.Name,
					Status: api.ExecError,
					Type:   api.ResultText,
					Result: "Tool execution denied by user",
					Metadata: &api.ResultMetadata{
						ErrorReason: api.ReasonDenied,
					},
				})
				continue
			}
			if r, ok := resultByID[call.ID]; ok {
				merged = append(merged, r)
			}
		}

		if err := e.cfg.Memory.Append(ctx, conversationID, assistantMsg); err != nil {
			return fmt.Errorf("turnengine: append assistant message: %w", err)
		}
		emit(api.Event{Type: api.EventMemoryAppended, MemoryAppended: &api.MemoryAppendedPayload{Message: assistantMsg}})

		toolMessages := make([]api.Message, 0, len(merged))
		for _, res := range merged {
			toolMsg := api.Message{
				ID:         e.cfg.IDs.NewID(),
				Role:       api.RoleTool,
				Content:    api.TextContent(res.Result),
				Timestamp:  clockid.AsTime(e.cfg.Clock.Now()),
				ToolCallID: res.ID,
				Name:       res.Name,
			}
			if err := e.cfg.Memory.Append(ctx, conversationID, toolMsg); err != nil {
				return fmt.Errorf("turnengine: append tool message: %w", err)
			}
			emit(api.Event{Type: api.EventMemoryAppended, MemoryAppended: &api.MemoryAppendedPayload{Message: toolMsg}})
			emit(api.Event{Type: api.EventToolResult, ToolResult: &api.ToolResultPayload{Result: res}})
			toolMessages = append(toolMessages, toolMsg)
		}

		if len(deniedNames) > 0 {
			denialText := "Tool execution was not approved: " + strings.Join(deniedNames, ", ")
			finalMsg := api.Message{
				ID:        e.cfg.IDs.NewID(),
				Role:      api.RoleAssistant,
				Content:   api.TextContent(denialText),
				Timestamp: clockid.AsTime(e.cfg.Clock.Now()),
			}
			if err := e.cfg.Memory.Append(ctx, conversationID, finalMsg); err != nil {
				return fmt.Errorf("turnengine: append denial message: %w", err)
			}
			emit(api.Event{Type: api.EventMemoryAppended, MemoryAppended: &api.MemoryAppendedPayload{Message: finalMsg}})
			emit(api.Event{Type: api.EventAssistantMessage, AssistantMessage: &api.AssistantMessagePayload{Message: finalMsg}})
			finalSaved = true
			emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "denied"}})
			return nil
		}

		if ctx.Err() != nil {
			emit(api.Event{Type: api.EventError, Error: &api.ErrorPayload{Reason: api.ReasonAborted, Message: ctx.Err().Error()}})
			emit(api.Event{Type: api.EventDone, Done: &api.DonePayload{Reason: "canceled"}})
			return ctx.Err()
		}

		providerMessages = append(providerMessages, assistantMsg)
		providerMessages = append(providerMessages, toolMessages...)
		_ = usage
	}

	return nil
}

// runRound streams one LLM call to completion, relaying assistant_chunk
// events (trimming leading newlines on the first text chunk only) and
// returning the aggregated assistant message.
func (e *Engine) runRound(ctx context.Context, emit func(api.Event), req api.LLMRequest) (api.Message, api.UsageData, error) {
	stream, err := e.cfg.LLM.Stream(ctx, req)
	if err != nil {
		return api.Message{}, api.UsageData{}, err
	}
	defer stream.Close()

	var text strings.Builder
	var toolCalls []api.ToolCall
	var usage api.UsageData
	reason := "stop"
	firstChunk := true

	for {
		chunk, ok, err := stream.Recv(ctx)
		if err != nil {
			return api.Message{}, api.UsageData{}, err
		}
		if !ok {
			break
		}

		if chunk.TextDelta != "" {
			delta := chunk.TextDelta
			if firstChunk {
				delta = strings.TrimLeft(delta, "\n")
			}
			firstChunk = false
			if delta != "" {
				text.WriteString(delta)
				emit(api.Event{Type: api.EventAssistantChunk, AssistantChunk: &api.AssistantChunkPayload{Text: delta}})
			}
		}
		if chunk.ToolArgDelta != nil {
			emit(api.Event{Type: api.EventAssistantChunk, AssistantChunk: &api.AssistantChunkPayload{ToolArgDelta: chunk.ToolArgDelta}})
		}
		if len(chunk.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.ToolCalls...)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Reason != "" {
			reason = chunk.Reason
		}
	}

	cost := e.cfg.Cost.Estimate(req.Model, usage)
	emit(api.Event{Type: api.EventStreamFinish, StreamFinish: &api.StreamFinishPayload{Reason: reason, Usage: &usage, Cost: &cost}})

	msg := api.Message{Role: api.RoleAssistant, ToolCalls: toolCalls}
	if text.Len() > 0 {
		msg.Content = api.TextContent(text.String())
	} else {
		msg.Content = api.NoContent()
	}
	return msg, usage, nil
}

// resolveApprovals partitions calls into bypass and approval-required
// subsets, resolving the latter through the Approval Gate one invocation at
// a time (api.ToolApprovalRequiredPayload carries a single invocation),
// honoring approve_all as "stop asking for the rest of this round". It
// returns the invocations to hand the Tool Runner (bypass + approved +
// edited, in call order — denied calls are excluded), the set of denied
// call ids, and their tool names for the denial message.
func (e *Engine) resolveApprovals(ctx context.Context, emit func(api.Event), mode api.ApprovalMode, calls []api.ToolCall) ([]api.ToolInvocation, map[string]bool, []string, error) {
	denied := make(map[string]bool)
	var deniedNames []string
	var invocations []api.ToolInvocation
	autoApproveRest := false

	for _, call := range calls {
		var params map[string]any
		if call.Function.ArgumentsJSON != "" {
			_ = json.Unmarshal([]byte(call.Function.ArgumentsJSON), &params)
		}
		if params == nil {
			params = map[string]any{}
		}
		inv := api.ToolInvocation{ID: call.ID, Name: call.Function.Name, Parameters: params}

		if !approval.NeedApproval(mode, call.Function.Name) || autoApproveRest {
			invocations = append(invocations, inv)
			continue
		}

		approvalID := e.cfg.IDs.NewID()
		reqPayload := api.ToolApprovalRequiredPayload{
			ApprovalID: approvalID,
			Invocation: inv,
			Preview:    previewFor(ctx, e.cfg.Tools, inv),
		}
		emit(api.Event{Type: api.EventToolApprovalRequired, ToolApprovalRequired: &reqPayload})

		if err := e.cfg.Approval.Request(ctx, approvalID, reqPayload); err != nil {
			return nil, nil, nil, err
		}
		decision, err := e.cfg.Approval.Await(ctx, approvalID)
		if err != nil {
			return nil, nil, nil, err
		}
		emit(api.Event{Type: api.EventToolApprovalResponse, ToolApprovalResponse: &api.ToolApprovalResponsePayload{ApprovalID: approvalID, Decision: decision}})

		switch decision.Kind {
		case api.ApprovalDeny:
			denied[call.ID] = true
			deniedNames = append(deniedNames, call.Function.Name)
		case api.ApprovalApproveAll:
			autoApproveRest = true
			invocations = append(invocations, inv)
		case api.ApprovalEdit:
			if decision.EditedArgs != nil {
				inv.Parameters = decision.EditedArgs
			}
			inv.EditInstruction = decision.EditInstruction
			invocations = append(invocations, inv)
		case api.ApprovalApprove:
			invocations = append(invocations, inv)
		default:
			denied[call.ID] = true
			deniedNames = append(deniedNames, call.Function.Name)
		}
	}

	return invocations, denied, deniedNames, nil
}

// previewFor asks tool for a Preview of inv, when it implements
// api.Previewer. Preview failures are swallowed: the approval request still
// goes out, just without a preview.
func previewFor(ctx context.Context, registry api.ToolRegistry, inv api.ToolInvocation) *api.Preview {
	tool, ok := registry.Get(inv.Name)
	if !ok {
		return nil
	}
	previewer, ok := tool.(api.Previewer)
	if !ok {
		return nil
	}
	p, err := previewer.Preview(ctx, inv.Parameters)
	if err != nil {
		return nil
	}
	return &p
}

// toolSchemas resolves enabledTools against registry into the model-facing
// tool declarations, in the registry's stable (sorted-by-name) order.
func toolSchemas(registry api.ToolRegistry, enabledTools []string) []api.LLMToolSchema {
	if len(enabledTools) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(enabledTools))
	for _, n := range enabledTools {
		allowed[n] = true
	}
	var out []api.LLMToolSchema
	for _, t := range registry.All() {
		if !allowed[t.Name()] {
			continue
		}
		out = append(out, api.LLMToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParametersSchema(),
		})
	}
	return out
}
