package tools

import (
	"context"
	"sync/atomic"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// EventBusHandle lets a running tool publish side-channel events onto the
// conversation's stream without the api.Tool interface itself depending on
// api.EventBus. Currently only mcp_stderr uses it (spec.md §4.2 reserves
// the event kind for an MCP-backed tool; none ships here).
type EventBusHandle struct {
	bus            api.EventBus
	conversationID string
	turnID         string
	seq            *int64
}

// NewEventBusHandle binds bus to one turn's conversation/turn id pair. seq
// is the turn engine's own per-turn counter, shared so handle-emitted
// events interleave correctly with the engine's Seq numbering.
func NewEventBusHandle(bus api.EventBus, conversationID, turnID string, seq *int64) EventBusHandle {
	return EventBusHandle{bus: bus, conversationID: conversationID, turnID: turnID, seq: seq}
}

// EmitMCPStderr publishes a stderr line from toolName. A no-op when the
// handle was never attached to a context (h.bus == nil).
func (h EventBusHandle) EmitMCPStderr(ctx context.Context, toolName, line string) {
	if h.bus == nil {
		return
	}
	ev := api.Event{
		ConversationID: h.conversationID,
		TurnID:         h.turnID,
		Type:           api.EventMCPStderr,
		MCPStderr:      &api.MCPStderrPayload{ToolName: toolName, Line: line},
	}
	if h.seq != nil {
		ev.Seq = atomic.AddInt64(h.seq, 1)
	}
	_ = h.bus.Publish(ctx, ev)
}

type eventBusHandleKey struct{}

// WithEventBusHandle attaches h to ctx for a tool's Execute to retrieve via
// EventBusHandleFromContext.
func WithEventBusHandle(ctx context.Context, h EventBusHandle) context.Context {
	return context.WithValue(ctx, eventBusHandleKey{}, h)
}

// EventBusHandleFromContext returns the handle the turn engine attached
// before calling the tool runner, or a zero-value handle (whose
// EmitMCPStderr is a no-op) outside a run.
func EventBusHandleFromContext(ctx context.Context) EventBusHandle {
	h, _ := ctx.Value(eventBusHandleKey{}).(EventBusHandle)
	return h
}
