package tools

import (
	"context"
	"testing"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

type recordingBus struct {
	events []api.Event
}

func (b *recordingBus) Publish(_ context.Context, ev api.Event) error {
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) Subscribe(string) api.Subscription { return nil }

func TestEventBusHandle_EmitMCPStderr(t *testing.T) {
	bus := &recordingBus{}
	var seq int64
	handle := NewEventBusHandle(bus, "conv-1", "turn-1", &seq)
	ctx := WithEventBusHandle(context.Background(), handle)

	got := EventBusHandleFromContext(ctx)
	got.EmitMCPStderr(ctx, "grep_server", "warning: slow query")

	if len(bus.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(bus.events))
	}
	ev := bus.events[0]
	if ev.Type != api.EventMCPStderr {
		t.Fatalf("expected mcp_stderr event, got %s", ev.Type)
	}
	if ev.MCPStderr == nil || ev.MCPStderr.ToolName != "grep_server" || ev.MCPStderr.Line != "warning: slow query" {
		t.Fatalf("unexpected payload: %+v", ev.MCPStderr)
	}
	if ev.ConversationID != "conv-1" || ev.TurnID != "turn-1" {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
	if ev.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", ev.Seq)
	}
}

func TestEventBusHandleFromContext_ZeroValueIsNoop(t *testing.T) {
	got := EventBusHandleFromContext(context.Background())
	got.EmitMCPStderr(context.Background(), "x", "y") // must not panic
}
