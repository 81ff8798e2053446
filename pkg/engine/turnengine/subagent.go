package turnengine

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/engine/clockid"
	"github.com/agentsea/turnengine/pkg/engine/tools"
)

// SubAgentDispatcher builds a tools.Dispatcher that spawns a child
// conversation under this same Engine — sharing its event bus, memory
// store, and every other port — and blocks until the child's turn
// completes. Per spec.md §9's "cyclic structures" note, the child holds no
// owning reference back to the parent; it is just another conversation id
// on the same Engine, so it is dropped independently once Send returns.
// agentCfg seeds the child's model/system-prompt/concurrency settings;
// allowedTools (when non-empty) narrows EnabledTools for the child only.
func (e *Engine) SubAgentDispatcher(parentConversationID string, agentCfg api.AgentConfig) tools.Dispatcher {
	return func(ctx context.Context, task string, allowedTools []string) (string, error) {
		childID := parentConversationID + ":sub:" + e.cfg.IDs.NewID()

		childCfg := agentCfg
		if len(allowedTools) > 0 {
			childCfg.EnabledTools = allowedTools
		}

		emitParent := func(ev api.Event) {
			ev.ConversationID = parentConversationID
			ev.Ts = clockid.AsTime(e.cfg.Clock.Now())
			_ = e.cfg.Events.Publish(ctx, ev)
		}

		emitParent(api.Event{
			Type:     api.EventSubAgentStarted,
			SubAgent: &api.SubAgentPayload{ChildConversationID: childID},
		})

		var wg sync.WaitGroup
		sub := e.cfg.Events.Subscribe(childID)
		wg.Add(1)
		go relaySubAgentEvents(ctx, sub, emitParent, childID, &wg)

		sendErr := e.Send(ctx, childID, childCfg, api.UserMessagePayload{Text: task}, false)
		_ = sub.Close()
		wg.Wait()

		if sendErr != nil {
			return "", sendErr
		}

		history, err := e.cfg.Memory.History(ctx, childID)
		if err != nil {
			return "", err
		}
		final := lastAssistantText(history)
		emitParent(api.Event{
			Type: api.EventSubAgentCompleted,
			SubAgent: &api.SubAgentPayload{
				ChildConversationID: childID,
				FinalMessage:        lastAssistantMessage(history),
			},
		})
		return final, nil
	}
}

// relaySubAgentEvents forwards a child conversation's tool_calls/tool_result
// events onto the parent's bus as sub_agent_tool_call/sub_agent_tool_result,
// until the child subscription is closed or ctx is done.
func relaySubAgentEvents(ctx context.Context, sub api.Subscription, emitParent func(api.Event), childID string, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				_ = err // subscriber-side errors are swallowed per spec.md §4.2
			}
			return
		}
		switch ev.Type {
		case api.EventToolCalls:
			if ev.ToolCalls == nil {
				continue
			}
			for i := range ev.ToolCalls.Calls {
				call := ev.ToolCalls.Calls[i]
				emitParent(api.Event{
					Type:     api.EventSubAgentToolCall,
					SubAgent: &api.SubAgentPayload{ChildConversationID: childID, ToolCall: &call},
				})
			}
		case api.EventToolResult:
			if ev.ToolResult == nil {
				continue
			}
			result := ev.ToolResult.Result
			emitParent(api.Event{
				Type:     api.EventSubAgentToolResult,
				SubAgent: &api.SubAgentPayload{ChildConversationID: childID, ToolResult: &result},
			})
		}
	}
}

func lastAssistantText(history []api.Message) string {
	if m := lastAssistantMessage(history); m != nil {
		return m.Content.AsPlainText()
	}
	return ""
}

func lastAssistantMessage(history []api.Message) *api.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == api.RoleAssistant && !history[i].Content.IsEmpty() {
			return &history[i]
		}
	}
	return nil
}
