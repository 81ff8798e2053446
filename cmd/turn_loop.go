package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agentsea/turnengine/cmd/ui"
	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/engine/turnengine"
)

type approvalState struct {
	autoApproveAll bool
}

// runTurnWithApprovals drives one Send call to completion: it streams
// events to the terminal, answers tool_approval_required events via
// approver (or auto-approves when a prior turn chose "approve all"), and
// lets ESC-ESC cancellation (via monitorCancellation) abort the turn.
func runTurnWithApprovals(ctx context.Context, eng *turnengine.Engine, conversationID string, agentCfg api.AgentConfig, message string, approver *ui.CLIApprover, state *approvalState) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cleanup := monitorCancellation(ctx, cancel)
	defer cleanup()

	sub := eng.Subscribe(conversationID)
	defer sub.Close()

	done := make(chan error, 1)
	go func() {
		done <- eng.Send(ctx, conversationID, agentCfg, api.UserMessagePayload{Text: message}, false)
	}()

	if err := consumeEventStream(ctx, sub, eng, approver, state); err != nil {
		return err
	}
	return <-done
}

func consumeEventStream(ctx context.Context, sub api.Subscription, eng *turnengine.Engine, approver *ui.CLIApprover, state *approvalState) error {
	stopSpinner, spinnerDone := ui.StartLoading("Thinking...")
	defer func() {
		select {
		case <-stopSpinner:
		default:
			close(stopSpinner)
		}
		<-spinnerDone
	}()

	prefixPrinted := false
	firstEvent := true
	toolArgBuffer := ""

	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if firstEvent {
			close(stopSpinner)
			<-spinnerDone
			firstEvent = false
		}

		switch ev.Type {
		case api.EventAssistantChunk:
			if ev.AssistantChunk == nil {
				continue
			}
			if ev.AssistantChunk.ToolArgDelta != nil {
				toolArgBuffer += ev.AssistantChunk.ToolArgDelta.ArgsDelta
				display := toolArgBuffer
				if len(display) > 80 {
					display = "..." + display[len(display)-77:]
				}
				ui.Printf("\r\033[90m   %s\033[0m\033[K", display)
				continue
			}
			if ev.AssistantChunk.Text == "" {
				continue
			}
			if toolArgBuffer != "" {
				ui.Print("\r\033[K")
				toolArgBuffer = ""
			}
			if !prefixPrinted {
				ui.Print("\n🤖 Agent: ")
				prefixPrinted = true
			}
			ui.Print(ev.AssistantChunk.Text)

		case api.EventToolCalls:
			if ev.ToolCalls == nil {
				continue
			}
			if toolArgBuffer != "" {
				ui.Print("\r\033[K")
				toolArgBuffer = ""
			}
			for _, call := range ev.ToolCalls.Calls {
				ui.Printf("\n\n🔧 tool_call %s\n", call.Function.Name)
			}

		case api.EventToolResult:
			if ev.ToolResult == nil {
				continue
			}
			res := ev.ToolResult.Result
			ui.Printf("\n🔧 tool_result %s (%s)\n", res.Name, res.Status)
			if res.Status == api.ExecError {
				ui.Printf("Error: %s\n", res.Result)
			} else if res.Result != "" {
				ui.Print(res.Result)
				if !strings.HasSuffix(res.Result, "\n") {
					ui.Print("\n")
				}
			}

		case api.EventToolApprovalRequired:
			if ev.ToolApprovalRequired == nil {
				return fmt.Errorf("tool_approval_required event missing payload")
			}
			var decision api.ApprovalDecision
			if state != nil && state.autoApproveAll {
				decision = api.ApprovalDecision{ApprovalID: ev.ToolApprovalRequired.ApprovalID, Kind: api.ApprovalApprove}
			} else {
				d, err := approver.RequestApproval(ctx, *ev.ToolApprovalRequired)
				if err != nil {
					return err
				}
				decision = d
				if state != nil && decision.Kind == api.ApprovalApproveAll {
					state.autoApproveAll = true
				}
			}
			if err := eng.Respond(ctx, decision); err != nil {
				return err
			}

		case api.EventError:
			if ev.Error != nil {
				return fmt.Errorf("%s: %s", ev.Error.Reason, ev.Error.Message)
			}
			return fmt.Errorf("unknown error")

		case api.EventDone:
			if prefixPrinted {
				ui.Print("\n")
			}
			return nil
		}
	}
}
