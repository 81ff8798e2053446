// Package approval implements the Approval Gate (T1): a synchronization
// primitive mapping approval_id to a pending decision slot, plus the
// bypass-set policy that decides which invocations skip human review at
// all. Grounded on the teacher's PendingApproval persistence and
// policy.DefaultPolicy.NeedApproval risk logic.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// readOnlyBypass never requires approval: it cannot mutate state.
var readOnlyBypass = map[string]bool{
	"file_read":  true,
	"dir_ls":     true,
	"web_search": true,
	"web_fetch":  true,
}

// todoBypass never requires approval: it only affects the agent's own plan
// bookkeeping.
var todoBypass = map[string]bool{
	"todo_write": true,
	"todo_read":  true,
}

// Bypasses reports whether toolName is in a bypass set that never requires
// human approval, regardless of ApprovalMode.
func Bypasses(toolName string) bool {
	return readOnlyBypass[toolName] || todoBypass[toolName]
}

// highRiskTools always require approval in ModeAuto.
var highRiskTools = map[string]bool{
	"write_file":        true,
	"edit_file":         true,
	"shell":             true,
	"dispatch_subagent": true,
}

// NeedApproval decides, per spec.md §4.5, whether invocation requires a
// human decision under mode.
func NeedApproval(mode api.ApprovalMode, toolName string) bool {
	if Bypasses(toolName) {
		return false
	}
	switch mode {
	case api.ModeSuggest:
		return true
	case api.ModeFullAuto:
		return false
	case api.ModeAuto:
		fallthrough
	default:
		return highRiskTools[toolName]
	}
}

// pendingSlot holds the wait channel for one outstanding approval request.
type pendingSlot struct {
	req    api.ToolApprovalRequiredPayload
	result chan api.ApprovalDecision
}

// Gate is the in-process implementation of api.ApprovalGate.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*pendingSlot
}

// NewGate returns an empty Gate.
func NewGate() *Gate {
	return &Gate{pending: make(map[string]*pendingSlot)}
}

// ErrAlreadyPending is returned by Request when approval_id collides with
// an outstanding request.
var ErrAlreadyPending = fmt.Errorf("approval: request id already pending")

// ErrNoPendingApproval is returned by Await/Resolve when approval_id has no
// outstanding request.
var ErrNoPendingApproval = fmt.Errorf("approval: %s", api.ErrNoPendingApproval)

// ErrApprovalMismatch is returned by Resolve when the decision's kind is
// not one of the closed set.
var ErrApprovalMismatch = fmt.Errorf("approval: %s", api.ErrApprovalMismatch)

// Request registers a new pending approval.
func (g *Gate) Request(_ context.Context, approvalID string, req api.ToolApprovalRequiredPayload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.pending[approvalID]; exists {
		return ErrAlreadyPending
	}
	g.pending[approvalID] = &pendingSlot{req: req, result: make(chan api.ApprovalDecision, 1)}
	return nil
}

// Await blocks until approvalID is resolved or ctx is canceled.
func (g *Gate) Await(ctx context.Context, approvalID string) (api.ApprovalDecision, error) {
	g.mu.Lock()
	slot, ok := g.pending[approvalID]
	g.mu.Unlock()
	if !ok {
		return api.ApprovalDecision{}, ErrNoPendingApproval
	}

	select {
	case <-ctx.Done():
		return api.ApprovalDecision{}, ctx.Err()
	case d := <-slot.result:
		g.mu.Lock()
		delete(g.pending, approvalID)
		g.mu.Unlock()
		return d, nil
	}
}

// Resolve delivers a human decision to the waiting Await call.
func (g *Gate) Resolve(_ context.Context, decision api.ApprovalDecision) error {
	switch decision.Kind {
	case api.ApprovalApprove, api.ApprovalApproveAll, api.ApprovalEdit, api.ApprovalDeny:
	default:
		return ErrApprovalMismatch
	}

	g.mu.Lock()
	slot, ok := g.pending[decision.ApprovalID]
	g.mu.Unlock()
	if !ok {
		return ErrNoPendingApproval
	}

	select {
	case slot.result <- decision:
		return nil
	default:
		return fmt.Errorf("approval: %s already resolved", decision.ApprovalID)
	}
}
