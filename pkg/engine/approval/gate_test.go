package approval

import (
	"context"
	"testing"
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

func TestBypassSets(t *testing.T) {
	for _, name := range []string{"file_read", "dir_ls", "web_search", "web_fetch", "todo_write", "todo_read"} {
		if !Bypasses(name) {
			t.Errorf("expected %q to bypass approval", name)
		}
	}
	if Bypasses("shell") {
		t.Errorf("shell must not bypass approval")
	}
}

func TestNeedApprovalModes(t *testing.T) {
	if !NeedApproval(api.ModeSuggest, "file_write") {
		t.Errorf("suggest mode requires approval for everything not bypassed")
	}
	if NeedApproval(api.ModeSuggest, "file_read") {
		t.Errorf("bypassed tools never require approval, even in suggest mode")
	}
	if NeedApproval(api.ModeFullAuto, "shell") {
		t.Errorf("full-auto mode never requires approval")
	}
	if !NeedApproval(api.ModeAuto, "shell") {
		t.Errorf("auto mode requires approval for high-risk tools")
	}
	if NeedApproval(api.ModeAuto, "glob") {
		t.Errorf("auto mode should not require approval for low-risk tools")
	}
}

func TestGateRequestAwaitResolve(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	if err := g.Request(ctx, "a1", api.ToolApprovalRequiredPayload{ApprovalID: "a1"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := g.Request(ctx, "a1", api.ToolApprovalRequiredPayload{}); err != ErrAlreadyPending {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := g.Resolve(ctx, api.ApprovalDecision{ApprovalID: "a1", Kind: api.ApprovalApprove}); err != nil {
			t.Errorf("resolve: %v", err)
		}
	}()

	decision, err := g.Await(ctx, "a1")
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if decision.Kind != api.ApprovalApprove {
		t.Fatalf("unexpected decision kind: %v", decision.Kind)
	}

	if _, err := g.Await(ctx, "a1"); err != ErrNoPendingApproval {
		t.Fatalf("expected ErrNoPendingApproval after resolution, got %v", err)
	}
}

func TestGateResolveUnknownID(t *testing.T) {
	g := NewGate()
	err := g.Resolve(context.Background(), api.ApprovalDecision{ApprovalID: "missing", Kind: api.ApprovalDeny})
	if err != ErrNoPendingApproval {
		t.Fatalf("expected ErrNoPendingApproval, got %v", err)
	}
}

func TestGateResolveInvalidKind(t *testing.T) {
	g := NewGate()
	g.Request(context.Background(), "a1", api.ToolApprovalRequiredPayload{})
	err := g.Resolve(context.Background(), api.ApprovalDecision{ApprovalID: "a1", Kind: "bogus"})
	if err != ErrApprovalMismatch {
		t.Fatalf("expected ErrApprovalMismatch, got %v", err)
	}
}
