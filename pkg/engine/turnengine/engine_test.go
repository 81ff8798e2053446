package turnengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/engine/approval"
	"github.com/agentsea/turnengine/pkg/engine/clockid"
	"github.com/agentsea/turnengine/pkg/engine/contextbuilder"
	"github.com/agentsea/turnengine/pkg/engine/cost"
	"github.com/agentsea/turnengine/pkg/engine/eventbus"
	"github.com/agentsea/turnengine/pkg/engine/memory"
	"github.com/agentsea/turnengine/pkg/engine/reminders"
	"github.com/agentsea/turnengine/pkg/engine/tools"
)

// fakeResponse is one scripted LLM turn: either final text or tool calls.
type fakeResponse struct {
	text      string
	toolCalls []api.ToolCall
}

// scriptedLLM returns its responses in order, one per Stream call, and
// fails the test-visible call if more calls are made than scripted —
// catching an unwanted extra LLM round (e.g. after a denial).
type scriptedLLM struct {
	responses []fakeResponse
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, req api.LLMRequest) (api.LLMResponse, error) {
	return api.LLMResponse{}, fmt.Errorf("scriptedLLM: Generate not used by the turn engine")
}

func (s *scriptedLLM) Stream(ctx context.Context, req api.LLMRequest) (api.LLMStream, error) {
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("scriptedLLM: unexpected call %d, only %d scripted", s.calls+1, len(s.responses))
	}
	r := s.responses[s.calls]
	s.calls++
	return &fakeStream{resp: r}, nil
}

type fakeStream struct {
	resp fakeResponse
	sent bool
}

func (s *fakeStream) Recv(ctx context.Context) (api.LLMChunk, bool, error) {
	if s.sent {
		return api.LLMChunk{}, false, nil
	}
	s.sent = true
	reason := "stop"
	if len(s.resp.toolCalls) > 0 {
		reason = "tool_calls"
	}
	return api.LLMChunk{
		TextDelta: s.resp.text,
		ToolCalls: s.resp.toolCalls,
		Reason:    reason,
		Usage:     &api.UsageData{InputTokens: 1, OutputTokens: 1},
	}, true, nil
}

func (s *fakeStream) Close() error { return nil }

// cancelingLLM streams one chunk, then blocks until the caller's context is
// canceled, to exercise mid-stream abort (S5).
type cancelingLLM struct{}

func (cancelingLLM) Generate(ctx context.Context, req api.LLMRequest) (api.LLMResponse, error) {
	return api.LLMResponse{}, fmt.Errorf("cancelingLLM: Generate not used")
}

func (cancelingLLM) Stream(ctx context.Context, req api.LLMRequest) (api.LLMStream, error) {
	return &cancelStream{}, nil
}

type cancelStream struct{ sent bool }

func (s *cancelStream) Recv(ctx context.Context) (api.LLMChunk, bool, error) {
	if !s.sent {
		s.sent = true
		return api.LLMChunk{TextDelta: "Partial"}, true, nil
	}
	<-ctx.Done()
	return api.LLMChunk{}, false, ctx.Err()
}

func (s *cancelStream) Close() error { return nil }

// fakeTool is a hand-written api.Tool stub; the teacher never pulls in a
// mocking framework and neither do these tests.
type fakeTool struct {
	name    string
	execute func(ctx context.Context, params map[string]any) (api.ToolExecutionResult, error)
}

func (t *fakeTool) Name() string                     { return t.name }
func (t *fakeTool) Description() string              { return "test tool " + t.name }
func (t *fakeTool) ParametersSchema() map[string]any { return map[string]any{} }
func (t *fakeTool) Execute(ctx context.Context, params map[string]any) (api.ToolExecutionResult, error) {
	return t.execute(ctx, params)
}

func fileNewTool() *fakeTool {
	return &fakeTool{name: "file_new", execute: func(ctx context.Context, params map[string]any) (api.ToolExecutionResult, error) {
		return api.ToolExecutionResult{Status: api.ExecSuccess, Type: api.ResultText, Result: "created"}, nil
	}}
}

func fileReadTool() *fakeTool {
	return &fakeTool{name: "file_read", execute: func(ctx context.Context, params map[string]any) (api.ToolExecutionResult, error) {
		return api.ToolExecutionResult{Status: api.ExecSuccess, Type: api.ResultText, Result: "file contents"}, nil
	}}
}

func newTestEngine(llm api.LLMPort, registry api.ToolRegistry) (*Engine, api.MemoryStore, api.EventBus) {
	mem := memory.NewInMemoryStore()
	bus := eventbus.New(nil)
	runner := tools.NewRunner(registry, 3)
	gate := approval.NewGate()
	clock := &clockid.FixedClock{Current: time.Unix(1700000000, 0).UTC(), Step: time.Second}
	ids := &clockid.SequentialGenerator{Prefix: "id"}

	eng := New(Config{
		Memory:     mem,
		Events:     bus,
		Tools:      registry,
		ToolRunner: runner,
		LLM:        llm,
		Approval:   gate,
		Clock:      clock,
		IDs:        ids,
		Cost:       cost.Calculator{},
		Reminders:  reminders.Decorator{},
		Context:    contextbuilder.Builder{},
		Mode:       api.ModeSuggest,
	})
	return eng, mem, bus
}

func sendAsync(eng *Engine, ctx context.Context, convID string, cfg api.AgentConfig, payload api.UserMessagePayload) <-chan error {
	done := make(chan error, 1)
	go func() { done <- eng.Send(ctx, convID, cfg, payload, false) }()
	return done
}

func recvUntil(t *testing.T, sub api.Subscription, want api.EventType) api.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		ev, err := sub.Recv(ctx)
		require.NoError(t, err)
		if ev.Type == want {
			return ev
		}
	}
}

// S1 — Plain reply.
func TestSend_PlainReply(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{{text: "hello"}}}
	eng, mem, bus := newTestEngine(llm, tools.NewRegistry())

	sub := bus.Subscribe("conv1")
	defer sub.Close()

	err := eng.Send(context.Background(), "conv1", api.AgentConfig{Model: "mock"}, api.UserMessagePayload{Text: "hi"}, false)
	require.NoError(t, err)

	history, err := mem.History(context.Background(), "conv1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, api.RoleUser, history[0].Role)
	require.Equal(t, "hi", history[0].Content.AsPlainText())
	require.Equal(t, api.RoleAssistant, history[1].Role)
	require.Equal(t, "hello", history[1].Content.AsPlainText())

	ev := recvUntil(t, sub, api.EventAssistantMessage)
	require.Equal(t, "hello", ev.AssistantMessage.Message.Content.AsPlainText())
}

// S2 — Single approved tool.
func TestSend_ApprovedTool(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{
		{toolCalls: []api.ToolCall{{ID: "c1", Kind: "function", Function: api.ToolCallFunction{Name: "file_new", ArgumentsJSON: `{"file_path":"x.txt","content":"hi"}`}}}},
		{text: "done"},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(fileNewTool())
	eng, mem, bus := newTestEngine(llm, registry)

	cfg := api.AgentConfig{Model: "mock", EnabledTools: []string{"file_new"}, RequireToolApproval: true}
	sub := bus.Subscribe("conv2")
	defer sub.Close()

	done := sendAsync(eng, context.Background(), "conv2", cfg, api.UserMessagePayload{Text: "make a file"})

	req := recvUntil(t, sub, api.EventToolApprovalRequired)
	require.Equal(t, "file_new", req.ToolApprovalRequired.Invocation.Name)

	require.NoError(t, eng.Respond(context.Background(), api.ApprovalDecision{
		ApprovalID: req.ToolApprovalRequired.ApprovalID,
		Kind:       api.ApprovalApproveAll,
	}))

	require.NoError(t, <-done)

	history, err := mem.History(context.Background(), "conv2")
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, api.RoleUser, history[0].Role)
	require.Equal(t, api.RoleAssistant, history[1].Role)
	require.Len(t, history[1].ToolCalls, 1)
	require.Equal(t, api.RoleTool, history[2].Role)
	require.Equal(t, "c1", history[2].ToolCallID)
	require.Equal(t, "created", history[2].Content.AsPlainText())
	require.Equal(t, api.RoleAssistant, history[3].Role)
	require.Equal(t, "done", history[3].Content.AsPlainText())
}

// S3 — Denial.
func TestSend_Denial(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{
		{toolCalls: []api.ToolCall{{ID: "c1", Kind: "function", Function: api.ToolCallFunction{Name: "file_new", ArgumentsJSON: `{"file_path":"x.txt","content":"hi"}`}}}},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(fileNewTool())
	eng, mem, bus := newTestEngine(llm, registry)

	cfg := api.AgentConfig{Model: "mock", EnabledTools: []string{"file_new"}, RequireToolApproval: true}
	sub := bus.Subscribe("conv3")
	defer sub.Close()

	done := sendAsync(eng, context.Background(), "conv3", cfg, api.UserMessagePayload{Text: "make a file"})

	req := recvUntil(t, sub, api.EventToolApprovalRequired)
	require.NoError(t, eng.Respond(context.Background(), api.ApprovalDecision{
		ApprovalID: req.ToolApprovalRequired.ApprovalID,
		Kind:       api.ApprovalDeny,
	}))

	// A second LLM call would fail scriptedLLM outright, so a nil error here
	// also proves the engine never re-called the model after denial.
	require.NoError(t, <-done)

	history, err := mem.History(context.Background(), "conv3")
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, api.RoleTool, history[2].Role)
	require.Equal(t, "Tool execution denied by user", history[2].Content.AsPlainText())
	require.NotNil(t, history[2].Content)
	tool := history[2]
	require.Equal(t, "c1", tool.ToolCallID)
	require.Equal(t, api.RoleAssistant, history[3].Role)
	require.Contains(t, history[3].Content.AsPlainText(), "Tool execution was not approved")
}

// S4 — Bypass + approval mix.
func TestSend_BypassAndApprovalMix(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{
		{toolCalls: []api.ToolCall{
			{ID: "r1", Kind: "function", Function: api.ToolCallFunction{Name: "file_read", ArgumentsJSON: `{}`}},
			{ID: "n1", Kind: "function", Function: api.ToolCallFunction{Name: "file_new", ArgumentsJSON: `{}`}},
		}},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(fileReadTool())
	registry.MustRegister(fileNewTool())
	eng, mem, bus := newTestEngine(llm, registry)

	cfg := api.AgentConfig{Model: "mock", EnabledTools: []string{"file_read", "file_new"}, RequireToolApproval: true}
	sub := bus.Subscribe("conv4")
	defer sub.Close()

	done := sendAsync(eng, context.Background(), "conv4", cfg, api.UserMessagePayload{Text: "go"})

	req := recvUntil(t, sub, api.EventToolApprovalRequired)
	require.Equal(t, "file_new", req.ToolApprovalRequired.Invocation.Name)
	require.NoError(t, eng.Respond(context.Background(), api.ApprovalDecision{
		ApprovalID: req.ToolApprovalRequired.ApprovalID,
		Kind:       api.ApprovalDeny,
	}))
	require.NoError(t, <-done)

	history, err := mem.History(context.Background(), "conv4")
	require.NoError(t, err)
	require.Len(t, history, 5) // user, assistant(tool_calls), tool(r1), tool(n1), assistant(denial)

	var readResult, newResult api.Message
	for _, m := range history {
		if m.ToolCallID == "r1" {
			readResult = m
		}
		if m.ToolCallID == "n1" {
			newResult = m
		}
	}
	require.Equal(t, "file contents", readResult.Content.AsPlainText())
	require.Equal(t, "Tool execution denied by user", newResult.Content.AsPlainText())
	require.Equal(t, api.RoleAssistant, history[len(history)-1].Role)
	require.Contains(t, history[len(history)-1].Content.AsPlainText(), "Tool execution was not approved")
}

// S5 — Cancellation during streaming.
func TestSend_CancelDuringStreaming(t *testing.T) {
	eng, mem, _ := newTestEngine(cancelingLLM{}, tools.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	done := sendAsync(eng, ctx, "conv5", api.AgentConfig{Model: "mock"}, api.UserMessagePayload{Text: "hi"})

	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)

	history, histErr := mem.History(context.Background(), "conv5")
	require.NoError(t, histErr)
	require.Len(t, history, 1)
	require.Equal(t, api.RoleUser, history[0].Role)
}

// S6 — Edit instruction.
func TestSend_EditInstruction(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{
		{toolCalls: []api.ToolCall{{ID: "c1", Kind: "function", Function: api.ToolCallFunction{Name: "file_new", ArgumentsJSON: `{"file_path":"x.txt"}`}}}},
		{text: "ok"},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(fileNewTool())
	eng, mem, bus := newTestEngine(llm, registry)

	cfg := api.AgentConfig{Model: "mock", EnabledTools: []string{"file_new"}, RequireToolApproval: true}
	sub := bus.Subscribe("conv6")
	defer sub.Close()

	done := sendAsync(eng, context.Background(), "conv6", cfg, api.UserMessagePayload{Text: "make a file"})

	req := recvUntil(t, sub, api.EventToolApprovalRequired)
	require.NoError(t, eng.Respond(context.Background(), api.ApprovalDecision{
		ApprovalID:      req.ToolApprovalRequired.ApprovalID,
		Kind:            api.ApprovalEdit,
		EditInstruction: "use /tmp/x.txt",
	}))
	require.NoError(t, <-done)

	history, err := mem.History(context.Background(), "conv6")
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, "use /tmp/x.txt", history[2].Content.AsPlainText())
	require.Equal(t, "ok", history[3].Content.AsPlainText())
}

// Invariant 2: no two persisted messages in a conversation share an id.
func TestSend_UniqueMessageIDs(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{{text: "hello"}}}
	eng, mem, _ := newTestEngine(llm, tools.NewRegistry())

	require.NoError(t, eng.Send(context.Background(), "conv7", api.AgentConfig{Model: "mock"}, api.UserMessagePayload{Text: "hi"}, false))

	history, err := mem.History(context.Background(), "conv7")
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, m := range history {
		require.False(t, seen[m.ID], "duplicate message id %s", m.ID)
		seen[m.ID] = true
	}
}

// TestSend_TurnInProgress exercises the single-active-turn-per-conversation
// guard: a second Send on the same conversation while the first is still
// blocked on approval must fail fast rather than interleave.
func TestSend_TurnInProgress(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{
		{toolCalls: []api.ToolCall{{ID: "c1", Kind: "function", Function: api.ToolCallFunction{Name: "file_new", ArgumentsJSON: `{}`}}}},
		{text: "done"},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(fileNewTool())
	eng, _, bus := newTestEngine(llm, registry)

	cfg := api.AgentConfig{Model: "mock", EnabledTools: []string{"file_new"}, RequireToolApproval: true}
	sub := bus.Subscribe("conv8")
	defer sub.Close()

	done := sendAsync(eng, context.Background(), "conv8", cfg, api.UserMessagePayload{Text: "go"})
	req := recvUntil(t, sub, api.EventToolApprovalRequired)

	err := eng.Send(context.Background(), "conv8", cfg, api.UserMessagePayload{Text: "again"}, false)
	require.ErrorIs(t, err, ErrTurnInProgress)

	require.NoError(t, eng.Respond(context.Background(), api.ApprovalDecision{
		ApprovalID: req.ToolApprovalRequired.ApprovalID,
		Kind:       api.ApprovalApproveAll,
	}))
	require.NoError(t, <-done)
}

// Invariant 3: an assistant message never has neither content nor tool
// calls. A provider reply with empty text and no tool calls must surface
// as an error rather than be persisted.
func TestSend_EmptyReplyNoToolCalls(t *testing.T) {
	llm := &scriptedLLM{responses: []fakeResponse{{text: ""}}}
	eng, mem, _ := newTestEngine(llm, tools.NewRegistry())

	err := eng.Send(context.Background(), "conv9", api.AgentConfig{Model: "mock"}, api.UserMessagePayload{Text: "hi"}, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty reply")

	history, histErr := mem.History(context.Background(), "conv9")
	require.NoError(t, histErr)
	require.Len(t, history, 1)
	require.Equal(t, api.RoleUser, history[0].Role)
}
