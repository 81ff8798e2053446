package api

import "time"

// EventType identifies the kind of event on the turn event stream
// (spec.md §4.2). This set is closed — consumers may switch exhaustively.
type EventType string

const (
	EventMessageStarted        EventType = "message_started"
	EventToolCalls              EventType = "tool_calls"
	EventToolApprovalRequired   EventType = "tool_approval_required"
	EventToolApprovalResponse   EventType = "tool_approval_response"
	EventToolResult             EventType = "tool_result"
	EventAssistantChunk         EventType = "assistant_chunk"
	EventAssistantMessage       EventType = "assistant_message"
	EventStreamFinish           EventType = "stream_finish"
	EventMemoryAppended         EventType = "memory_appended"
	EventDone                   EventType = "done"
	EventError                  EventType = "error"
	EventSubAgentStarted        EventType = "sub_agent_started"
	EventSubAgentToolCall       EventType = "sub_agent_tool_call"
	EventSubAgentToolResult     EventType = "sub_agent_tool_result"
	EventSubAgentCompleted      EventType = "sub_agent_completed"
	EventMCPStderr              EventType = "mcp_stderr"
)

// Event is the unified turn-event envelope. Exactly one payload field is
// populated, selected by Type — a strict union, not a grab-bag struct.
type Event struct {
	ConversationID string    `json:"conversation_id"`
	TurnID         string    `json:"turn_id"`
	Seq            int64     `json:"seq"` // monotonically increasing within a turn
	Type           EventType `json:"type"`
	Ts             time.Time `json:"ts"`

	MessageStarted      *MessageStartedPayload      `json:"message_started,omitempty"`
	ToolCalls            *ToolCallsPayload           `json:"tool_calls,omitempty"`
	ToolApprovalRequired *ToolApprovalRequiredPayload `json:"tool_approval_required,omitempty"`
	ToolApprovalResponse *ToolApprovalResponsePayload `json:"tool_approval_response,omitempty"`
	ToolResult           *ToolResultPayload           `json:"tool_result,omitempty"`
	AssistantChunk       *AssistantChunkPayload       `json:"assistant_chunk,omitempty"`
	AssistantMessage     *AssistantMessagePayload     `json:"assistant_message,omitempty"`
	StreamFinish         *StreamFinishPayload         `json:"stream_finish,omitempty"`
	MemoryAppended       *MemoryAppendedPayload       `json:"memory_appended,omitempty"`
	Done                 *DonePayload                 `json:"done,omitempty"`
	Error                *ErrorPayload                `json:"error,omitempty"`
	SubAgent             *SubAgentPayload             `json:"sub_agent,omitempty"`
	MCPStderr            *MCPStderrPayload            `json:"mcp_stderr,omitempty"`
}

// MessageStartedPayload marks the beginning of a new turn's processing.
type MessageStartedPayload struct {
	UserMessageID string `json:"user_message_id"`

	// DisplayText is the UI-facing rendering of the user's message
	// (spec.md §4.6a step 5): the caller-supplied override when present,
	// else the raw text with each attachment token replaced by a
	// bracketed `[image:<name|alt|index>]` placeholder.
	DisplayText string `json:"display_text"`
}

// ToolCallsPayload carries the full batch of tool calls an assistant turn
// produced, in call order.
type ToolCallsPayload struct {
	Calls []ToolCall `json:"calls"`
}

// ToolApprovalRequiredPayload requests a human decision for one invocation.
type ToolApprovalRequiredPayload struct {
	ApprovalID string         `json:"approval_id"`
	Invocation ToolInvocation `json:"invocation"`
	Preview    *Preview       `json:"preview,omitempty"`
}

// ApprovalDecisionKind is the closed set of human decisions on a pending
// approval (spec.md §4.5).
type ApprovalDecisionKind string

const (
	ApprovalApprove    ApprovalDecisionKind = "approve"
	ApprovalApproveAll ApprovalDecisionKind = "approve_all"
	ApprovalEdit       ApprovalDecisionKind = "edit"
	ApprovalDeny       ApprovalDecisionKind = "deny"
)

// ApprovalDecision is the human response fed back to the Approval Gate.
type ApprovalDecision struct {
	ApprovalID      string               `json:"approval_id"`
	Kind            ApprovalDecisionKind `json:"kind"`
	ApprovedSubset  []string             `json:"approved_subset,omitempty"`  // tool_call ids, for Kind==approve
	EditedArgs      map[string]any       `json:"edited_args,omitempty"`      // for Kind==edit
	EditInstruction string               `json:"edit_instruction,omitempty"` // for Kind==edit
}

// ToolApprovalResponsePayload echoes a resolved approval decision onto the
// event stream for observability.
type ToolApprovalResponsePayload struct {
	ApprovalID string           `json:"approval_id"`
	Decision   ApprovalDecision `json:"decision"`
}

// Preview describes the effect of a pending tool call for a human reviewer.
type PreviewKind string

const (
	PreviewDiff    PreviewKind = "diff"
	PreviewCommand PreviewKind = "command"
	PreviewFiles   PreviewKind = "files"
	PreviewText    PreviewKind = "text"
)

type Preview struct {
	Kind     PreviewKind `json:"kind"`
	Summary  string      `json:"summary"`
	Content  string      `json:"content,omitempty"`
	Affected []string    `json:"affected,omitempty"`
	RiskHint string      `json:"risk_hint,omitempty"`
}

// ToolResultPayload carries one completed tool execution.
type ToolResultPayload struct {
	Result ToolExecutionResult `json:"result"`
}

// AssistantChunkPayload is a single streamed increment of assistant output.
type AssistantChunkPayload struct {
	Text   string `json:"text,omitempty"`
	ToolArgDelta *ToolArgDelta `json:"tool_arg_delta,omitempty"`
}

// ToolArgDelta is a streamed increment of a tool call's argument JSON.
type ToolArgDelta struct {
	Index     int    `json:"index"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	ArgsDelta string `json:"args_delta"`
}

// AssistantMessagePayload carries a finished assistant message.
type AssistantMessagePayload struct {
	Message Message `json:"message"`
}

// StreamFinishPayload marks the end of one LLM Port stream call.
type StreamFinishPayload struct {
	Reason string        `json:"reason"` // "stop" | "tool_calls" | "length" | "canceled"
	Usage  *UsageData    `json:"usage,omitempty"`
	Cost   *CostEstimate `json:"cost,omitempty"`
}

// MemoryAppendedPayload is emitted after a durable append to the Memory
// Store, letting subscribers observe persistence without racing reads.
type MemoryAppendedPayload struct {
	Message Message `json:"message"`
}

// DonePayload marks terminal turn completion.
type DonePayload struct {
	Reason string `json:"reason,omitempty"` // "completed" | "denied" | "canceled" | "error"
}

// ErrorPayload contains error information for a terminal or recoverable
// failure.
type ErrorPayload struct {
	Reason  ErrorReason `json:"reason"`
	Message string      `json:"message"`
}

// SubAgentPayload carries sub-agent lifecycle data for the
// sub_agent_started/tool_call/tool_result/completed event kinds.
type SubAgentPayload struct {
	ChildConversationID string               `json:"child_conversation_id"`
	ToolCall             *ToolCall            `json:"tool_call,omitempty"`
	ToolResult           *ToolExecutionResult `json:"tool_result,omitempty"`
	FinalMessage         *Message             `json:"final_message,omitempty"`
}

// MCPStderrPayload passes through stderr lines from an MCP-backed tool
// process. Reserved per spec.md §4.2; no MCP tool ships in this repo.
type MCPStderrPayload struct {
	ToolName string `json:"tool_name"`
	Line     string `json:"line"`
}
