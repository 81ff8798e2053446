package api

import "context"

// ApprovalMode determines when tool calls require a human decision.
type ApprovalMode string

const (
	// ModeSuggest requires approval for every tool call outside the
	// read-only and todo bypass sets (safest default).
	ModeSuggest ApprovalMode = "suggest"
	// ModeAuto requires approval only for high-risk operations.
	ModeAuto ApprovalMode = "auto"
	// ModeFullAuto skips approval entirely but still validates invocations.
	ModeFullAuto ApprovalMode = "full-auto"
)

// MemoryStore is the append-only per-conversation message log (M1): a
// key→ordered-message-list map keyed by conversation id (spec.md §4.1).
// Append must be atomic with respect to concurrent readers: no reader may
// observe a partially written message.
type MemoryStore interface {
	Append(ctx context.Context, conversationID string, msg Message) error
	History(ctx context.Context, conversationID string) ([]Message, error)
	// Replace atomically swaps the full message history, used by history
	// compression to splice in a summary message. Equivalent to Set.
	Replace(ctx context.Context, conversationID string, msgs []Message) error
	// Set overwrites conversationID's full message history, creating the
	// conversation if it doesn't exist yet (spec.md §4.1 `set`).
	Set(ctx context.Context, conversationID string, msgs []Message) error
	// Delete removes a conversation's history entirely (spec.md §4.1
	// `delete`). Deleting a conversation with no history is not an error.
	Delete(ctx context.Context, conversationID string) error
	// Keys lists every conversation id currently held by the store
	// (spec.md §4.1 `keys`). Order is unspecified.
	Keys(ctx context.Context) ([]string, error)
	// Clear removes every conversation's history (spec.md §4.1 `clear`).
	Clear(ctx context.Context) error
	// Snapshot exports the full durable state for a conversation
	// (spec.md §4.1 `export_snapshot`).
	Snapshot(ctx context.Context, conversationID string) (Snapshot, error)
	// ImportSnapshot restores a conversation's full state from a value
	// previously produced by Snapshot, for session migration between
	// stores (spec.md §4.1 `import_snapshot`).
	ImportSnapshot(ctx context.Context, snap Snapshot) error
}

// Snapshot is an exportable point-in-time view of one conversation's state.
type Snapshot struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// EventBus fans out turn events to any number of subscribers. Publish must
// not block indefinitely on a slow subscriber; subscriber errors never
// propagate back to the publisher.
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(conversationID string) (sub Subscription)
}

// Subscription is a handle returned by EventBus.Subscribe.
type Subscription interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// Tool is one callable capability in the Tool Runner's catalog.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() map[string]any
	Execute(ctx context.Context, params map[string]any) (ToolExecutionResult, error)
}

// Previewer is implemented by tools that can describe their effect before
// execution, for the Approval Gate's human-review payload.
type Previewer interface {
	Preview(ctx context.Context, params map[string]any) (Preview, error)
}

// ToolRegistry resolves tool names to their definitions for the Turn Engine
// and the LLM Port's tool-schema advertisement.
type ToolRegistry interface {
	Get(name string) (Tool, bool)
	All() []Tool
	Names() []string
}

// ToolRunner executes a batch of invocations with bounded concurrency,
// preserving input order in the returned results (M3, spec.md §4.3/§5).
type ToolRunner interface {
	Execute(ctx context.Context, invocations []ToolInvocation) []ToolExecutionResult
}

// LLMPort is the provider-agnostic boundary to a language model (M4,
// spec.md §4.4/§6).
type LLMPort interface {
	Generate(ctx context.Context, req LLMRequest) (LLMResponse, error)
	Stream(ctx context.Context, req LLMRequest) (LLMStream, error)
}

// ToolChoice constrains whether/which tool the model must call.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
)

// ToolChoice is the resolved tool_choice directive sent to the model.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"` // set when a specific tool is forced
}

// LLMToolSchema is the model-facing declaration of a callable tool.
type LLMToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// LLMRequest is the provider-agnostic request shape for Generate/Stream.
type LLMRequest struct {
	Model        string          `json:"model"`
	SystemPrompt string          `json:"system_prompt"`
	Messages     []Message       `json:"messages"`
	Tools        []LLMToolSchema `json:"tools,omitempty"`
	ToolChoice   ToolChoice      `json:"tool_choice"`
	Temperature  float64         `json:"temperature"`
	TopP         float64         `json:"top_p"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
}

// LLMResponse is the non-streaming Generate result.
type LLMResponse struct {
	Message Message   `json:"message"`
	Usage   UsageData `json:"usage"`
	Reason  string    `json:"reason"` // "stop" | "tool_calls" | "length"
}

// LLMChunk is one increment from a Stream call.
type LLMChunk struct {
	TextDelta    string
	ToolArgDelta *ToolArgDelta
	ToolCalls    []ToolCall // completed tool calls; adapters may deliver them on chunks before the terminal one
	Usage        *UsageData
	Reason       string // set only on the terminal chunk
}

// LLMStream is a cancelable sequence of LLMChunks.
type LLMStream interface {
	Recv(ctx context.Context) (LLMChunk, bool, error) // ok=false at stream end
	Close() error
}

// ApprovalGate synchronizes pending tool-approval requests with the human
// decisions that resolve them (T1).
type ApprovalGate interface {
	Request(ctx context.Context, approvalID string, req ToolApprovalRequiredPayload) error
	Await(ctx context.Context, approvalID string) (ApprovalDecision, error)
	Resolve(ctx context.Context, decision ApprovalDecision) error
}

// Clock abstracts wall-clock time for deterministic tests (L1).
type Clock interface {
	Now() (t TimeValue)
}

// TimeValue avoids importing "time" into every consumer of Clock; callers
// that need time.Time convert via AsTime.
type TimeValue struct {
	UnixNano int64
}

// IDGenerator mints unique ids for messages, turns, and approvals (L1).
type IDGenerator interface {
	NewID() string
}

// CostCalculator estimates the USD cost of one completion (L2).
type CostCalculator interface {
	Estimate(model string, usage UsageData) CostEstimate
}

// Reminders decorates outgoing context with ambient operator notices (L3).
type Reminders interface {
	Decorate(text string) []string
}

// ContextBuilder assembles the provider-facing message list for one turn
// (L4).
type ContextBuilder interface {
	Build(history []Message, systemPrompt string, newParts []ContentPart) []Message
}

// Args is the canonical argument container for tools.
type Args = map[string]any

// Standard error codes surfaced by engine operations, closed set per
// spec.md §7.
const (
	ErrInvalidConversation = "invalid_conversation"
	ErrTurnInProgress      = "turn_in_progress"
	ErrNoPendingApproval   = "no_pending_approval"
	ErrApprovalMismatch    = "approval_mismatch"
	ErrToolNotFound        = "tool_not_found"
	ErrToolArgsInvalid     = "tool_args_invalid"
	ErrWorkspaceEscape     = "workspace_escape"
	ErrStoreError          = "store_error"
)
