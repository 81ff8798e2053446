// Package api defines the stable, provider-agnostic data model and port
// interfaces for the turn engine. Everything outside this package is a leaf
// that plugs into the engine through these contracts.
package api

import "time"

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates MessageContent's payload.
type ContentKind string

const (
	ContentNone  ContentKind = "none"  // assistant message that only carries tool_calls
	ContentText  ContentKind = "text"  // plain text content
	ContentParts ContentKind = "parts" // interleaved text/image parts
)

// ContentPartKind discriminates ContentPart's payload.
type ContentPartKind string

const (
	PartText  ContentPartKind = "text"
	PartImage ContentPartKind = "image"
)

// ContentPart is a single typed piece of message content.
type ContentPart struct {
	Kind ContentPartKind `json:"kind"`

	// Set when Kind == PartText.
	Text string `json:"text,omitempty"`

	// Set when Kind == PartImage.
	Image *ImagePart `json:"image,omitempty"`
}

// ImagePart carries inline or remote image data.
type ImagePart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data,omitempty"` // base64, mutually exclusive with URL
	URL      string `json:"url,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
	Name     string `json:"name,omitempty"`
}

// MessageContent is a tagged union: exactly one of the payload fields is
// meaningful, selected by Kind. Never add a second payload field without
// updating Kind's meaning.
type MessageContent struct {
	Kind  ContentKind   `json:"kind"`
	Text  string        `json:"text,omitempty"`
	Parts []ContentPart `json:"parts,omitempty"`
}

// TextContent builds a plain-text MessageContent.
func TextContent(text string) MessageContent {
	return MessageContent{Kind: ContentText, Text: text}
}

// PartsContent builds a multi-part MessageContent, collapsing to a single
// text part when that is all it contains (per spec.md §4.6a step 4).
func PartsContent(parts []ContentPart) MessageContent {
	if len(parts) == 1 && parts[0].Kind == PartText {
		return TextContent(parts[0].Text)
	}
	return MessageContent{Kind: ContentParts, Parts: parts}
}

// NoContent marks an assistant message that carries only tool calls.
func NoContent() MessageContent {
	return MessageContent{Kind: ContentNone}
}

// IsEmpty reports whether the content carries no text and no parts.
func (c MessageContent) IsEmpty() bool {
	switch c.Kind {
	case ContentText:
		return c.Text == ""
	case ContentParts:
		return len(c.Parts) == 0
	default:
		return true
	}
}

// AsPlainText collapses content to a single string for adapters that have no
// concept of typed parts (only the text parts are concatenated).
func (c MessageContent) AsPlainText() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentParts:
		var out string
		for _, p := range c.Parts {
			if p.Kind == PartText {
				out += p.Text
			}
		}
		return out
	default:
		return ""
	}
}

// ToolCall is the provider-facing call shape carried on assistant messages.
// Arguments are preserved bit-exact as an unparsed JSON string so they can be
// folded back into provider payloads without re-serialization drift.
type ToolCall struct {
	ID       string           `json:"id"`
	Kind     string           `json:"type"` // always "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function payload of a ToolCall.
type ToolCallFunction struct {
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments"`
}

// ToolInvocation is the orchestrator's parsed form of a ToolCall, ready for
// the Tool Runner.
type ToolInvocation struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Parameters      map[string]any `json:"parameters"`
	EditInstruction string         `json:"edit_instruction,omitempty"`
}

// ExecStatus is the closed outcome set of a tool execution.
type ExecStatus string

const (
	ExecSuccess ExecStatus = "success"
	ExecError   ExecStatus = "error"
)

// ResultType discriminates ToolExecutionResult.Result's shape.
type ResultType string

const (
	ResultText ResultType = "text"
	ResultJSON ResultType = "json"
)

// ErrorReason is the closed taxonomy of tool-execution error reasons
// (spec.md §7).
type ErrorReason string

const (
	ReasonDenied           ErrorReason = "denied"
	ReasonEdited           ErrorReason = "edited"
	ReasonAborted          ErrorReason = "aborted"
	ReasonTimeout          ErrorReason = "timeout"
	ReasonPermissionDenied ErrorReason = "permission_denied"
	ReasonNotFound         ErrorReason = "not_found"
	ReasonToolNotFound     ErrorReason = "tool_not_found"
	ReasonNetworkError     ErrorReason = "network_error"
	ReasonRateLimit        ErrorReason = "rate_limit"
	ReasonInvalidInput     ErrorReason = "invalid_input"
)

// ToolExecutionResult is the outcome of running one ToolInvocation.
type ToolExecutionResult struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     ExecStatus      `json:"status"`
	Type       ResultType      `json:"type"`
	Result     string          `json:"result"` // structured results are JSON-encoded here when Type==ResultJSON
	Metadata   *ResultMetadata `json:"metadata,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// ResultMetadata carries the closed error-reason tag and any structured data.
type ResultMetadata struct {
	ErrorReason ErrorReason    `json:"error_reason,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Message is one entry in a conversation's append-only log.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   MessageContent `json:"content"`
	Timestamp time.Time      `json:"timestamp"`

	// Assistant-only.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool-only: links back to the assistant call this result answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// UserAttachment is an image supplied alongside user text, optionally
// anchored to an in-text placeholder token.
type UserAttachment struct {
	Image ImagePart `json:"image"`
	Token string    `json:"token,omitempty"`
}

// UserMessagePayload is the input to user-message construction
// (spec.md §4.6a). Text is required; DisplayText and Attachments are
// optional.
type UserMessagePayload struct {
	Text        string           `json:"text"`
	DisplayText string           `json:"display_text,omitempty"`
	Attachments []UserAttachment `json:"attachments,omitempty"`
}

// AgentConfig configures one agent's behavior for the Turn Engine.
type AgentConfig struct {
	ID                  string   `yaml:"id" json:"id"`
	SystemPrompt        string   `yaml:"system_prompt" json:"system_prompt"`
	Model               string   `yaml:"model" json:"model"`
	Temperature         float64  `yaml:"temperature" json:"temperature"`
	TopP                float64  `yaml:"top_p" json:"top_p"`
	MaxTokens           int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	EnabledTools        []string `yaml:"enabled_tools" json:"enabled_tools"`
	MaxToolConcurrency  int      `yaml:"max_tool_concurrency" json:"max_tool_concurrency"`
	RequireToolApproval bool     `yaml:"require_tool_approval" json:"require_tool_approval"`
	ReasoningEffort     string   `yaml:"reasoning_effort,omitempty" json:"reasoning_effort,omitempty"`
}

// WithDefaults returns a copy of cfg with a non-positive MaxToolConcurrency
// set to 3. Every other field, RequireToolApproval included, is returned
// as given.
func (cfg AgentConfig) WithDefaults() AgentConfig {
	out := cfg
	if out.MaxToolConcurrency <= 0 {
		out.MaxToolConcurrency = 3
	}
	return out
}

// UsageData is token accounting returned by an LLM Port call.
type UsageData struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int64 `json:"cache_creation_tokens,omitempty"`
}

// CostEstimate is the Cost Calculator's output for a single completion.
type CostEstimate struct {
	Model     string  `json:"model"`
	TotalUSD  float64 `json:"total_usd"`
	InputUSD  float64 `json:"input_usd"`
	OutputUSD float64 `json:"output_usd"`
	CacheUSD  float64 `json:"cache_usd,omitempty"`
	Unpriced  bool    `json:"unpriced,omitempty"` // true if the model had no pricing entry
}
