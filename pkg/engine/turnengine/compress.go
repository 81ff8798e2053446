package turnengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/engine/clockid"
)

// CompressConfig bounds history compression. Grounded on the teacher's
// runtime.CompressConfig.
type CompressConfig struct {
	KeepTurns     int  // recent turns always kept uncompressed (default 1)
	MaxMessages   int  // hard cap on messages kept after compression (default 20)
	ForceCompress bool // compress even if below both thresholds
}

// DefaultCompressConfig returns the teacher's defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{KeepTurns: 1, MaxMessages: 20}
}

// CompressResult reports what a Compress call did.
type CompressResult struct {
	Compressed      bool
	MessagesRemoved int
	MessagesKept    int
	Summary         string
}

// Compress summarizes a conversation's older turns via an LLM call and
// splices the summary in as a single synthetic system message, bounded by
// cfg's keep-window. It is a distinct operation from Send — spec.md's turn
// invariants only constrain what Send appends, so compression never has to
// honor causal-ordering or final-saved-flag rules; it is free to rewrite
// history wholesale via Memory.Replace. Grounded on
// runtime/compress.go's CompressHistory, re-typed onto api.Message.
func (e *Engine) Compress(ctx context.Context, conversationID string, cfg CompressConfig) (CompressResult, error) {
	if cfg.KeepTurns <= 0 {
		cfg.KeepTurns = 1
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 20
	}

	messages, err := e.cfg.Memory.History(ctx, conversationID)
	if err != nil {
		return CompressResult{}, fmt.Errorf("turnengine: compress: load history: %w", err)
	}

	turns := countTurns(messages)
	needsCompression := cfg.ForceCompress || len(messages) > cfg.MaxMessages || turns > cfg.KeepTurns
	if !needsCompression {
		return CompressResult{Compressed: false, MessagesKept: len(messages)}, nil
	}

	splitIdx := findTurnSplitIndex(messages, cfg.KeepTurns)
	if splitIdx == 0 || (len(messages)-splitIdx) > cfg.MaxMessages {
		splitIdx = findSafeMessageSplit(messages, cfg.MaxMessages)
	}
	if splitIdx <= 0 {
		return CompressResult{Compressed: false, MessagesKept: len(messages)}, nil
	}

	oldMessages := messages[:splitIdx]
	newMessages := messages[splitIdx:]

	var existingSummary string
	if len(oldMessages) > 0 && oldMessages[0].Name == summaryMessageName {
		existingSummary = oldMessages[0].Content.AsPlainText()
		oldMessages = oldMessages[1:]
	}

	summary, err := e.generateSummary(ctx, existingSummary, oldMessages)
	if err != nil {
		return CompressResult{}, fmt.Errorf("turnengine: compress: generate summary: %w", err)
	}

	summaryMsg := api.Message{
		ID:        e.cfg.IDs.NewID(),
		Role:      api.Role("system"),
		Name:      summaryMessageName,
		Content:   api.TextContent(summary),
		Timestamp: clockid.AsTime(e.cfg.Clock.Now()),
	}
	rewritten := append([]api.Message{summaryMsg}, newMessages...)
	if err := e.cfg.Memory.Replace(ctx, conversationID, rewritten); err != nil {
		return CompressResult{}, fmt.Errorf("turnengine: compress: replace history: %w", err)
	}

	return CompressResult{
		Compressed:      true,
		MessagesRemoved: len(oldMessages),
		MessagesKept:    len(newMessages),
		Summary:         summary,
	}, nil
}

// summaryMessageName tags the synthetic summary message so a subsequent
// Compress call can find and fold it into the new summary.
const summaryMessageName = "history_summary"

func countTurns(messages []api.Message) int {
	count := 0
	for _, m := range messages {
		if m.Role == api.RoleUser {
			count++
		}
	}
	return count
}

// findTurnSplitIndex returns the index of the first message of the Nth
// most recent turn, never splitting inside a tool-call/tool-result
// sequence. Returns 0 (keep everything) when there aren't enough turns.
func findTurnSplitIndex(messages []api.Message, keepTurns int) int {
	var validSplits []int
	pending := make(map[string]bool)

	for i, m := range messages {
		if m.Role == api.RoleAssistant && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		}
		if m.Role == api.RoleTool && m.ToolCallID != "" {
			delete(pending, m.ToolCallID)
		}
		if m.Role == api.RoleUser && len(pending) == 0 {
			validSplits = append(validSplits, i)
		}
	}

	if len(validSplits) <= keepTurns {
		return 0
	}
	return validSplits[len(validSplits)-keepTurns]
}

// findSafeMessageSplit returns the split point closest to keeping the last
// maxMessages without breaking a tool-call sequence or starting the kept
// slice mid-sequence.
func findSafeMessageSplit(messages []api.Message, maxMessages int) int {
	if len(messages) <= maxMessages {
		return 0
	}
	target := len(messages) - maxMessages

	var validSplits []int
	pending := make(map[string]bool)
	for i, m := range messages {
		if m.Role == api.RoleAssistant && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		}
		if m.Role == api.RoleTool && m.ToolCallID != "" {
			delete(pending, m.ToolCallID)
		}
		if m.Role == api.RoleUser && len(pending) == 0 {
			validSplits = append(validSplits, i)
		}
	}

	for _, split := range validSplits {
		if split >= target {
			return split
		}
	}
	for i := len(validSplits) - 1; i >= 0; i-- {
		if validSplits[i] > 0 {
			return validSplits[i]
		}
	}
	return 0
}

func (e *Engine) generateSummary(ctx context.Context, existingSummary string, messages []api.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString("Create a concise summary of this conversation for context continuation.\n\n")
	if existingSummary != "" {
		sb.WriteString("## Previous summary\n")
		sb.WriteString(existingSummary)
		sb.WriteString("\n\n## New activity to fold in\n")
	} else {
		sb.WriteString("## Conversation to summarize\n")
	}

	for _, m := range messages {
		switch m.Role {
		case api.RoleUser:
			fmt.Fprintf(&sb, "User: %s\n\n", truncateSummaryInput(m.Content.AsPlainText(), 300))
		case api.RoleAssistant:
			if text := m.Content.AsPlainText(); text != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n\n", truncateSummaryInput(text, 300))
			}
			if len(m.ToolCalls) > 0 {
				names := make([]string, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					names = append(names, tc.Function.Name)
				}
				fmt.Fprintf(&sb, "[used tools: %s]\n", strings.Join(names, ", "))
			}
		case api.RoleTool:
			if text := m.Content.AsPlainText(); text != "" && len(text) < 100 {
				fmt.Fprintf(&sb, "Tool result: %s\n", text)
			}
		}
	}
	sb.WriteString("\n---\nProvide the summary now. Be concise but complete.")

	resp, err := e.cfg.LLM.Generate(ctx, api.LLMRequest{
		Messages:  []api.Message{{Role: api.RoleUser, Content: api.TextContent(sb.String())}},
		MaxTokens: 800,
	})
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Message.Content.AsPlainText())
	if summary == "" {
		return existingSummary, nil
	}
	return summary, nil
}

func truncateSummaryInput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
