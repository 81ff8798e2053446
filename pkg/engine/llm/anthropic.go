package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/logger"
)

// AnthropicLLM implements api.LLMPort against the Anthropic Messages API.
type AnthropicLLM struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// AnthropicConfig configures an AnthropicLLM.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// NewAnthropicLLMFromEnv builds a client from ANTHROPIC_API_KEY/ANTHROPIC_MODEL.
func NewAnthropicLLMFromEnv() (*AnthropicLLM, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}
	return NewAnthropicLLM(AnthropicConfig{
		APIKey:       apiKey,
		DefaultModel: os.Getenv("ANTHROPIC_MODEL"),
	})
}

// NewAnthropicLLM builds a client from an explicit config.
func NewAnthropicLLM(cfg AnthropicConfig) (*AnthropicLLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: APIKey is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicLLM{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (c *AnthropicLLM) model(req api.LLMRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.defaultModel
}

func (c *AnthropicLLM) Generate(ctx context.Context, req api.LLMRequest) (api.LLMResponse, error) {
	stream, err := c.Stream(ctx, req)
	if err != nil {
		return api.LLMResponse{}, err
	}
	defer stream.Close()

	var text strings.Builder
	var toolCalls []api.ToolCall
	var usage api.UsageData
	reason := "stop"
	builders := map[string]*strings.Builder{}
	names := map[string]string{}

	for {
		chunk, ok, err := stream.Recv(ctx)
		if err != nil {
			return api.LLMResponse{}, err
		}
		if !ok {
			break
		}
		text.WriteString(chunk.TextDelta)
		if chunk.ToolArgDelta != nil {
			id := chunk.ToolArgDelta.ToolCallID
			if builders[id] == nil {
				builders[id] = &strings.Builder{}
				names[id] = chunk.ToolArgDelta.Name
			}
			builders[id].WriteString(chunk.ToolArgDelta.ArgsDelta)
		}
		if len(chunk.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.ToolCalls...)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Reason != "" {
			reason = chunk.Reason
		}
	}

	msg := api.Message{Role: api.RoleAssistant, ToolCalls: toolCalls}
	if text.Len() > 0 {
		msg.Content = api.TextContent(text.String())
	} else {
		msg.Content = api.NoContent()
	}
	return api.LLMResponse{Message: msg, Usage: usage, Reason: reason}, nil
}

func (c *AnthropicLLM) Stream(ctx context.Context, req api.LLMRequest) (api.LLMStream, error) {
	messages, err := convertMessagesToAnthropic(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model(req)),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsToAnthropic(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
		if req.ToolChoice.Mode == api.ToolChoiceRequired && req.ToolChoice.Name != "" {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice.Name},
			}
		}
	}

	var sseStream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		sseStream = c.client.Messages.NewStreaming(ctx, params)
		if sseStream.Err() == nil {
			break
		}
		err = sseStream.Err()
		if !isRetryableAnthropicError(err) || attempt == c.maxRetries {
			break
		}
		backoff := c.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		logger.Warn("llm.anthropic", "retrying after transient error", map[string]interface{}{
			"attempt": attempt, "backoff_ms": backoff.Milliseconds(), "error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil && sseStream.Err() != nil {
		return nil, fmt.Errorf("anthropic: max retries exceeded: %w", err)
	}

	return &anthropicStream{sse: sseStream}, nil
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func convertMessagesToAnthropic(messages []api.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if text := msg.Content.AsPlainText(); text != "" {
			content = append(content, anthropic.NewTextBlock(text))
		}

		if msg.Role == api.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content.AsPlainText(), false))
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if tc.Function.ArgumentsJSON != "" {
				if err := json.Unmarshal([]byte(tc.Function.ArgumentsJSON), &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Function.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}

		if msg.Role == api.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertToolsToAnthropic(tools []api.LLMToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		toolParam.OfTool.Description = anthropic.String(t.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// anthropicStream implements api.LLMStream over an Anthropic SSE stream,
// assembling tool_use input JSON across content_block_delta events and
// emitting the finished api.ToolCall on content_block_stop.
type anthropicStream struct {
	sse *ssestream.Stream[anthropic.MessageStreamEventUnion]

	queue []api.LLMChunk

	currentToolID   string
	currentToolName string
	currentToolArgs strings.Builder

	inputTokens  int64
	outputTokens int64
}

func (s *anthropicStream) Recv(ctx context.Context) (api.LLMChunk, bool, error) {
	if len(s.queue) > 0 {
		ch := s.queue[0]
		s.queue = s.queue[1:]
		return ch, true, nil
	}

	for s.sse.Next() {
		select {
		case <-ctx.Done():
			return api.LLMChunk{}, false, ctx.Err()
		default:
		}

		event := s.sse.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				s.inputTokens = ms.Message.Usage.InputTokens
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				s.currentToolID = tu.ID
				s.currentToolName = tu.Name
				s.currentToolArgs.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					return api.LLMChunk{TextDelta: delta.Text}, true, nil
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					s.currentToolArgs.WriteString(delta.PartialJSON)
					return api.LLMChunk{ToolArgDelta: &api.ToolArgDelta{
						ToolCallID: s.currentToolID,
						Name:       s.currentToolName,
						ArgsDelta:  delta.PartialJSON,
					}}, true, nil
				}
			}

		case "content_block_stop":
			if s.currentToolID != "" {
				chunk := api.LLMChunk{ToolCalls: []api.ToolCall{{
					ID:   s.currentToolID,
					Kind: "function",
					Function: api.ToolCallFunction{
						Name:          s.currentToolName,
						ArgumentsJSON: s.currentToolArgs.String(),
					},
				}}}
				s.currentToolID = ""
				s.currentToolName = ""
				return chunk, true, nil
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				s.outputTokens = md.Usage.OutputTokens
			}

		case "message_stop":
			return api.LLMChunk{
				Reason: "stop",
				Usage:  &api.UsageData{InputTokens: s.inputTokens, OutputTokens: s.outputTokens},
			}, true, nil

		case "error":
			return api.LLMChunk{}, false, fmt.Errorf("anthropic stream error")
		}
	}

	if err := s.sse.Err(); err != nil {
		return api.LLMChunk{}, false, err
	}
	return api.LLMChunk{}, false, nil
}

func (s *anthropicStream) Close() error {
	return s.sse.Close()
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection reset", "connection refused", "no such host", "rate limit"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
