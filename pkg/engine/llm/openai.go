package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/logger"
)

// OpenAILLM implements api.LLMPort against an OpenAI-compatible
// chat/completions endpoint (OpenAI itself, or any compatible gateway).
type OpenAILLM struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAILLMFromEnv builds a client from LLM_BASE_URL/LLM_API_KEY/LLM_MODEL,
// taking the key from OPENAI_API_KEY when LLM_API_KEY is unset.
func NewOpenAILLMFromEnv() (*OpenAILLM, error) {
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY or OPENAI_API_KEY environment variable is required")
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return NewOpenAILLM(baseURL, apiKey, model), nil
}

// NewOpenAILLM builds a client against an explicit endpoint.
func NewOpenAILLM(baseURL, apiKey, model string) *OpenAILLM {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAILLM{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 24 * time.Hour, // streaming responses can run long
		},
	}
}

func (c *OpenAILLM) Generate(ctx context.Context, req api.LLMRequest) (api.LLMResponse, error) {
	stream, err := c.Stream(ctx, req)
	if err != nil {
		return api.LLMResponse{}, err
	}
	defer stream.Close()

	var text strings.Builder
	var toolCalls []api.ToolCall
	var usage api.UsageData
	reason := "stop"

	for {
		chunk, ok, err := stream.Recv(ctx)
		if err != nil {
			return api.LLMResponse{}, err
		}
		if !ok {
			break
		}
		text.WriteString(chunk.TextDelta)
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

func (c *OpenAILLM) Stream(ctx context.Context, req api.LLMRequest) (api.LLMStream, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	payload := openAIChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.SystemPrompt, req.Messages),
		Stream:      true,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload.Tools = toOpenAITools(req.Tools)
		payload.ToolChoice = toOpenAIToolChoice(req.ToolChoice)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	logger.Info("llm.openai", "sending request", map[string]interface{}{
		"model":         model,
		"message_count": len(payload.Messages),
		"tool_count":    len(payload.Tools),
	})

	url := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		logger.Error("llm.openai", "API error", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   strings.TrimSpace(string(raw)),
		})
		return nil, fmt.Errorf("openai: API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return newOpenAIStream(resp.Body), nil
}

type openAIChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  any             `json:"tool_choice,omitempty"`
}

type openAITool struct {
	Type     string     `json:"type"`
	Function openAIFunc `json:"function"`
}

type openAIFunc struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type openAIChatMsg struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	Index    int            `json:"index"`
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openAIFuncCall `json:"function"`
}

type openAIFuncCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string           `json:"content,omitempty"`
			ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func toOpenAIToolChoice(tc api.ToolChoice) any {
	switch tc.Mode {
	case api.ToolChoiceNone:
		return "none"
	case api.ToolChoiceRequired:
		if tc.Name != "" {
			return map[string]any{"type": "function", "function": map[string]any{"name": tc.Name}}
		}
		return "required"
	default:
		return "auto"
	}
}

func toOpenAITools(tools []api.LLMToolSchema) []openAITool {
	out := make([]openAITool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openAITool{
			Type: "function",
			Function: openAIFunc{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func toOpenAIMessages(systemPrompt string, messages []api.Message) []openAIChatMsg {
	out := make([]openAIChatMsg, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openAIChatMsg{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		m := openAIChatMsg{
			Role:    string(msg.Role),
			Content: msg.Content.AsPlainText(),
		}
		if msg.Role == api.RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		if msg.Role == api.RoleAssistant && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openAIToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openAIFuncCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.ArgumentsJSON,
					},
				})
			}
		}
		out = append(out, m)
	}
	return out
}

// openAIStream implements api.LLMStream, buffering per-index tool-call
// argument deltas until finish_reason=="tool_calls" reassembles them.
type openAIStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	mu    sync.Mutex
	queue []api.LLMChunk
	done  bool

	toolBuilders map[int]*openAIToolCallBuilder
}

type openAIToolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

func newOpenAIStream(body io.ReadCloser) *openAIStream {
	return &openAIStream{
		body:         body,
		reader:       bufio.NewReader(body),
		toolBuilders: make(map[int]*openAIToolCallBuilder),
	}
}

func (s *openAIStream) Recv(ctx context.Context) (api.LLMChunk, bool, error) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		ch := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return ch, true, nil
	}
	if s.done {
		s.mu.Unlock()
		return api.LLMChunk{}, false, nil
	}
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return api.LLMChunk{}, false, ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			if err == io.EOF {
				return api.LLMChunk{}, false, nil
			}
			return api.LLMChunk{}, false, err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return api.LLMChunk{}, false, nil
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return api.LLMChunk{}, false, fmt.Errorf("openai stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		finish := chunk.Choices[0].FinishReason

		if len(delta.ToolCalls) > 0 {
			var emit *api.ToolArgDelta
			s.mu.Lock()
			for _, tc := range delta.ToolCalls {
				b := s.toolBuilders[tc.Index]
				if b == nil {
					b = &openAIToolCallBuilder{}
					s.toolBuilders[tc.Index] = b
				}
				if tc.ID != "" {
					b.id = tc.ID
				}
				if tc.Function.Name != "" {
					b.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					b.args.WriteString(tc.Function.Arguments)
					emit = &api.ToolArgDelta{
						Index:      tc.Index,
						ToolCallID: b.id,
						Name:       b.name,
						ArgsDelta:  tc.Function.Arguments,
					}
				}
			}
			s.mu.Unlock()
			if emit != nil {
				return api.LLMChunk{ToolArgDelta: emit}, true, nil
			}
			continue
		}

		if delta.Content != "" {
			return api.LLMChunk{TextDelta: delta.Content}, true, nil
		}

		if finish != "" {
			s.mu.Lock()
			if finish == "tool_calls" {
				maxIdx := -1
				for i := range s.toolBuilders {
					if i > maxIdx {
						maxIdx = i
					}
				}
				for i := 0; i <= maxIdx; i++ {
					b := s.toolBuilders[i]
					if b == nil || b.name == "" {
						continue
					}
					s.queue = append(s.queue, api.LLMChunk{
						ToolCalls: []api.ToolCall{{
							ID:   b.id,
							Kind: "function",
							Function: api.ToolCallFunction{
								Name:          b.name,
								ArgumentsJSON: b.args.String(),
							},
						}},
					})
				}
				s.toolBuilders = make(map[int]*openAIToolCallBuilder)
			}
			var usage *api.UsageData
			if chunk.Usage != nil {
				usage = &api.UsageData{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
			}
			s.queue = append(s.queue, api.LLMChunk{Reason: finish, Usage: usage})
			ch := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ch, true, nil
		}
	}
}

func (s *openAIStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}
