// Package llm provides api.LLMPort adapters: a deterministic mock for
// tests, and OpenAI-compatible and Anthropic HTTP backends.
package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// MockLLM is a deterministic local LLMPort implementation for development
// and tests. It never calls tools.
type MockLLM struct{}

// NewMockLLM returns a MockLLM.
func NewMockLLM() *MockLLM { return &MockLLM{} }

func (m *MockLLM) mockText(req api.LLMRequest) string {
	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == api.RoleUser {
			lastUser = req.Messages[i].Content.AsPlainText()
			break
		}
	}

	var b strings.Builder
	b.WriteString("[mock]\n")
	fmt.Fprintf(&b, "messages=%d tools=%d\n", len(req.Messages), len(req.Tools))
	if lastUser != "" {
		b.WriteString("last_user=")
		b.WriteString(truncateMock(lastUser, 200))
		b.WriteString("\n")
	}
	b.WriteString("set a real LLM backend to use a live model.\n")
	return b.String()
}

func (m *MockLLM) Generate(_ context.Context, req api.LLMRequest) (api.LLMResponse, error) {
	text := m.mockText(req)
	return api.LLMResponse{
		Message: api.Message{Role: api.RoleAssistant, Content: api.TextContent(text)},
		Usage:   api.UsageData{InputTokens: int64(len(req.Messages)) * 10, OutputTokens: int64(len(text) / 4)},
		Reason:  "stop",
	}, nil
}

func (m *MockLLM) Stream(_ context.Context, req api.LLMRequest) (api.LLMStream, error) {
	return &mockStream{content: m.mockText(req)}, nil
}

type mockStream struct {
	content string
	once    sync.Once
	chunks  []api.LLMChunk
	closed  bool
}

func (s *mockStream) Recv(_ context.Context) (api.LLMChunk, bool, error) {
	if s.closed {
		return api.LLMChunk{}, false, nil
	}

	s.once.Do(func() {
		const step = 32
		for i := 0; i < len(s.content); i += step {
			end := i + step
			if end > len(s.content) {
				end = len(s.content)
			}
			s.chunks = append(s.chunks, api.LLMChunk{TextDelta: s.content[i:end]})
		}
		s.chunks = append(s.chunks, api.LLMChunk{Reason: "stop"})
	})

	if len(s.chunks) == 0 {
		s.closed = true
		return api.LLMChunk{}, false, nil
	}

	ch := s.chunks[0]
	s.chunks = s.chunks[1:]
	return ch, true, nil
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

func truncateMock(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ io.Closer = (*mockStream)(nil)
