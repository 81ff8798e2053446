// Package contextbuilder assembles the provider-facing message list for one
// turn: system prompt, prior history, and the new user content.
package contextbuilder

import (
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// Builder is the stdlib implementation of api.ContextBuilder, grounded on
// the teacher's buildRequestMessages (system prompt + history + new turn).
type Builder struct{}

// Build returns history with a leading synthetic system message (when
// systemPrompt is non-empty) and a trailing user message built from
// newParts. It does not mutate history.
func (Builder) Build(history []api.Message, systemPrompt string, newParts []api.ContentPart) []api.Message {
	out := make([]api.Message, 0, len(history)+2)

	if systemPrompt != "" {
		out = append(out, api.Message{
			Role:      api.Role("system"),
			Content:   api.TextContent(systemPrompt),
			Timestamp: time.Now().UTC(),
		})
	}

	out = append(out, history...)

	if len(newParts) > 0 {
		out = append(out, api.Message{
			Role:      api.RoleUser,
			Content:   api.PartsContent(newParts),
			Timestamp: time.Now().UTC(),
		})
	}

	return out
}
