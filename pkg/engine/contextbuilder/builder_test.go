package contextbuilder

import (
	"testing"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

func TestBuildPrependsSystemAndAppendsUser(t *testing.T) {
	b := Builder{}
	history := []api.Message{{Role: api.RoleUser, Content: api.TextContent("hi")}}
	out := b.Build(history, "be helpful", []api.ContentPart{{Kind: api.PartText, Text: "what's next"}})

	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[0].Content.Text != "be helpful" {
		t.Fatalf("expected leading system prompt, got %+v", out[0])
	}
	if out[2].Role != api.RoleUser || out[2].Content.Text != "what's next" {
		t.Fatalf("expected trailing user message, got %+v", out[2])
	}
}

func TestBuildNoSystemNoNewParts(t *testing.T) {
	b := Builder{}
	history := []api.Message{{Role: api.RoleUser, Content: api.TextContent("hi")}}
	out := b.Build(history, "", nil)
	if len(out) != 1 {
		t.Fatalf("expected history passed through unchanged, got %d messages", len(out))
	}
}
