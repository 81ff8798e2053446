package turnengine

import (
	"fmt"
	"strings"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// buildUserMessage implements the user-message construction algorithm: it
// interleaves text and image attachments by locating each attachment's
// in-text token and appending unanchored attachments at the end. The
// display_text fallback is derived separately, by displayText. No teacher analog — the teacher only ever accepted
// plain strings.
func buildUserMessage(payload api.UserMessagePayload, reminders api.Reminders) api.MessageContent {
	enhanced := strings.Join(reminders.Decorate(payload.Text), "\n")

	anchored := make([]api.UserAttachment, 0, len(payload.Attachments))
	unanchored := make([]api.UserAttachment, 0, len(payload.Attachments))
	for _, a := range payload.Attachments {
		if a.Token != "" && strings.Contains(enhanced, a.Token) {
			anchored = append(anchored, a)
		} else {
			unanchored = append(unanchored, a)
		}
	}

	var parts []api.ContentPart
	remaining := enhanced
	for len(anchored) > 0 {
		// Find the earliest-occurring token among what's left.
		bestIdx := -1
		bestPos := len(remaining) + 1
		for i, a := range anchored {
			pos := strings.Index(remaining, a.Token)
			if pos >= 0 && pos < bestPos {
				bestPos = pos
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		a := anchored[bestIdx]
		anchored = append(anchored[:bestIdx], anchored[bestIdx+1:]...)

		before := stripTokens(remaining[:bestPos], payload.Attachments)
		if before != "" {
			parts = append(parts, api.ContentPart{Kind: api.PartText, Text: before})
		}
		img := a.Image
		parts = append(parts, api.ContentPart{Kind: api.PartImage, Image: &img})
		remaining = remaining[bestPos+len(a.Token):]
	}

	tail := stripTokens(remaining, payload.Attachments)
	if tail != "" {
		parts = append(parts, api.ContentPart{Kind: api.PartText, Text: tail})
	}

	for _, a := range unanchored {
		img := a.Image
		parts = append(parts, api.ContentPart{Kind: api.PartImage, Image: &img})
	}

	if len(parts) == 0 {
		return api.TextContent("")
	}
	return api.PartsContent(parts)
}

// stripTokens removes every attachment token from s, leaving plain prose.
func stripTokens(s string, attachments []api.UserAttachment) string {
	for _, a := range attachments {
		if a.Token != "" {
			s = strings.ReplaceAll(s, a.Token, "")
		}
	}
	return s
}

// displayText derives the UI-facing text for a UserMessagePayload: the
// caller-supplied override when present, else the raw text with each
// attachment token replaced by a bracketed placeholder.
func displayText(payload api.UserMessagePayload) string {
	if payload.DisplayText != "" {
		return payload.DisplayText
	}
	out := payload.Text
	for i, a := range payload.Attachments {
		if a.Token == "" {
			continue
		}
		out = strings.ReplaceAll(out, a.Token, imagePlaceholder(a.Image, i))
	}
	return out
}

func imagePlaceholder(img api.ImagePart, index int) string {
	switch {
	case img.Name != "":
		return fmt.Sprintf("[image:%s]", img.Name)
	case img.AltText != "":
		return fmt.Sprintf("[image:%s]", img.AltText)
	default:
		return fmt.Sprintf("[image:%d]", index)
	}
}
