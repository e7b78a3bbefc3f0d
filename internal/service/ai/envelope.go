package ai

import (
	"encoding/json"
	"strings"

	"github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// envelope mirrors the structured reply shape requested in the system prompt.
type envelope struct {
	Text        string            `json:"text"`
	RichContent *chat.RichContent `json:"richContent"`
	Suggestions []string          `json:"suggestions"`
	Entities    []entity.Detected `json:"entities"`
}

// parseEnvelope interprets a model reply. Replies are either a JSON envelope
// (possibly inside a code fence, models do that despite instructions) or
// plain prose; prose becomes a text-only result.
func parseEnvelope(raw string) CompletionResult {
	candidate := strings.TrimSpace(stripCodeFence(raw))

	if strings.HasPrefix(candidate, "{") {
		var env envelope
		if err := json.Unmarshal([]byte(candidate), &env); err == nil && env.Text != "" {
			return CompletionResult{
				Text:        env.Text,
				RichContent: validRichContent(env.RichContent),
				Suggestions: env.Suggestions,
				Entities:    validEntities(env.Entities),
			}
		}
	}

	return CompletionResult{Text: strings.TrimSpace(raw)}
}

// stripCodeFence unwraps ```json ... ``` style fences.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

func validRichContent(rc *chat.RichContent) *chat.RichContent {
	if rc == nil {
		return nil
	}
	switch rc.Type {
	case chat.RichContentProperty, chat.RichContentDocument, chat.RichContentReport:
		return rc
	}
	return nil
}

func validEntities(in []entity.Detected) []entity.Detected {
	out := make([]entity.Detected, 0, len(in))
	for _, d := range in {
		if d.ID == "" || !d.Type.Known() {
			continue
		}
		d.Confidence = entity.ClampConfidence(d.Confidence)
		out = append(out, d)
	}
	return out
}
