// Package detect implements the entity-detection capability: given the text
// of an assistant reply, extract typed brokerage entities. Detection is
// best-effort enrichment; callers treat any failure as an empty result.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// extractionPrompt demands a bare JSON array back so parsing stays trivial.
const extractionPrompt = `You extract real-estate entities from assistant replies. Given a message,
return ONLY a JSON array of the entities it mentions:

[{"id": "...", "type": "property"|"client"|"location"|"document"|"company", "name": "...", "confidence": 0.0}]

Use stable lowercase-hyphen identifiers for locations (e.g. "dubai-marina").
Return [] when no entity is present. No prose, no code fences.`

// Detector extracts entities from message text.
type Detector interface {
	Detect(ctx context.Context, text, sessionID string) ([]entity.Detected, error)
}

// LLMDetector runs extraction through a prompt+model chain, typically over
// the chat model shared with the completion service.
type LLMDetector struct {
	extractor compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMDetector compiles the extraction chain.
func NewLLMDetector(ctx context.Context, chatModel model.ChatModel) (*LLMDetector, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(extractionPrompt),
		schema.UserMessage("{message}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction chain: %w", err)
	}

	return &LLMDetector{extractor: runnable}, nil
}

// Detect extracts zero or more entities from text.
func (d *LLMDetector) Detect(ctx context.Context, text, sessionID string) ([]entity.Detected, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	response, err := d.extractor.Invoke(ctx, map[string]any{"message": text})
	if err != nil {
		return nil, fmt.Errorf("failed to run extraction chain: %w", err)
	}

	entities, err := parseEntities(response.Content)
	if err != nil {
		return nil, err
	}

	log.Printf("[detect] session=%s entities=%d", sessionID, len(entities))
	return entities, nil
}

// parseEntities decodes the model's JSON array, tolerating code fences and
// dropping malformed or unknown-type entries.
func parseEntities(raw string) ([]entity.Detected, error) {
	candidate := strings.TrimSpace(raw)
	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimPrefix(candidate, "```")
		if idx := strings.Index(candidate, "\n"); idx >= 0 {
			candidate = candidate[idx+1:]
		}
		candidate = strings.TrimSuffix(strings.TrimSpace(candidate), "```")
		candidate = strings.TrimSpace(candidate)
	}

	if candidate == "" {
		return nil, nil
	}

	var decoded []entity.Detected
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		return nil, fmt.Errorf("malformed detection output: %w", err)
	}

	out := make([]entity.Detected, 0, len(decoded))
	for _, d := range decoded {
		if d.ID == "" || !d.Type.Known() {
			continue
		}
		d.Confidence = entity.ClampConfidence(d.Confidence)
		out = append(out, d)
	}
	return out, nil
}
