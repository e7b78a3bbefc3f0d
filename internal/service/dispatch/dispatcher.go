// Package dispatch orchestrates one chat turn: validate, complete, append,
// then kick off entity detection and context resolution as fire-and-forget
// enrichment that can never fail the chat itself.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/model/entity"
	"github.com/brightdoor/brokerchat/internal/service/ai"
	"github.com/brightdoor/brokerchat/internal/service/detect"
	"github.com/brightdoor/brokerchat/internal/service/resolve"
	"github.com/brightdoor/brokerchat/internal/service/session"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

var (
	// ErrEmptyMessage rejects blank user input before anything is appended.
	ErrEmptyMessage = errors.New("message text is required")
)

// Dispatcher wires the session store, the completion capability and the
// enrichment pipeline together.
type Dispatcher struct {
	store         session.Store
	completer     ai.Completer
	detector      detect.Detector
	hub           *workspace.Hub
	resolver      *resolve.Resolver
	detectTimeout time.Duration
}

// New creates a dispatcher. detector may be nil, which disables detection
// but leaves chat fully usable.
func New(store session.Store, completer ai.Completer, detector detect.Detector, hub *workspace.Hub, resolver *resolve.Resolver, detectTimeout time.Duration) *Dispatcher {
	if detectTimeout <= 0 {
		detectTimeout = 20 * time.Second
	}
	return &Dispatcher{
		store:         store,
		completer:     completer,
		detector:      detector,
		hub:           hub,
		resolver:      resolver,
		detectTimeout: detectTimeout,
	}
}

// Dispatch runs one chat turn and returns the stored AI message. On any
// error nothing is appended; the caller surfaces it and the user may
// resubmit.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, userText, attachment string) (chat.Message, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	if _, err := d.store.GetSession(ctx, sessionID); err != nil {
		return chat.Message{}, err
	}

	history, err := d.store.History(ctx, sessionID)
	if err != nil {
		return chat.Message{}, err
	}

	result, err := d.completer.Complete(ctx, ai.CompletionRequest{
		SessionID:  sessionID,
		UserText:   text,
		Attachment: attachment,
		History:    history,
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("assistant completion failed: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		// A blank reply cannot be stored; fail the turn before any append
		// so the user can simply resubmit.
		return chat.Message{}, fmt.Errorf("assistant completion failed: empty reply")
	}

	if _, err := d.store.AppendMessage(ctx, chat.Message{
		SessionID:  sessionID,
		Role:       chat.RoleUser,
		Content:    text,
		Attachment: attachment,
	}); err != nil {
		return chat.Message{}, fmt.Errorf("append user message: %w", err)
	}

	aiMsg, err := d.store.AppendMessage(ctx, chat.Message{
		SessionID:   sessionID,
		Role:        chat.RoleAI,
		Content:     result.Text,
		Entities:    result.Entities,
		RichContent: result.RichContent,
		Suggestions: result.Suggestions,
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("append assistant message: %w", err)
	}

	// Structured extras the model already named are merged right away;
	// free-text detection runs detached from this request.
	d.mergeAndResolve(sessionID, inlineEntities(result))
	d.spawnDetection(sessionID, aiMsg.Content)

	return chat.Normalize(aiMsg), nil
}

// LoadHistory returns the normalized transcript and replays entities stored
// on historical messages into the workspace, triggering context resolution
// under the usual dedup rule.
func (d *Dispatcher) LoadHistory(ctx context.Context, sessionID string) ([]chat.Message, error) {
	history, err := d.store.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var embedded []entity.Detected
	for _, m := range history {
		embedded = append(embedded, m.Entities...)
		if rc := m.RichContent; rc != nil {
			if e, ok := entityFromRichContent(rc); ok {
				embedded = append(embedded, e)
			}
		}
	}
	d.mergeAndResolve(sessionID, embedded)

	return history, nil
}

// spawnDetection runs the detector on the assistant reply without blocking
// or failing the dispatch. Panics and errors are contained here.
func (d *Dispatcher) spawnDetection(sessionID, text string) {
	if d.detector == nil {
		return
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[detect] panic recovered session=%s: %v\n%s", sessionID, rec, debug.Stack())
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.detectTimeout)
		defer cancel()

		entities, err := d.detector.Detect(ctx, text, sessionID)
		if err != nil {
			log.Printf("[detect] detection failed session=%s: %v", sessionID, err)
			return
		}
		d.mergeAndResolve(sessionID, entities)
	}()
}

func (d *Dispatcher) mergeAndResolve(sessionID string, entities []entity.Detected) {
	if len(entities) == 0 {
		return
	}
	added := d.hub.Get(sessionID).MergeEntities(entities)
	if len(added) == 0 {
		return
	}
	d.resolver.EnsureContexts(sessionID, added)
}

// inlineEntities collects entities the completion itself carried: the
// explicit entity list plus a reference derived from typed rich content.
func inlineEntities(result ai.CompletionResult) []entity.Detected {
	entities := append([]entity.Detected(nil), result.Entities...)
	if result.RichContent != nil {
		if e, ok := entityFromRichContent(result.RichContent); ok {
			entities = append(entities, e)
		}
	}
	return entities
}

// entityFromRichContent derives an entity reference from a property or
// document card so the panel loads context for it even when the detector
// misses it.
func entityFromRichContent(rc *chat.RichContent) (entity.Detected, bool) {
	var typ entity.Type
	switch rc.Type {
	case chat.RichContentProperty:
		typ = entity.TypeProperty
	case chat.RichContentDocument:
		typ = entity.TypeDocument
	default:
		return entity.Detected{}, false
	}

	var ref struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(rc.Data, &ref); err != nil || ref.ID == "" {
		return entity.Detected{}, false
	}

	name := ref.Name
	if name == "" {
		name = ref.Title
	}
	return entity.Detected{ID: ref.ID, Type: typ, Name: name, Confidence: 1}, true
}
