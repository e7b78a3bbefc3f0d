// Package workspace holds the per-session view model behind the context
// panel: the accumulated entity set and the entity-keyed context cache.
// Updates flow in from the dispatcher, detector and resolver through
// reducer-style merge methods, and out to panel clients via subscriptions.
package workspace

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// Update event kinds pushed to panel subscribers.
const (
	UpdateEntities = "entities"
	UpdateContext  = "context"
)

// Update describes one change to the panel view model.
type Update struct {
	Kind      string            `json:"kind"`
	SessionID string            `json:"sessionId"`
	Entities  []entity.Detected `json:"entities,omitempty"`
	Context   *entity.Payload   `json:"context,omitempty"`
}

// Workspace is the mutable panel state for a single session. The entity set
// only grows within a session; context entries move through
// loading -> ready|failed and reset to loading only on explicit refresh.
type Workspace struct {
	mu        sync.RWMutex
	sessionID string
	entities  map[string]entity.Detected
	order     []string
	contexts  map[string]entity.Payload
	subs      map[chan Update]struct{}
	closed    bool
}

func newWorkspace(sessionID string) *Workspace {
	return &Workspace{
		sessionID: sessionID,
		entities:  make(map[string]entity.Detected),
		contexts:  make(map[string]entity.Payload),
		subs:      make(map[chan Update]struct{}),
	}
}

// MergeEntities folds detected entities into the accumulated set and returns
// the newly-seen subset, preserving input order. Duplicates (by type-scoped
// key) and entities of unknown type are dropped. Merging into a closed
// workspace is a no-op.
func (w *Workspace) MergeEntities(detected []entity.Detected) []entity.Detected {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}

	added := make([]entity.Detected, 0, len(detected))
	for _, d := range detected {
		if d.ID == "" || !d.Type.Known() {
			continue
		}
		d.Confidence = entity.ClampConfidence(d.Confidence)
		key := d.Key()
		if _, seen := w.entities[key]; seen {
			continue
		}
		w.entities[key] = d
		w.order = append(w.order, key)
		added = append(added, d)
	}

	var snapshot []entity.Detected
	if len(added) > 0 {
		snapshot = w.entitiesLocked()
	}
	w.mu.Unlock()

	if len(added) > 0 {
		w.publish(Update{Kind: UpdateEntities, SessionID: w.sessionID, Entities: snapshot})
	}
	return added
}

// Entities returns the accumulated set in first-seen order.
func (w *Workspace) Entities() []entity.Detected {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entitiesLocked()
}

func (w *Workspace) entitiesLocked() []entity.Detected {
	out := make([]entity.Detected, 0, len(w.order))
	for _, key := range w.order {
		out = append(out, w.entities[key])
	}
	return out
}

// Context returns the cached payload state for one entity key.
func (w *Workspace) Context(key string) (entity.Payload, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.contexts[key]
	return p, ok
}

// BeginLoading transitions an absent entry to loading and reports whether the
// caller should fetch. Entries already loading, ready or failed are left
// alone, which is what guarantees the at-most-once fetch rule.
func (w *Workspace) BeginLoading(d entity.Detected) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	key := d.Key()
	if _, exists := w.contexts[key]; exists {
		w.mu.Unlock()
		return false
	}
	p := entity.Payload{Entity: d, Status: entity.StatusLoading}
	w.contexts[key] = p
	w.mu.Unlock()

	w.publish(Update{Kind: UpdateContext, SessionID: w.sessionID, Context: &p})
	return true
}

// Refresh resets a ready or failed entry back to loading and reports whether
// a refetch should run. Absent or still-loading entries are not touched.
func (w *Workspace) Refresh(key string) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	p, ok := w.contexts[key]
	if !ok || p.Status == entity.StatusLoading {
		w.mu.Unlock()
		return false
	}
	p.Status = entity.StatusLoading
	p.Data = nil
	p.Error = ""
	w.contexts[key] = p
	w.mu.Unlock()

	w.publish(Update{Kind: UpdateContext, SessionID: w.sessionID, Context: &p})
	return true
}

// SetResolved stores a successful context payload.
func (w *Workspace) SetResolved(key string, data json.RawMessage) {
	w.setOutcome(key, entity.StatusReady, data, "")
}

// SetFailed records a fetch failure; the entry stays failed until refreshed.
func (w *Workspace) SetFailed(key string, errMsg string) {
	w.setOutcome(key, entity.StatusFailed, nil, errMsg)
}

func (w *Workspace) setOutcome(key, status string, data json.RawMessage, errMsg string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	p, ok := w.contexts[key]
	if !ok || p.Status != entity.StatusLoading {
		// Late completion after a refresh already superseded it.
		w.mu.Unlock()
		return
	}
	p.Status = status
	p.Data = data
	p.Error = errMsg
	p.FetchedAt = time.Now().UTC()
	w.contexts[key] = p
	w.mu.Unlock()

	w.publish(Update{Kind: UpdateContext, SessionID: w.sessionID, Context: &p})
}

// Contexts returns a snapshot of the whole context cache.
func (w *Workspace) Contexts() map[string]entity.Payload {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]entity.Payload, len(w.contexts))
	for k, v := range w.contexts {
		out[k] = v
	}
	return out
}

// Subscribe registers a panel client. The returned channel is buffered; slow
// consumers drop updates rather than block producers.
func (w *Workspace) Subscribe() chan Update {
	ch := make(chan Update, 32)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch
	}
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a panel client and closes its channel.
func (w *Workspace) Unsubscribe(ch chan Update) {
	w.mu.Lock()
	if _, ok := w.subs[ch]; ok {
		delete(w.subs, ch)
		close(ch)
	}
	w.mu.Unlock()
}

func (w *Workspace) publish(u Update) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for ch := range w.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (w *Workspace) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for ch := range w.subs {
		delete(w.subs, ch)
		close(ch)
	}
}

// Hub hands out the workspace for each session, creating it lazily.
type Hub struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewHub bootstraps an empty hub.
func NewHub() *Hub {
	return &Hub{workspaces: make(map[string]*Workspace)}
}

// Get returns the workspace for a session, creating it on first use.
func (h *Hub) Get(sessionID string) *Workspace {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws, ok := h.workspaces[sessionID]
	if !ok {
		ws = newWorkspace(sessionID)
		h.workspaces[sessionID] = ws
	}
	return ws
}

// Lookup returns the workspace for a session without creating one.
func (h *Hub) Lookup(sessionID string) (*Workspace, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws, ok := h.workspaces[sessionID]
	return ws, ok
}

// Close tears down a session's workspace; in-flight completions become no-ops.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	ws, ok := h.workspaces[sessionID]
	if ok {
		delete(h.workspaces, sessionID)
	}
	h.mu.Unlock()
	if ok {
		ws.close()
	}
}
