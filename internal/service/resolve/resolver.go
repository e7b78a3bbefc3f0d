// Package resolve fetches side-panel context for detected entities. It is a
// best-effort enrichment layer: each entity is fetched at most once, fetches
// for different entities run in parallel with no ordering guarantee, and a
// failed fetch stays failed until the user asks for a refresh.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brightdoor/brokerchat/internal/model/entity"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

// ErrUnknownEntity reports a refresh or click for an entity the session has
// never seen.
var ErrUnknownEntity = errors.New("entity not present in session")

// Lookup is the context lookup capability, answered in production by the
// Postgres brokerage repository.
type Lookup interface {
	FetchContext(ctx context.Context, typ entity.Type, id string) (json.RawMessage, error)
}

// Resolver drives the per-entity context state machine in the workspace.
type Resolver struct {
	lookup  Lookup
	hub     *workspace.Hub
	group   singleflight.Group
	timeout time.Duration
}

// New creates a resolver. timeout bounds each individual fetch; zero means
// a 15s default.
func New(lookup Lookup, hub *workspace.Hub, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Resolver{lookup: lookup, hub: hub, timeout: timeout}
}

// EnsureContexts starts a fetch for every entity that has no context entry
// yet. It returns immediately; completions land in the workspace whenever
// they finish.
func (r *Resolver) EnsureContexts(sessionID string, entities []entity.Detected) {
	ws := r.hub.Get(sessionID)
	for _, d := range entities {
		if !ws.BeginLoading(d) {
			continue
		}
		go r.fetch(sessionID, d)
	}
}

// Refresh re-runs the fetch for one ready or failed entity. It reports
// whether a refetch was actually started.
func (r *Resolver) Refresh(sessionID, key string) (bool, error) {
	if _, _, err := entity.ParseKey(key); err != nil {
		return false, err
	}

	ws := r.hub.Get(sessionID)
	p, ok := ws.Context(key)
	if !ok {
		return false, ErrUnknownEntity
	}
	if !ws.Refresh(key) {
		// Already loading; the in-flight fetch will complete it.
		return false, nil
	}

	go r.fetch(sessionID, p.Entity)
	return true, nil
}

// fetch runs detached from any request context: navigating away must not
// cancel enrichment, late results merge as no-ops into closed workspaces.
func (r *Resolver) fetch(sessionID string, d entity.Detected) {
	key := d.Key()
	sfKey := sessionID + "/" + key

	data, err, _ := r.group.Do(sfKey, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		return r.lookup.FetchContext(ctx, d.Type, d.ID)
	})

	ws := r.hub.Get(sessionID)
	if err != nil {
		log.Printf("[context] fetch failed session=%s entity=%s: %v", sessionID, key, err)
		ws.SetFailed(key, err.Error())
		return
	}

	payload, _ := data.(json.RawMessage)
	ws.SetResolved(key, payload)
}
