package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brightdoor/brokerchat/internal/model/entity"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

// gatedLookup blocks each fetch until its per-key gate is released, so tests
// control completion order.
type gatedLookup struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls map[string]int
	fail  map[string]error
}

func newGatedLookup() *gatedLookup {
	return &gatedLookup{
		gates: make(map[string]chan struct{}),
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (l *gatedLookup) gate(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[id]
	if !ok {
		g = make(chan struct{})
		l.gates[id] = g
	}
	return g
}

func (l *gatedLookup) release(id string) { close(l.gate(id)) }

func (l *gatedLookup) callCount(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[id]
}

func (l *gatedLookup) FetchContext(ctx context.Context, typ entity.Type, id string) (json.RawMessage, error) {
	l.mu.Lock()
	l.calls[id]++
	failErr := l.fail[id]
	l.mu.Unlock()

	select {
	case <-l.gate(id):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if failErr != nil {
		return nil, failErr
	}
	return json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)), nil
}

func prop(id string) entity.Detected {
	return entity.Detected{ID: id, Type: entity.TypeProperty, Name: "Listing " + id, Confidence: 0.9}
}

func waitForStatus(t *testing.T, ws *workspace.Workspace, key, status string) entity.Payload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := ws.Context(key); ok && p.Status == status {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	p, _ := ws.Context(key)
	t.Fatalf("entity %s never reached %s, last state %+v", key, status, p)
	return entity.Payload{}
}

func TestOutOfOrderCompletion(t *testing.T) {
	lookup := newGatedLookup()
	hub := workspace.NewHub()
	r := New(lookup, hub, time.Second)

	ws := hub.Get("s1")
	r.EnsureContexts("s1", []entity.Detected{prop("p1"), prop("p2")})

	// p2 completes before p1; both must end up populated.
	lookup.release("p2")
	p2 := waitForStatus(t, ws, "property:p2", entity.StatusReady)
	if string(p2.Data) != `{"id":"p2"}` {
		t.Fatalf("unexpected p2 payload: %s", p2.Data)
	}

	if p1, ok := ws.Context("property:p1"); !ok || p1.Status != entity.StatusLoading {
		t.Fatalf("p1 should still be loading, got %+v", p1)
	}

	lookup.release("p1")
	waitForStatus(t, ws, "property:p1", entity.StatusReady)
}

func TestFailedEntityNotRefetchedSilently(t *testing.T) {
	lookup := newGatedLookup()
	lookup.fail["p1"] = errors.New("lookup exploded")
	hub := workspace.NewHub()
	r := New(lookup, hub, time.Second)

	ws := hub.Get("s1")
	r.EnsureContexts("s1", []entity.Detected{prop("p1")})
	lookup.release("p1")
	waitForStatus(t, ws, "property:p1", entity.StatusFailed)

	// Ensuring the same entity again must not trigger another fetch.
	r.EnsureContexts("s1", []entity.Detected{prop("p1")})
	time.Sleep(20 * time.Millisecond)
	if got := lookup.callCount("p1"); got != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", got)
	}
}

func TestRefreshRefetchesFailedEntity(t *testing.T) {
	lookup := newGatedLookup()
	lookup.fail["p1"] = errors.New("first try fails")
	hub := workspace.NewHub()
	r := New(lookup, hub, time.Second)

	ws := hub.Get("s1")
	r.EnsureContexts("s1", []entity.Detected{prop("p1")})
	lookup.release("p1")
	waitForStatus(t, ws, "property:p1", entity.StatusFailed)

	// Clear the failure; the gate for p1 is already open.
	lookup.mu.Lock()
	delete(lookup.fail, "p1")
	lookup.mu.Unlock()

	started, err := r.Refresh("s1", "property:p1")
	if err != nil {
		t.Fatalf("Refresh err: %v", err)
	}
	if !started {
		t.Fatal("expected refresh to start a refetch")
	}

	p := waitForStatus(t, ws, "property:p1", entity.StatusReady)
	if string(p.Data) != `{"id":"p1"}` {
		t.Fatalf("unexpected payload after refresh: %s", p.Data)
	}
	if got := lookup.callCount("p1"); got != 2 {
		t.Fatalf("expected 2 fetches after refresh, got %d", got)
	}
}

func TestRefreshUnknownEntity(t *testing.T) {
	hub := workspace.NewHub()
	r := New(newGatedLookup(), hub, time.Second)

	if _, err := r.Refresh("s1", "property:ghost"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
	if _, err := r.Refresh("s1", "not-a-key"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}
