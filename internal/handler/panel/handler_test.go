package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/model/entity"
	"github.com/brightdoor/brokerchat/internal/service/resolve"
	"github.com/brightdoor/brokerchat/internal/service/session"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

type stubLookup struct {
	fail map[string]error
}

func (s stubLookup) FetchContext(_ context.Context, typ entity.Type, id string) (json.RawMessage, error) {
	if err, ok := s.fail[id]; ok {
		return nil, err
	}
	return json.RawMessage(`{"id":"` + id + `"}`), nil
}

type stubSessions struct {
	known map[string]bool
}

func (s stubSessions) GetSession(_ context.Context, id string) (chat.Session, error) {
	if s.known[id] {
		return chat.Session{ID: id}, nil
	}
	return chat.Session{}, session.ErrSessionNotFound
}

func setupPanel(lookup resolve.Lookup) (*chi.Mux, *workspace.Hub, *resolve.Resolver) {
	hub := workspace.NewHub()
	resolver := resolve.New(lookup, hub, time.Second)
	handler := New(hub, resolver, stubSessions{known: map[string]bool{"s1": true}})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, hub, resolver
}

func waitForStatus(t *testing.T, ws *workspace.Workspace, key, status string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := ws.Context(key); ok && p.Status == status {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("entity %s never reached %s", key, status)
}

func TestEntitiesEndpoint(t *testing.T) {
	r, hub, resolver := setupPanel(stubLookup{})
	ws := hub.Get("s1")
	added := ws.MergeEntities([]entity.Detected{
		{ID: "p1", Type: entity.TypeProperty, Name: "Marina View 2BR", Confidence: 0.9},
	})
	resolver.EnsureContexts("s1", added)
	waitForStatus(t, ws, "property:p1", entity.StatusReady)

	req := httptest.NewRequest(http.MethodGet, "/panel/s1/entities", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		SessionID string                    `json:"sessionId"`
		Entities  []entity.Detected         `json:"entities"`
		Contexts  map[string]entity.Payload `json:"contexts"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Entities) != 1 || body.Entities[0].ID != "p1" {
		t.Fatalf("unexpected entities: %+v", body.Entities)
	}
	if body.Contexts["property:p1"].Status != entity.StatusReady {
		t.Fatalf("unexpected contexts: %+v", body.Contexts)
	}
}

func TestEntitiesEndpointUnknownSession(t *testing.T) {
	r, hub, _ := setupPanel(stubLookup{})

	req := httptest.NewRequest(http.MethodGet, "/panel/ghost/entities", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	// The probing request must not leave a workspace behind.
	if _, ok := hub.Lookup("ghost"); ok {
		t.Fatal("workspace allocated for unknown session")
	}
}

func TestContextEndpoint(t *testing.T) {
	r, hub, resolver := setupPanel(stubLookup{})
	ws := hub.Get("s1")
	added := ws.MergeEntities([]entity.Detected{
		{ID: "p1", Type: entity.TypeProperty, Name: "Marina View 2BR"},
	})
	resolver.EnsureContexts("s1", added)
	waitForStatus(t, ws, "property:p1", entity.StatusReady)

	req := httptest.NewRequest(http.MethodGet, "/panel/s1/context/property:p1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload entity.Payload
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Status != entity.StatusReady || string(payload.Data) != `{"id":"p1"}` {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestContextEndpointUnknownEntity(t *testing.T) {
	r, _, _ := setupPanel(stubLookup{})

	req := httptest.NewRequest(http.MethodGet, "/panel/s1/context/property:ghost", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestContextEndpointMalformedKey(t *testing.T) {
	r, _, _ := setupPanel(stubLookup{})

	req := httptest.NewRequest(http.MethodGet, "/panel/s1/context/nonsense", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	lookup := stubLookup{fail: map[string]error{"p1": errors.New("db down")}}
	r, hub, resolver := setupPanel(lookup)
	ws := hub.Get("s1")
	added := ws.MergeEntities([]entity.Detected{
		{ID: "p1", Type: entity.TypeProperty, Name: "Marina View 2BR"},
	})
	resolver.EnsureContexts("s1", added)
	waitForStatus(t, ws, "property:p1", entity.StatusFailed)

	// Lookup recovers before refresh.
	delete(lookup.fail, "p1")

	req := httptest.NewRequest(http.MethodPost, "/panel/s1/context/property:p1/refresh", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	waitForStatus(t, ws, "property:p1", entity.StatusReady)
}

func TestRefreshEndpointUnknownEntity(t *testing.T) {
	r, _, _ := setupPanel(stubLookup{})

	req := httptest.NewRequest(http.MethodPost, "/panel/s1/context/property:ghost/refresh", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
