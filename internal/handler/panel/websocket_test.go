package panel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/brightdoor/brokerchat/internal/model/entity"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

func TestWebSocketPushesWorkspaceUpdates(t *testing.T) {
	hub := workspace.NewHub()
	handler := NewWebSocketHandler(hub, stubSessions{known: map[string]bool{"s1": true}})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/panel/ws/s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snapshot workspace.Update
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Kind != "snapshot" || snapshot.SessionID != "s1" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	// The subscription is registered before the snapshot is written, but give
	// the server loop a moment before producing the update.
	time.Sleep(20 * time.Millisecond)
	hub.Get("s1").MergeEntities([]entity.Detected{
		{ID: "p1", Type: entity.TypeProperty, Name: "Marina View 2BR", Confidence: 0.9},
	})

	var update workspace.Update
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Kind != workspace.UpdateEntities {
		t.Fatalf("expected entities update, got %s", update.Kind)
	}
	if len(update.Entities) != 1 || update.Entities[0].ID != "p1" {
		t.Fatalf("unexpected update entities: %+v", update.Entities)
	}
}

func TestWebSocketRejectsUnknownSession(t *testing.T) {
	hub := workspace.NewHub()
	handler := NewWebSocketHandler(hub, stubSessions{})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/panel/ws/ghost"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 rejection, got %+v", resp)
	}
	if _, ok := hub.Lookup("ghost"); ok {
		t.Fatal("workspace allocated for unknown session")
	}
}
