package panel

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// WebSocketHandler pushes workspace updates to panel clients that prefer a
// socket over SSE.
type WebSocketHandler struct {
	hub      *workspace.Hub
	sessions SessionChecker
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the panel websocket handler.
func NewWebSocketHandler(hub *workspace.Hub, sessions SessionChecker) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/panel/ws/{sessionID}", h.handleWebSocket)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		log.Printf("[ws] rejecting connection for unknown session=%s: %v", sessionID, err)
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed session=%s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	ws := h.hub.Get(sessionID)
	updates := ws.Subscribe()
	defer ws.Unsubscribe(updates)

	log.Printf("[ws] panel connection opened session=%s", sessionID)

	// Reader goroutine: consume control frames, detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := workspace.Update{
		Kind:      "snapshot",
		SessionID: sessionID,
		Entities:  ws.Entities(),
	}
	if err := h.writeUpdate(conn, snapshot); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Printf("[ws] panel connection closed session=%s", sessionID)
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case update, open := <-updates:
			if !open {
				return
			}
			if err := h.writeUpdate(conn, update); err != nil {
				log.Printf("[ws] write failed session=%s: %v", sessionID, err)
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeUpdate(conn *websocket.Conn, update workspace.Update) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(update)
}
