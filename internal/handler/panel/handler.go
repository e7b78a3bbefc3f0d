// Package panel serves the context side panel: the accumulated entity set,
// per-entity context payloads, explicit refresh, and live update streams.
package panel

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/model/entity"
	"github.com/brightdoor/brokerchat/internal/service/resolve"
	"github.com/brightdoor/brokerchat/internal/service/session"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
	"github.com/brightdoor/brokerchat/pkg/utils"
)

// SessionChecker verifies a session exists. The hub creates workspaces
// lazily, so panel routes must reject unknown session IDs themselves
// instead of allocating a workspace per arbitrary path segment.
type SessionChecker interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
}

// Handler serves panel endpoints.
type Handler struct {
	hub      *workspace.Hub
	resolver *resolve.Resolver
	sessions SessionChecker
}

// New creates the panel handler.
func New(hub *workspace.Hub, resolver *resolve.Resolver, sessions SessionChecker) *Handler {
	return &Handler{hub: hub, resolver: resolver, sessions: sessions}
}

func (h *Handler) checkSession(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
		} else {
			utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		}
		return false
	}
	return true
}

// RegisterRoutes mounts the panel routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/panel/{sessionID}/entities", h.handleEntities)
	r.Get("/panel/{sessionID}/context/{entityKey}", h.handleContext)
	r.Post("/panel/{sessionID}/context/{entityKey}/refresh", h.handleRefresh)
	r.Get("/panel/{sessionID}/stream", h.handleStream)
}

func (h *Handler) handleEntities(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.checkSession(w, r, sessionID) {
		return
	}
	ws := h.hub.Get(sessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"entities":  ws.Entities(),
		"contexts":  ws.Contexts(),
	})
}

// handleContext is the click-entity path: it returns the cached payload and
// lazily starts resolution for an entity that somehow has none yet.
func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	key := chi.URLParam(r, "entityKey")

	if _, _, err := entity.ParseKey(key); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.checkSession(w, r, sessionID) {
		return
	}

	ws := h.hub.Get(sessionID)
	payload, ok := ws.Context(key)
	if ok {
		utils.RespondJSON(w, http.StatusOK, payload)
		return
	}

	// Known entity without a context entry: kick off resolution now.
	for _, d := range ws.Entities() {
		if d.Key() == key {
			h.resolver.EnsureContexts(sessionID, []entity.Detected{d})
			if p, ok := ws.Context(key); ok {
				utils.RespondJSON(w, http.StatusOK, p)
				return
			}
			break
		}
	}

	utils.RespondError(w, http.StatusNotFound, "no context for entity")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	key := chi.URLParam(r, "entityKey")

	if !h.checkSession(w, r, sessionID) {
		return
	}

	started, err := h.resolver.Refresh(sessionID, key)
	switch {
	case errors.Is(err, resolve.ErrUnknownEntity):
		utils.RespondError(w, http.StatusNotFound, "no context for entity")
		return
	case err != nil:
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]any{
		"status":    "refreshing",
		"restarted": started,
	})
}

const streamKeepAlive = 25 * time.Second

// handleStream pushes workspace updates over Server-Sent Events until the
// client disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if !h.checkSession(w, r, sessionID) {
		return
	}
	ws := h.hub.Get(sessionID)

	utils.SetupSSEHeaders(w)

	updates := ws.Subscribe()
	defer ws.Unsubscribe(updates)

	log.Printf("[panel] opening stream for session=%s", sessionID)

	// Initial snapshot so late subscribers start from current state.
	utils.SendSSEEvent(w, flusher, "snapshot", map[string]any{
		"sessionId": sessionID,
		"entities":  ws.Entities(),
		"contexts":  ws.Contexts(),
	})

	// Keepalive frames stop intermediaries from timing out an idle stream.
	keepalive := time.NewTicker(streamKeepAlive)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[panel] closing stream for session=%s", sessionID)
			return
		case <-keepalive.C:
			utils.SendSSEChunk(w, flusher, map[string]string{"type": "ping"})
		case update, open := <-updates:
			if !open {
				return
			}
			utils.SendSSEEvent(w, flusher, update.Kind, update)
		}
	}
}
