package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/service/dispatch"
	"github.com/brightdoor/brokerchat/internal/service/session"
	"github.com/brightdoor/brokerchat/pkg/utils"
)

// Handler serves session and message endpoints.
type Handler struct {
	store      session.Store
	dispatcher *dispatch.Dispatcher
}

// New creates the chat handler. dispatcher may be nil when the AI model is
// not configured; message dispatch then answers 503 while session CRUD and
// history stay available.
func New(store session.Store, dispatcher *dispatch.Dispatcher) *Handler {
	return &Handler{store: store, dispatcher: dispatcher}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}/history", h.handleHistory)
	r.Post("/sessions/{sessionID}/messages", h.handleDispatch)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	// A missing body means an untitled chat; only malformed JSON is an error.
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.store.CreateSession(r.Context(), payload.Title)
	if err != nil {
		log.Printf("[chat] create session failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		log.Printf("[chat] list sessions failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.loadHistory(r, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Printf("[chat] history failed session=%s: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}

// loadHistory goes through the dispatcher when available so entities stored
// on historical messages re-enter the panel pipeline.
func (h *Handler) loadHistory(r *http.Request, sessionID string) ([]chatmodel.Message, error) {
	if h.dispatcher != nil {
		return h.dispatcher.LoadHistory(r.Context(), sessionID)
	}
	return h.store.History(r.Context(), sessionID)
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "assistant unavailable")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Text       string `json:"text"`
		Attachment string `json:"attachment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	aiMsg, err := h.dispatcher.Dispatch(r.Context(), sessionID, payload.Text, payload.Attachment)
	switch {
	case errors.Is(err, dispatch.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, session.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		log.Printf("[chat] dispatch failed session=%s: %v", sessionID, err)
		utils.RespondError(w, http.StatusBadGateway, "assistant failed to respond")
		return
	}

	utils.RespondJSON(w, http.StatusOK, aiMsg)
}
