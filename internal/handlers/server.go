// Package handlers is the HTTP boundary: the provider webhook and a small
// operational surface for starting, polling and cancelling syncs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
	"feedsync/internal/sync"
)

// SessionLister exposes recent session rows for operator visibility.
type SessionLister interface {
	RecentSessions(ctx context.Context, accountID string, limit int) ([]models.SyncSession, error)
}

// Handler holds the HTTP surface dependencies.
type Handler struct {
	pipeline      *sync.Pipeline
	orchestrator  *sync.Orchestrator
	sessions      SessionLister
	webhookSecret string
}

// NewHandler creates the handler.
func NewHandler(pipeline *sync.Pipeline, orchestrator *sync.Orchestrator, sessions SessionLister, webhookSecret string) *Handler {
	return &Handler{
		pipeline:      pipeline,
		orchestrator:  orchestrator,
		sessions:      sessions,
		webhookSecret: webhookSecret,
	}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/{accountID}/messages", h.HandleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/sync/{accountID}/start", h.HandleStartSync).Methods(http.MethodPost)
	r.HandleFunc("/sync/{accountID}/sessions", h.HandleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sync/sessions/{sessionID}", h.HandleGetProgress).Methods(http.MethodGet)
	r.HandleFunc("/sync/sessions/{sessionID}/cancel", h.HandleCancelSync).Methods(http.MethodPost)
	return r
}

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startSyncRequest struct {
	SyncType  models.SyncType `json:"sync_type"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	Cursor    string          `json:"cursor,omitempty"`
}

// HandleStartSync launches a sync session for the account.
func (h *Handler) HandleStartSync(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]

	var req startSyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
	}

	opts := sync.StartOptions{SyncType: req.SyncType, Cursor: req.Cursor}
	if req.StartTime != nil {
		opts.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		opts.EndTime = *req.EndTime
	}

	sessionID, err := h.orchestrator.StartSync(r.Context(), accountID, opts)
	switch {
	case errors.Is(err, sync.ErrSyncAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		log.Error().Err(err).Str("accountID", accountID).Msg("Could not start sync")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

// HandleGetProgress returns a live or persisted session snapshot.
func (h *Handler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	progress, err := h.orchestrator.GetProgress(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionID", sessionID).Msg("Could not load sync progress")
		http.Error(w, "could not load session", http.StatusInternalServerError)
		return
	}
	if progress == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, progress)
}

// HandleCancelSync requests cooperative cancellation.
func (h *Handler) HandleCancelSync(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	err := h.orchestrator.CancelSync(sessionID)
	switch {
	case errors.Is(err, sync.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// HandleListSessions lists recent sessions for an account.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]
	sessions, err := h.sessions.RecentSessions(r.Context(), accountID, 20)
	if err != nil {
		log.Error().Err(err).Str("accountID", accountID).Msg("Could not list sessions")
		http.Error(w, "could not list sessions", http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
