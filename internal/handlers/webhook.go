package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
	"feedsync/internal/sync"
)

// webhookEvent is the provider push envelope. The message inside is the
// same shape the paginated feed returns, so both ingestion modes share one
// normalization.
type webhookEvent struct {
	Event   string                  `json:"event"`
	Message *models.ExternalMessage `json:"message"`
}

// webhookResponse acknowledges a processed event.
type webhookResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

// HandleWebhook ingests one pushed provider event through the same
// per-message pipeline the batch sync uses, so dedup and threading behave
// identically regardless of ingestion mode.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountID"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("Could not read webhook body")
		http.Error(w, "could not read request body", http.StatusInternalServerError)
		return
	}

	if !h.validSignature(body, r.Header.Get("X-Feed-Signature")) {
		log.Warn().Str("accountID", accountID).Msg("Webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error().Err(err).Msg("Could not decode webhook payload")
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if event.Message == nil {
		log.Warn().Str("event", event.Event).Msg("Webhook event carries no message")
		http.Error(w, "event has no message", http.StatusBadRequest)
		return
	}

	log.Info().
		Str("accountID", accountID).
		Str("event", event.Event).
		Str("externalID", event.Message.ExternalID).
		Msg("Received provider webhook event")

	result, err := h.pipeline.ProcessMessage(r.Context(), accountID, event.Message)
	switch {
	case errors.Is(err, sync.ErrMalformedMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).
			Str("accountID", accountID).
			Str("externalID", event.Message.ExternalID).
			Msg("Webhook message processing failed")
		http.Error(w, "message processing failed", http.StatusInternalServerError)
		return
	}

	resp := webhookResponse{Status: string(result.Status)}
	if result.Message != nil {
		resp.MessageID = result.Message.ID
	}
	// Duplicates are acknowledged with 200 so the provider stops
	// redelivering.
	h.respondJSON(w, http.StatusOK, resp)
}

// validSignature checks the HMAC-SHA256 of the raw body against the
// provider signature header. An unconfigured secret skips validation.
func (h *Handler) validSignature(body []byte, signature string) bool {
	if h.webhookSecret == "" {
		log.Warn().Msg("Webhook secret is not configured, skipping signature validation")
		return true
	}
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
