package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/pingup/pingup/internal/workflows"
)

// identityWebhookRequest is the envelope pushed by the identity
// provider for user lifecycle events.
type identityWebhookRequest struct {
	Type string              `json:"type"`
	Data workflows.UserEvent `json:"data"`
}

// handleIdentityWebhook ingests user lifecycle events and raises the
// matching engine event. Acknowledged events are persisted as runs
// before the 200 goes out, so a redelivered webhook after a crash is
// the provider's retry, not ours.
func (s *Server) handleIdentityWebhook(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.webhookSecret)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var req identityWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}
	if req.Data.ID == "" {
		respondError(w, http.StatusBadRequest, "missing user id")
		return
	}

	var event string
	switch req.Type {
	case "user.created":
		event = workflows.EventUserCreated
	case "user.updated":
		event = workflows.EventUserUpdated
	case "user.deleted":
		event = workflows.EventUserDeleted
	default:
		// Unknown types are acknowledged so the provider stops
		// redelivering them.
		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	if err := s.engine.Emit(r.Context(), event, req.Data); err != nil {
		s.logger.Error("webhook event emit failed", "type", req.Type, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
