package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pingup/pingup/internal/api/middleware"
	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/workflow"
	"github.com/pingup/pingup/internal/workflows"
)

// connectionRequestCap limits how many requests one user may send in a
// trailing 24-hour window.
const connectionRequestCap = 20

type connectRequest struct {
	ToUserID string `json:"to_user_id"`
}

type acceptRequest struct {
	ID string `json:"id"`
}

// handleConnect creates a pending connection request and kicks off the
// reminder workflow. The emit happens after the success response; the
// request record is what the user sees, the reminder is background.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())

	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}
	if req.ToUserID == "" || req.ToUserID == subjectID {
		respondError(w, http.StatusUnprocessableEntity, "invalid to_user_id")
		return
	}

	sent, err := s.storage.CountRecentConnections(r.Context(), subjectID, 24)
	if err != nil {
		s.logger.Error("failed to count recent connection requests", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create connection request")
		return
	}
	if sent >= connectionRequestCap {
		respondDomainError(w, core.ErrRateLimit("connection_request_cap",
			"You have sent more than 20 connection requests in the last 24 hours"))
		return
	}

	existing, err := s.storage.FindConnection(r.Context(), subjectID, req.ToUserID)
	switch {
	case err == nil && existing.Status == core.ConnectionAccepted:
		respondDomainError(w, core.ErrConflict("already_connected",
			"You are already connected with this user"))
		return
	case err == nil && existing.FromUserID == subjectID:
		respondDomainError(w, core.ErrConflict("request_pending",
			"You already sent a connection request to this user"))
		return
	case err == nil:
		respondDomainError(w, core.ErrConflict("request_inbound",
			"This user has already sent you a connection request. Check your pending connections."))
		return
	case !errors.Is(err, core.ErrConnectionNotFound):
		s.logger.Error("failed to look up connection", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create connection request")
		return
	}

	connection := &core.ConnectionRequest{
		ID:         uuid.NewString(),
		FromUserID: subjectID,
		ToUserID:   req.ToUserID,
		Status:     core.ConnectionPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.storage.SaveConnection(r.Context(), connection); err != nil {
		s.logger.Error("failed to save connection request", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create connection request")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Connection Request Sent Successfully",
	})

	err = s.engine.Emit(r.Context(), workflows.EventConnectionRequest,
		workflows.ConnectionRequestEvent{ConnectionID: connection.ID},
		workflow.WithDedupeKey(connection.ID))
	if err != nil {
		s.logger.Error("failed to schedule connection reminder",
			"connection_id", connection.ID, "error", err)
	}
}

// handleAccept marks a pending request accepted. Only the recipient
// may accept.
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())

	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}

	connection, err := s.storage.GetConnection(r.Context(), req.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if connection.ToUserID != subjectID {
		respondError(w, http.StatusForbidden, "not the recipient of this request")
		return
	}

	connection.Status = core.ConnectionAccepted
	if err := s.storage.SaveConnection(r.Context(), connection); err != nil {
		s.logger.Error("failed to accept connection", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to accept connection")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "connection": connection})
}

// handleConnections lists the subject's connection requests, both
// directions, newest first.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())

	connections, err := s.storage.ConnectionsOf(r.Context(), subjectID)
	if err != nil {
		s.logger.Error("failed to load connections", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load connections")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "connections": connections})
}
