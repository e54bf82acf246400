package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pingup/pingup/internal/api/middleware"
	"github.com/pingup/pingup/internal/core"
)

const msgInvalidRequestBody = "invalid request body"

type sendMessageRequest struct {
	ToUserID string `json:"to_user_id"`
	Text     string `json:"text"`
	MediaURL string `json:"media_url"`
}

// outboundMessage is the event frame pushed to a connected recipient:
// the stored message plus the sender's profile, so the client can
// render the conversation without a follow-up fetch.
type outboundMessage struct {
	core.Message
	FromUser *core.User `json:"from_user,omitempty"`
}

// handleSendMessage persists a message and responds immediately; the
// push to the recipient's stream happens after the response and its
// outcome is invisible to the sender. An offline recipient catches up
// through the recent/chat queries.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}
	if req.ToUserID == "" {
		respondError(w, http.StatusUnprocessableEntity, "to_user_id is required")
		return
	}
	if req.Text == "" && req.MediaURL == "" {
		respondError(w, http.StatusUnprocessableEntity, "message needs text or media")
		return
	}

	msgType := core.MessageText
	if req.MediaURL != "" {
		msgType = core.MessageImage
	}
	msg := &core.Message{
		ID:          uuid.NewString(),
		FromUserID:  subjectID,
		ToUserID:    req.ToUserID,
		Text:        req.Text,
		MessageType: msgType,
		MediaURL:    req.MediaURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.storage.SaveMessage(r.Context(), msg); err != nil {
		s.logger.Error("failed to save message", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})

	// The push runs after the response; the sender hanging up must not
	// cancel the profile read that enriches the frame.
	pushCtx := context.WithoutCancel(r.Context())
	out := outboundMessage{Message: *msg}
	if from, err := s.storage.GetUser(pushCtx, subjectID); err == nil {
		out.FromUser = from
	}
	s.broker.Send(req.ToUserID, out)
}

// handleChatMessages returns the conversation between the subject and
// another user, oldest first.
func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())
	otherUserID := r.URL.Query().Get("other_user_id")
	if otherUserID == "" {
		respondError(w, http.StatusUnprocessableEntity, "other_user_id is required")
		return
	}

	messages, err := s.storage.ChatMessages(r.Context(), subjectID, otherUserID)
	if err != nil {
		s.logger.Error("failed to load chat messages", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
}

// handleRecentMessages returns messages addressed to the subject,
// newest first.
func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())

	messages, err := s.storage.RecentMessages(r.Context(), subjectID)
	if err != nil {
		s.logger.Error("failed to load recent messages", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
}
