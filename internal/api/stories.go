package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pingup/pingup/internal/api/middleware"
	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/workflow"
	"github.com/pingup/pingup/internal/workflows"
)

type createStoryRequest struct {
	Content         string `json:"content"`
	MediaURL        string `json:"media_url"`
	MediaType       string `json:"media_type"`
	BackgroundColor string `json:"background_color"`
}

// handleCreateStory persists a story, responds, and schedules its
// deletion 24 hours out. The schedule is a background effect: a
// failure to emit is logged, never surfaced to the author.
func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())

	var req createStoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}

	mediaType := core.StoryMediaType(req.MediaType)
	switch mediaType {
	case core.StoryMediaImage, core.StoryMediaVideo:
		if req.MediaURL == "" {
			respondError(w, http.StatusUnprocessableEntity, "media_url is required for media stories")
			return
		}
	case "", core.StoryMediaNone:
		mediaType = core.StoryMediaNone
	default:
		respondError(w, http.StatusUnprocessableEntity, "unknown media_type")
		return
	}

	story := &core.Story{
		ID:              uuid.NewString(),
		UserID:          subjectID,
		Content:         req.Content,
		MediaURL:        req.MediaURL,
		MediaType:       mediaType,
		BackgroundColor: req.BackgroundColor,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.storage.SaveStory(r.Context(), story); err != nil {
		s.logger.Error("failed to save story", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save story")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Story Created Successfully"})

	err := s.engine.Emit(r.Context(), workflows.EventStoryDelete,
		workflows.StoryDeleteEvent{StoryID: story.ID},
		workflow.WithDedupeKey(story.ID))
	if err != nil {
		s.logger.Error("failed to schedule story expiry", "story_id", story.ID, "error", err)
	}
}

// handleStoriesFeed returns the subject's story feed, newest first.
func (s *Server) handleStoriesFeed(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.Subject(r.Context())

	stories, err := s.storage.StoriesFeed(r.Context(), subjectID)
	if err != nil {
		s.logger.Error("failed to load stories", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load stories")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "stories": stories})
}
