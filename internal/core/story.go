package core

import "time"

// StoryMediaType is the kind of media attached to a story.
type StoryMediaType string

const (
	StoryMediaNone  StoryMediaType = "text"
	StoryMediaImage StoryMediaType = "image"
	StoryMediaVideo StoryMediaType = "video"
)

// Story is an ephemeral post. Stories are scheduled for deletion
// 24 hours after creation; storage-level TTL sweeps may race the
// scheduled deletion, so deletes must tolerate absent records.
type Story struct {
	ID              string         `json:"_id"`
	UserID          string         `json:"user"`
	Content         string         `json:"content"`
	MediaURL        string         `json:"media_url,omitempty"`
	MediaType       StoryMediaType `json:"media_type"`
	BackgroundColor string         `json:"background_color,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
