package core

import "time"

// MessageType distinguishes plain text from media messages.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// Message is one direct message between two users.
type Message struct {
	ID          string      `json:"_id"`
	FromUserID  string      `json:"from_user_id"`
	ToUserID    string      `json:"to_user_id"`
	Text        string      `json:"text"`
	MessageType MessageType `json:"message_type"`
	MediaURL    string      `json:"media_url,omitempty"`
	Seen        bool        `json:"seen"`
	CreatedAt   time.Time   `json:"created_at"`
}
