// Package workflows holds the concrete workflow definitions built on
// the engine: the connection-request reminder, story expiry, and user
// sync from the identity provider.
package workflows

// Trigger event names consumed by the engine. Payload shapes are fixed
// per event name so emitters and workflow bodies agree at the type
// level.
const (
	EventConnectionRequest = "app/connection-request"
	EventStoryDelete       = "app/story.delete"
	EventUserCreated       = "identity/user.created"
	EventUserUpdated       = "identity/user.updated"
	EventUserDeleted       = "identity/user.deleted"
)

// ConnectionRequestEvent triggers the reminder workflow.
type ConnectionRequestEvent struct {
	ConnectionID string `json:"connection_id"`
}

// StoryDeleteEvent triggers the expiry workflow.
type StoryDeleteEvent struct {
	StoryID string `json:"story_id"`
}

// UserEvent carries profile data pushed by the identity provider for
// user lifecycle events. Only ID is set for deletions.
type UserEvent struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	ImageURL  string `json:"image_url"`
}
