package core

import "context"

// Storage is the persistence collaborator for domain records. The core
// never caches records beyond a single operation; workflow steps that
// make decisions re-read fresh state through this interface.
type Storage interface {
	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	PutUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error

	// Messages
	SaveMessage(ctx context.Context, m *Message) error
	RecentMessages(ctx context.Context, toUserID string) ([]*Message, error)
	ChatMessages(ctx context.Context, userID, otherUserID string) ([]*Message, error)

	// Connection requests
	GetConnection(ctx context.Context, id string) (*ConnectionRequest, error)
	FindConnection(ctx context.Context, userA, userB string) (*ConnectionRequest, error)
	SaveConnection(ctx context.Context, c *ConnectionRequest) error
	ConnectionsOf(ctx context.Context, userID string) ([]*ConnectionRequest, error)
	// CountRecentConnections counts requests sent by a user within the
	// trailing window, for the 24h request cap.
	CountRecentConnections(ctx context.Context, fromUserID string, withinHours int) (int, error)

	// Stories
	SaveStory(ctx context.Context, s *Story) error
	GetStory(ctx context.Context, id string) (*Story, error)
	StoriesFeed(ctx context.Context, userID string) ([]*Story, error)
	// DeleteStory is idempotent: deleting an absent story succeeds.
	DeleteStory(ctx context.Context, id string) error
}

// Mailer sends notification emails. Failures surface as workflow step
// failures and are retried by the engine.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Identity resolves an opaque bearer token to the authenticated subject
// ID. The core trusts the returned ID as given; credential verification
// belongs to the provider.
type Identity interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Sentinel errors shared by storage implementations.
var (
	ErrUserNotFound       = ErrNotFound("user_not_found", "user not found")
	ErrConnectionNotFound = ErrNotFound("connection_not_found", "connection request not found")
	ErrStoryNotFound      = ErrNotFound("story_not_found", "story not found")
)
