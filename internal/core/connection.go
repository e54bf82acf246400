package core

import "time"

// ConnectionStatus is the lifecycle state of a connection request.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
)

// ConnectionRequest links two users; it stays pending until the
// recipient accepts it.
type ConnectionRequest struct {
	ID         string           `json:"_id"`
	FromUserID string           `json:"from_user_id"`
	ToUserID   string           `json:"to_user_id"`
	Status     ConnectionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}
