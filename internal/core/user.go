package core

import "time"

// User is the locally stored profile for an identity-provider subject.
// The subject ID issued by the identity provider is used as the record ID.
type User struct {
	ID             string    `json:"_id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profile_picture"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
