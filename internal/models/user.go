package models

import "github.com/google/uuid"

// User is the identity of a viewer as carried by their session token.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}
