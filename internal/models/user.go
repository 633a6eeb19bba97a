package models

import (
	"time"
)

type User struct {
	ID        int64
	CreatedAt time.Time
	Email     string
	FirstName string
	LastName  string

	// Set only when the user is loaded for credential verification,
	// cleared before the user leaves the auth service
	HashedPassword string
}
