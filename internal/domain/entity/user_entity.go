package entity

import (
	"time"
)

// User is the aggregate root for the identity domain.
// Email is stored lower-cased; Username keeps the casing chosen at registration
// but is compared case-insensitively by the stores.
type User struct {
	ID              string
	Username        string
	Email           string
	FirstName       string
	LastName        string
	IsActive        bool
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastLoginAt     *time.Time
}
