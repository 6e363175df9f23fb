package entity

import "time"

// Credential holds the password digest and the lockout state of exactly one user.
type Credential struct {
	ID                  string
	UserID              string
	PasswordHash        string
	PasswordSalt        string
	HashAlgorithm       string
	FailedLoginAttempts int
	LastFailedAt        *time.Time
	AccountLockedUntil  *time.Time
	PasswordChangedAt   time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockedAt reports whether a lockout is still running at now.
func (c *Credential) LockedAt(now time.Time) bool {
	return c.AccountLockedUntil != nil && c.AccountLockedUntil.After(now)
}

// FailuresSince returns the failed-attempt counter, or zero when the most
// recent failure happened before cutoff.
func (c *Credential) FailuresSince(cutoff time.Time) int {
	if c.FailedLoginAttempts <= 0 {
		return 0
	}
	if c.LastFailedAt != nil && c.LastFailedAt.Before(cutoff) {
		return 0
	}
	return c.FailedLoginAttempts
}
