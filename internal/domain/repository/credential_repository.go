package repository

import (
	"context"
	"time"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
)

// CredentialRepository stores one credential per user id. The counter and
// lockout mutations are single-row updates and must be atomic in the store.
type CredentialRepository interface {
	GetByUserID(ctx context.Context, userID string) (*entity.Credential, error)
	Create(ctx context.Context, c *entity.Credential) error
	Update(ctx context.Context, c *entity.Credential) error
	// IncrementFailedAttempts records a failure at `at` and returns the new
	// counter. A previous failure older than since restarts the counter at 1.
	IncrementFailedAttempts(ctx context.Context, userID string, at, since time.Time) (int, error)
	// ResetFailedAttempts zeroes the counter and clears any lockout.
	ResetFailedAttempts(ctx context.Context, userID string) error
	LockAccount(ctx context.Context, userID string, until time.Time) error
}
