package repository

import (
	"context"
	"time"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
)

// LoginAttemptRepository is the append-only attempt ledger store.
type LoginAttemptRepository interface {
	Create(ctx context.Context, a *entity.LoginAttempt) error
	CountRecentFailed(ctx context.Context, email string, since time.Time) (int, error)
	CountRecentFailedByUser(ctx context.Context, userID string, since time.Time) (int, error)
	// ListByUser returns the newest attempts first.
	ListByUser(ctx context.Context, userID string, limit int) ([]entity.LoginAttempt, error)
}
