package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a create violates a uniqueness rule.
	ErrDuplicate = errors.New("duplicate")
)

// UserRepository defines the interface for user-related database operations.
// Email and username lookups compare case-insensitively.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	// CreateWithCredential stores a new user and its credential atomically.
	// c.UserID is set from the created user. On error neither row exists.
	CreateWithCredential(ctx context.Context, u *entity.User, c *entity.Credential) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, u *entity.User) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}
