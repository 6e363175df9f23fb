package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
)

// CredentialRepository serializes every counter mutation behind one mutex,
// which gives the same per-row atomicity the SQL store gets from UPDATE.
type CredentialRepository struct {
	mu     sync.Mutex
	byUser map[string]entity.Credential
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)

func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{byUser: map[string]entity.Credential{}}
}

func (r *CredentialRepository) GetByUserID(_ context.Context, userID string) (*entity.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneCredential(c), nil
}

func (r *CredentialRepository) Create(_ context.Context, c *entity.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[c.UserID]; ok {
		return repository.ErrDuplicate
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.PasswordChangedAt.IsZero() {
		c.PasswordChangedAt = c.CreatedAt
	}
	r.byUser[c.UserID] = *cloneCredential(*c)
	return nil
}

func (r *CredentialRepository) Update(_ context.Context, c *entity.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[c.UserID]; !ok {
		return repository.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	r.byUser[c.UserID] = *cloneCredential(*c)
	return nil
}

func (r *CredentialRepository) IncrementFailedAttempts(_ context.Context, userID string, at, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if c.LastFailedAt != nil && c.LastFailedAt.Before(since) {
		c.FailedLoginAttempts = 1
	} else {
		c.FailedLoginAttempts++
	}
	c.LastFailedAt = &at
	c.UpdatedAt = at
	r.byUser[userID] = c
	return c.FailedLoginAttempts, nil
}

func (r *CredentialRepository) ResetFailedAttempts(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	if !ok {
		return repository.ErrNotFound
	}
	c.FailedLoginAttempts = 0
	c.LastFailedAt = nil
	c.AccountLockedUntil = nil
	c.UpdatedAt = time.Now().UTC()
	r.byUser[userID] = c
	return nil
}

func (r *CredentialRepository) LockAccount(_ context.Context, userID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	if !ok {
		return repository.ErrNotFound
	}
	c.AccountLockedUntil = &until
	c.UpdatedAt = time.Now().UTC()
	r.byUser[userID] = c
	return nil
}

func cloneCredential(c entity.Credential) *entity.Credential {
	if c.LastFailedAt != nil {
		t := *c.LastFailedAt
		c.LastFailedAt = &t
	}
	if c.AccountLockedUntil != nil {
		t := *c.AccountLockedUntil
		c.AccountLockedUntil = &t
	}
	return &c
}
