package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
)

// UserRepository keeps users in process memory. Records are copied in and out
// so callers never share state with the store.
// Credentials created through CreateWithCredential land in creds.
type UserRepository struct {
	mu    sync.RWMutex
	byID  map[string]entity.User
	creds repository.CredentialRepository
}

var _ repository.UserRepository = (*UserRepository)(nil)

func NewUserRepository(creds repository.CredentialRepository) *UserRepository {
	return &UserRepository{byID: map[string]entity.User{}, creds: creds}
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (r *UserRepository) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.prepare(u); err != nil {
		return err
	}
	r.byID[u.ID] = *u
	return nil
}

// CreateWithCredential holds the user lock across the credential insert, so
// the user becomes visible only together with its credential.
func (r *UserRepository) CreateWithCredential(ctx context.Context, u *entity.User, c *entity.Credential) error {
	if r.creds == nil {
		return errors.New("memory user store has no credential store")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	created := *u
	if err := r.prepare(&created); err != nil {
		return err
	}
	c.UserID = created.ID
	if err := r.creds.Create(ctx, c); err != nil {
		c.UserID = ""
		return err
	}
	r.byID[created.ID] = created
	*u = created
	return nil
}

// prepare checks uniqueness and fills generated fields. Caller holds mu.
func (r *UserRepository) prepare(u *entity.User) error {
	for _, existing := range r.byID {
		if fold(existing.Email) == fold(u.Email) || fold(existing.Username) == fold(u.Username) {
			return repository.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) find(match func(entity.User) bool) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	return r.find(func(u entity.User) bool { return fold(u.Email) == fold(email) })
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	return r.find(func(u entity.User) bool { return fold(u.Username) == fold(username) })
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	return err == nil, nil
}

func (r *UserRepository) Update(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID]; !ok {
		return repository.ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	r.byID[u.ID] = *u
	return nil
}

func (r *UserRepository) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	r.byID[userID] = u
	return nil
}
