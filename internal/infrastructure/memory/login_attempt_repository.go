package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
)

// LoginAttemptRepository is an append-only slice of attempts.
type LoginAttemptRepository struct {
	mu       sync.RWMutex
	attempts []entity.LoginAttempt
}

var _ repository.LoginAttemptRepository = (*LoginAttemptRepository)(nil)

func NewLoginAttemptRepository() *LoginAttemptRepository {
	return &LoginAttemptRepository{}
}

func (r *LoginAttemptRepository) Create(_ context.Context, a *entity.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	cp := *a
	if a.UserID != nil {
		id := *a.UserID
		cp.UserID = &id
	}
	r.attempts = append(r.attempts, cp)
	return nil
}

func (r *LoginAttemptRepository) count(match func(entity.LoginAttempt) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.attempts {
		if match(a) {
			n++
		}
	}
	return n
}

func (r *LoginAttemptRepository) CountRecentFailed(_ context.Context, email string, since time.Time) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.count(func(a entity.LoginAttempt) bool {
		return a.Result == entity.AttemptFailed && strings.EqualFold(a.Email, email) && !a.AttemptedAt.Before(since)
	}), nil
}

func (r *LoginAttemptRepository) CountRecentFailedByUser(_ context.Context, userID string, since time.Time) (int, error) {
	return r.count(func(a entity.LoginAttempt) bool {
		return a.Result == entity.AttemptFailed && a.UserID != nil && *a.UserID == userID && !a.AttemptedAt.Before(since)
	}), nil
}

func (r *LoginAttemptRepository) ListByUser(_ context.Context, userID string, limit int) ([]entity.LoginAttempt, error) {
	r.mu.RLock()
	out := make([]entity.LoginAttempt, 0)
	for _, a := range r.attempts {
		if a.UserID != nil && *a.UserID == userID {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].AttemptedAt.After(out[j].AttemptedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a copy of every recorded attempt in insertion order.
func (r *LoginAttemptRepository) All() []entity.LoginAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]entity.LoginAttempt(nil), r.attempts...)
}
