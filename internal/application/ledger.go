package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
)

const defaultLedgerTimeout = 3 * time.Second

// EventPublisher fans ledger entries out to downstream consumers.
type EventPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// AttemptEvent is the message published for every recorded login attempt.
type AttemptEvent struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id,omitempty"`
	Email         string     `json:"email"`
	IPAddress     string     `json:"ip_address,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	Result        string     `json:"result"`
	FailureReason string     `json:"failure_reason,omitempty"`
	AttemptedAt   time.Time  `json:"attempted_at"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
}

func NewAttemptEvent(a *entity.LoginAttempt) AttemptEvent {
	ev := AttemptEvent{
		ID:            a.ID,
		Email:         a.Email,
		IPAddress:     a.IPAddress,
		UserAgent:     a.UserAgent,
		Result:        string(a.Result),
		FailureReason: a.FailureReason,
		AttemptedAt:   a.AttemptedAt.UTC(),
	}
	if a.UserID != nil {
		ev.UserID = *a.UserID
	}
	if a.LockedUntil != nil {
		until := a.LockedUntil.UTC()
		ev.LockedUntil = &until
	}
	return ev
}

// AttemptLedger appends login attempts to the store. Writes are best effort:
// they survive caller cancellation, are bounded by a timeout, and a failure
// is logged and returned but must not change an authentication outcome.
type AttemptLedger struct {
	repo    repository.LoginAttemptRepository
	pub     EventPublisher
	logger  *logrus.Logger
	timeout time.Duration
}

type LedgerOption func(*AttemptLedger)

func WithEventPublisher(p EventPublisher) LedgerOption {
	return func(l *AttemptLedger) { l.pub = p }
}

func WithWriteTimeout(d time.Duration) LedgerOption {
	return func(l *AttemptLedger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func NewAttemptLedger(repo repository.LoginAttemptRepository, logger *logrus.Logger, opts ...LedgerOption) *AttemptLedger {
	l := &AttemptLedger{repo: repo, logger: logger, timeout: defaultLedgerTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *AttemptLedger) Record(ctx context.Context, a *entity.LoginAttempt) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.repo.Create(wctx, a); err != nil {
		if l.logger != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"email":  a.Email,
				"result": a.Result,
				"reason": a.FailureReason,
			}).Warn("login attempt not recorded")
		}
		return err
	}
	if l.pub != nil {
		if err := l.pub.PublishJSON(wctx, NewAttemptEvent(a)); err != nil && l.logger != nil {
			l.logger.WithError(err).WithField("attempt_id", a.ID).Warn("publish login attempt failed")
		}
	}
	return nil
}

// RecentFailed counts failed attempts for email since the given instant.
func (l *AttemptLedger) RecentFailed(ctx context.Context, email string, since time.Time) (int, error) {
	return l.repo.CountRecentFailed(ctx, email, since)
}

func (l *AttemptLedger) RecentFailedByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	return l.repo.CountRecentFailedByUser(ctx, userID, since)
}

// History returns the newest attempts of a user first.
func (l *AttemptLedger) History(ctx context.Context, userID string, limit int) ([]entity.LoginAttempt, error) {
	return l.repo.ListByUser(ctx, userID, limit)
}
