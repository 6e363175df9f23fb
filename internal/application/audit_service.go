package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/pkg/mailer"
	"github.com/oksasatya/coherency-auth/pkg/mailer/templates"
)

// ErrMalformedEvent marks a message that can never be processed.
var ErrMalformedEvent = errors.New("malformed attempt event")

// AttemptIndexer stores attempt events for search.
type AttemptIndexer interface {
	Put(ctx context.Context, id string, doc any) error
}

// NoticeSender delivers rendered email jobs.
type NoticeSender interface {
	SendJob(ctx context.Context, job mailer.EmailJob) error
}

type AuditConfig struct {
	AppName         string
	SupportURL      string
	LockoutDuration time.Duration
}

// AuditService consumes ledger events: every event is indexed, and the
// attempt that triggers a lockout produces a notice to the account owner.
type AuditService struct {
	indexer AttemptIndexer
	notices NoticeSender // nil disables notices
	cfg     AuditConfig
	logger  *logrus.Logger
}

func NewAuditService(indexer AttemptIndexer, notices NoticeSender, cfg AuditConfig, logger *logrus.Logger) *AuditService {
	return &AuditService{indexer: indexer, notices: notices, cfg: cfg, logger: logger}
}

// Handle processes one message body. ErrMalformedEvent must not be retried;
// any other error is transient. Indexing is keyed by attempt id, so a retried
// message overwrites rather than duplicates.
func (s *AuditService) Handle(ctx context.Context, body []byte) error {
	var ev AttemptEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ID == "" || ev.Email == "" {
		return fmt.Errorf("%w: missing id or email", ErrMalformedEvent)
	}
	log := s.logger.WithFields(logrus.Fields{"attempt_id": ev.ID, "result": ev.Result, "reason": ev.FailureReason})

	if s.indexer != nil {
		if err := s.indexer.Put(ctx, ev.ID, ev); err != nil {
			return fmt.Errorf("index attempt: %w", err)
		}
	}
	if ev.FailureReason != entity.ReasonTooManyFailedAttempts || s.notices == nil {
		log.Debug("attempt event processed")
		return nil
	}
	if err := s.notices.SendJob(ctx, s.lockoutNotice(ev)); err != nil {
		return fmt.Errorf("send lockout notice: %w", err)
	}
	log.Info("lockout notice sent")
	return nil
}

func (s *AuditService) lockoutNotice(ev AttemptEvent) mailer.EmailJob {
	opts := []templates.Option{
		templates.WithAppName(s.cfg.AppName),
		templates.WithSupportURL(s.cfg.SupportURL),
		templates.WithIP(ev.IPAddress),
		templates.WithUserAgent(ev.UserAgent),
		templates.WithTime(ev.AttemptedAt),
	}
	switch {
	case ev.LockedUntil != nil:
		opts = append(opts, templates.WithLockedUntil(*ev.LockedUntil))
	case s.cfg.LockoutDuration > 0:
		// events from older publishers carry no expiry
		opts = append(opts, templates.WithLockedUntil(ev.AttemptedAt.Add(s.cfg.LockoutDuration)))
	}
	return mailer.EmailJob{
		To:       ev.Email,
		Template: templates.LockoutNotice,
		Data:     templates.New(ev.Email, opts...),
	}
}
