package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
)

type LoginAttemptRepository struct {
	db DBTX
}

func NewLoginAttemptRepository(db DBTX) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func (r *LoginAttemptRepository) Create(ctx context.Context, a *entity.LoginAttempt) error {
	a.Sanitize()
	row := r.db.QueryRow(ctx, `
		INSERT INTO login_attempts (user_id, email, ip_address, user_agent, result, failure_reason, attempted_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), COALESCE($7, now()))
		RETURNING id, attempted_at
	`, a.UserID, a.Email, a.IPAddress, a.UserAgent, string(a.Result), a.FailureReason, nullableTime(a.AttemptedAt))
	return mapErr(row.Scan(&a.ID, &a.AttemptedAt))
}

func (r *LoginAttemptRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (r *LoginAttemptRepository) CountRecentFailed(ctx context.Context, email string, since time.Time) (int, error) {
	return r.count(ctx, `
		SELECT count(*) FROM login_attempts
		WHERE lower(email) = lower($1) AND result = 'failed' AND attempted_at >= $2
	`, email, since)
}

func (r *LoginAttemptRepository) CountRecentFailedByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	return r.count(ctx, `
		SELECT count(*) FROM login_attempts
		WHERE user_id = $1 AND result = 'failed' AND attempted_at >= $2
	`, userID, since)
}

func (r *LoginAttemptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]entity.LoginAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, email, COALESCE(ip_address, ''), COALESCE(user_agent, ''), result,
		       COALESCE(failure_reason, ''), attempted_at
		FROM login_attempts
		WHERE user_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]entity.LoginAttempt, 0, limit)
	for rows.Next() {
		var (
			a      entity.LoginAttempt
			result string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Email, &a.IPAddress, &a.UserAgent, &result,
			&a.FailureReason, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Result = entity.AttemptResult(result)
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ repository.LoginAttemptRepository = (*LoginAttemptRepository)(nil)
