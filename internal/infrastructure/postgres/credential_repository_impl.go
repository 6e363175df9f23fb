package postgres

import (
	"context"
	"time"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
)

// CredentialRepository keeps counter arithmetic inside single UPDATE
// statements so concurrent failures on one row are never lost.
type CredentialRepository struct {
	db DBTX
}

func NewCredentialRepository(db DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (*entity.Credential, error) {
	c := &entity.Credential{}
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, password_hash, password_salt, hash_algorithm, failed_login_attempts,
		       last_failed_at, account_locked_until, password_changed_at, created_at, updated_at
		FROM user_credentials
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&c.ID, &c.UserID, &c.PasswordHash, &c.PasswordSalt, &c.HashAlgorithm,
		&c.FailedLoginAttempts, &c.LastFailedAt, &c.AccountLockedUntil,
		&c.PasswordChangedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (r *CredentialRepository) Create(ctx context.Context, c *entity.Credential) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO user_credentials (user_id, password_hash, password_salt, hash_algorithm, password_changed_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		RETURNING id, password_changed_at, created_at, updated_at
	`, c.UserID, c.PasswordHash, c.PasswordSalt, c.HashAlgorithm, nullableTime(c.PasswordChangedAt))
	return mapErr(row.Scan(&c.ID, &c.PasswordChangedAt, &c.CreatedAt, &c.UpdatedAt))
}

func (r *CredentialRepository) Update(ctx context.Context, c *entity.Credential) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.Exec(ctx, `
		UPDATE user_credentials
		SET password_hash = $1, password_salt = $2, hash_algorithm = $3, failed_login_attempts = $4,
		    last_failed_at = $5, account_locked_until = $6, password_changed_at = $7, updated_at = $8
		WHERE user_id = $9
	`, c.PasswordHash, c.PasswordSalt, c.HashAlgorithm, c.FailedLoginAttempts,
		c.LastFailedAt, c.AccountLockedUntil, c.PasswordChangedAt, c.UpdatedAt, c.UserID)
	if err != nil {
		return mapErr(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) IncrementFailedAttempts(ctx context.Context, userID string, at, since time.Time) (int, error) {
	var n int
	row := r.db.QueryRow(ctx, `
		UPDATE user_credentials
		SET failed_login_attempts = CASE
		        WHEN $3::timestamptz IS NOT NULL AND last_failed_at IS NOT NULL AND last_failed_at < $3::timestamptz THEN 1
		        ELSE failed_login_attempts + 1
		    END,
		    last_failed_at = $2,
		    updated_at = $2
		WHERE user_id = $1
		RETURNING failed_login_attempts
	`, userID, at, nullableTime(since))
	if err := row.Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (r *CredentialRepository) ResetFailedAttempts(ctx context.Context, userID string) error {
	res, err := r.db.Exec(ctx, `
		UPDATE user_credentials
		SET failed_login_attempts = 0, last_failed_at = NULL, account_locked_until = NULL, updated_at = now()
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return mapErr(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *CredentialRepository) LockAccount(ctx context.Context, userID string, until time.Time) error {
	res, err := r.db.Exec(ctx, `
		UPDATE user_credentials SET account_locked_until = $1, updated_at = now() WHERE user_id = $2
	`, until, userID)
	if err != nil {
		return mapErr(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)
