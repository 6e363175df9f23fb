package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/domain/repository"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, COALESCE(first_name, ''), COALESCE(last_name, ''),
		is_active, is_email_verified, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.IsActive, &u.IsEmailVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt); err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (username, email, first_name, last_name, is_active, is_email_verified)
		VALUES ($1, lower($2), NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		RETURNING id, created_at, updated_at
	`, u.Username, u.Email, u.FirstName, u.LastName, u.IsActive, u.IsEmailVerified)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapErr(err)
	}
	return nil
}

// CreateWithCredential inserts the user and its credential in one transaction.
func (r *UserRepository) CreateWithCredential(ctx context.Context, u *entity.User, c *entity.Credential) error {
	created := *u
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := NewUserRepository(tx).Create(ctx, &created); err != nil {
			return err
		}
		c.UserID = created.ID
		return NewCredentialRepository(tx).Create(ctx, c)
	})
	if err != nil {
		c.UserID = ""
		return err
	}
	*u = created
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (r *UserRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return ok, nil
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, email)
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1))`, username)
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	u.UpdatedAt = time.Now().UTC()

	res, err := r.db.Exec(ctx, `
		UPDATE users
		SET first_name = NULLIF($1, ''), last_name = NULLIF($2, ''), is_active = $3,
		    is_email_verified = $4, updated_at = $5
		WHERE id = $6
	`, u.FirstName, u.LastName, u.IsActive, u.IsEmailVerified, u.UpdatedAt, u.ID)
	if err != nil {
		return mapErr(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return mapErr(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
