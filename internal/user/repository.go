package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, password_digest, role, status, company_id, refresh_token_hash, last_logged_on, created_at, updated_at`

// Repository handles user data operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new user repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// FindByEmail finds a user by email address. The caller passes the
// normalized (trimmed, lower-cased) form; emails are stored that way.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = $1`

	err := r.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // User not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return &user, nil
}

// FindByID finds a user by ID
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil // not a user id we could have issued
	}

	var user User
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // User not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return &user, nil
}

// Create inserts a new user, assigning an ID when empty
func (r *Repository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now

	query := `INSERT INTO users (id, email, password_digest, role, status, company_id, created_at, updated_at)
			  VALUES (:id, :email, :password_digest, :role, :status, :company_id, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateStatus changes the account status (approval, suspension)
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	query := `UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s not found", id)
	}
	return nil
}

// UpdateLastLoggedOn updates the last_logged_on timestamp
func (r *Repository) UpdateLastLoggedOn(ctx context.Context, id string) error {
	query := `UPDATE users SET last_logged_on = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last logged on: %w", err)
	}
	return nil
}

// SetRefreshTokenHash stores the reference to the user's only valid
// refresh token, superseding whatever was stored before.
func (r *Repository) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	query := `UPDATE users SET refresh_token_hash = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to store refresh token reference: %w", err)
	}
	return nil
}

// SwapRefreshTokenHash replaces oldHash with newHash only if oldHash is
// still the stored reference. Postgres row locking on the conditional
// UPDATE means at most one of several concurrent swaps from the same
// oldHash reports true.
func (r *Repository) SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	query := `UPDATE users SET refresh_token_hash = $1, updated_at = $2
			  WHERE id = $3 AND refresh_token_hash = $4`
	res, err := r.db.ExecContext(ctx, query, newHash, time.Now(), id, oldHash)
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token reference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// ClearRefreshTokenHash revokes the user's refresh token
func (r *Repository) ClearRefreshTokenHash(ctx context.Context, id string) error {
	query := `UPDATE users SET refresh_token_hash = NULL, updated_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to clear refresh token reference: %w", err)
	}
	return nil
}

// RecordLoginAttempt writes an audit row for a login attempt
func (r *Repository) RecordLoginAttempt(ctx context.Context, email, ipAddress, method string, success bool) error {
	query := `INSERT INTO login_attempts (email, ip_address, method, success, attempted_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, email, ipAddress, method, success, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// RecentLoginAttempts lists attempts for an email since the given time
func (r *Repository) RecentLoginAttempts(ctx context.Context, email string, since time.Time) ([]LoginAttempt, error) {
	var attempts []LoginAttempt
	query := `SELECT id, email, ip_address, method, success, attempted_at
			  FROM login_attempts
			  WHERE email = $1 AND attempted_at >= $2
			  ORDER BY attempted_at DESC`

	if err := r.db.SelectContext(ctx, &attempts, query, email, since); err != nil {
		return nil, fmt.Errorf("failed to get recent login attempts: %w", err)
	}
	return attempts, nil
}
