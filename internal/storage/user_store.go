package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfromawe/hyperhash/pkg/pg"
)

// User is an account row. Email comparisons are case-insensitive, the
// stored value keeps the casing the user registered with.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserStore persists users in PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a user store on the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user. Returns ErrEmailTaken when the email is
// already registered under any casing.
func (s *UserStore) Create(ctx context.Context, user *User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, email_verified)
		VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.EmailVerified)
	if err != nil {
		if pg.IsDuplicateKey(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("storage: create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by primary key.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, email_verified, created_at, updated_at
		FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, email_verified, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)`, email)
}

// SetEmailVerified marks the user's email address as confirmed.
func (s *UserStore) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET email_verified = TRUE, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: verify email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserStore) getUser(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("storage: get user: %w", err)
	}
	return &u, nil
}
