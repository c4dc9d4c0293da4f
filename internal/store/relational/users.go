package relational

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
)

// EnsureAccountSchema creates the users and spaces tables. Email uniqueness
// is case-insensitive via citext; ids default from pgcrypto. Split from
// EnsureSchema so deployments that keep accounts in an external system can
// skip it.
func (s *Store) EnsureAccountSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE EXTENSION IF NOT EXISTS citext`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			email CITEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS spaces (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(user_id, name)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_spaces_one_default
			ON spaces(user_id) WHERE is_default`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return apperr.New("relational.EnsureAccountSchema", apperr.Internal, err)
		}
	}
	return nil
}

// CreateUser registers a user and their default space in one transaction.
// A duplicate email surfaces Conflict.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return User{}, apperr.New("relational.CreateUser", apperr.Internal, err)
	}
	defer tx.Rollback(ctx)

	var u User
	err = tx.QueryRow(ctx, `
INSERT INTO users(email, password_hash) VALUES ($1, $2)
RETURNING id, email, created_at, updated_at`, email, passwordHash).
		Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, apperr.New("relational.CreateUser", apperr.Conflict,
				fmt.Errorf("email already registered"))
		}
		return User{}, apperr.New("relational.CreateUser", apperr.Internal, err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO spaces(user_id, name, is_default) VALUES ($1, 'Default', true)`, u.ID); err != nil {
		return User{}, apperr.New("relational.CreateUser", apperr.Internal, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, apperr.New("relational.CreateUser", apperr.Internal, err)
	}
	return u, nil
}

// GetUserByEmail looks a user up case-insensitively. Missing ⇒ NotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.New("relational.GetUserByEmail", apperr.NotFound, nil)
	}
	if err != nil {
		return User{}, apperr.New("relational.GetUserByEmail", apperr.Internal, err)
	}
	return u, nil
}

// CreateSpace adds a named space for a user. A duplicate (user, name)
// surfaces Conflict.
func (s *Store) CreateSpace(ctx context.Context, userID, name string) (Space, error) {
	var sp Space
	err := s.pool.QueryRow(ctx, `
INSERT INTO spaces(user_id, name) VALUES ($1, $2)
RETURNING id, user_id, name, is_default, created_at`, userID, name).
		Scan(&sp.ID, &sp.UserID, &sp.Name, &sp.IsDefault, &sp.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Space{}, apperr.New("relational.CreateSpace", apperr.Conflict,
				fmt.Errorf("space %q already exists", name))
		}
		return Space{}, apperr.New("relational.CreateSpace", apperr.Internal, err)
	}
	return sp, nil
}

// ListSpaces returns a user's spaces, default first then by name.
func (s *Store) ListSpaces(ctx context.Context, userID string) ([]Space, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, name, is_default, created_at FROM spaces
WHERE user_id = $1 ORDER BY is_default DESC, name`, userID)
	if err != nil {
		return nil, apperr.New("relational.ListSpaces", apperr.Internal, err)
	}
	defer rows.Close()
	var out []Space
	for rows.Next() {
		var sp Space
		if err := rows.Scan(&sp.ID, &sp.UserID, &sp.Name, &sp.IsDefault, &sp.CreatedAt); err != nil {
			return nil, apperr.New("relational.ListSpaces", apperr.Internal, err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
