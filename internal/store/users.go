package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/reachpoint/reachpoint/internal/types"
)

// Users provides access to API accounts. Accounts live in a relational
// table rather than the document store so the email uniqueness constraint
// is enforced by the database.
type Users struct {
	s *Store
}

// Users returns the account table handle.
func (s *Store) Users() *Users {
	return &Users{s: s}
}

// Create inserts a new account. Returns types.ErrDuplicate when the email
// is already registered.
func (u *Users) Create(ctx context.Context, user types.User) error {
	_, err := u.s.q.Exec(ctx, "insert-user",
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return types.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ByID fetches an account by id. Returns types.ErrNotFound when absent.
func (u *Users) ByID(ctx context.Context, id types.UserID) (*types.User, error) {
	var user types.User
	err := u.s.q.Get(ctx, "get-user-by-id", &user, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return &user, nil
}

// ByEmail fetches an account by email. Returns types.ErrNotFound when
// absent.
func (u *Users) ByEmail(ctx context.Context, email string) (*types.User, error) {
	var user types.User
	err := u.s.q.Get(ctx, "get-user-by-email", &user, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return &user, nil
}

// isUniqueViolation detects a unique constraint failure from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
