package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/lostfound/internal/model"
)

// NewIdentity describes an account to be registered.
type NewIdentity struct {
	Email        string
	PasswordHash string
	Name         string
	Role         model.Role
	// InviteToken, when set, must name an unused and unexpired admin invite.
	// It is consumed in the same transaction and the identity becomes admin.
	InviteToken string
}

// CreateIdentity creates the credentials row and the profile row for a new
// account in a single transaction.
func CreateIdentity(ctx context.Context, db *sql.DB, n NewIdentity) (*model.Identity, error) {
	email := normalizeEmail(n.Email)
	role := n.Role
	if role == "" {
		role = model.RoleUser
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var taken int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("checking email: %w", err)
	}
	if taken > 0 {
		return nil, model.ErrEmailTaken
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES (?, ?)`,
		email, n.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	if n.InviteToken != "" {
		if err := consumeInvite(ctx, tx, n.InviteToken, id, time.Now().UTC()); err != nil {
			return nil, err
		}
		role = model.RoleAdmin
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, name, role) VALUES (?, ?, ?, ?)`,
		id, email, n.Name, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing identity: %w", err)
	}

	return &model.Identity{ID: id, Email: email, Name: n.Name, Role: role}, nil
}

// GetUser returns the credentials row by ID, or nil if it does not exist.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the credentials row by email, or nil if it does
// not exist. Emails compare case-insensitively.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// CountUsers returns the number of registered accounts.
func CountUsers(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
