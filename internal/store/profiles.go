package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/lostfound/internal/model"
)

// EnsureProfile returns the profile for id, creating a default one first if
// none exists. Concurrent callers converge on the same row.
func EnsureProfile(ctx context.Context, db *sql.DB, id int64, email string) (*model.Identity, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO profiles (id, email) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
		id, normalizeEmail(email),
	)
	if err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}

	p, err := GetProfile(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile %d vanished after insert", id)
	}
	return p, nil
}

// GetProfile returns the profile for id, or nil if it does not exist. The
// role is returned as stored; callers normalize it with model.ParseRole.
func GetProfile(ctx context.Context, db *sql.DB, id int64) (*model.Identity, error) {
	p := &model.Identity{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, name, role FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Email, &p.Name, &p.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by ID.
func ListProfiles(ctx context.Context, db *sql.DB) ([]model.Identity, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, email, name, role FROM profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	profiles := []model.Identity{}
	for rows.Next() {
		var p model.Identity
		if err := rows.Scan(&p.ID, &p.Email, &p.Name, &p.Role); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SetRoleByEmail changes the role of the account registered under email.
// It reports false if there is no such account, and returns
// model.ErrLastAdmin instead of leaving the service without an admin.
func SetRoleByEmail(ctx context.Context, db *sql.DB, email string, role model.Role) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	var current sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT u.id, p.role FROM users u LEFT JOIN profiles p ON p.id = u.id WHERE u.email = ?`,
		normalizeEmail(email),
	).Scan(&id, &current)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting user by email: %w", err)
	}

	if role != model.RoleAdmin && current.String == string(model.RoleAdmin) {
		var admins int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM profiles WHERE role = ?`, model.RoleAdmin,
		).Scan(&admins)
		if err != nil {
			return false, fmt.Errorf("counting admins: %w", err)
		}
		if admins <= 1 {
			return false, model.ErrLastAdmin
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, role) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET role = excluded.role`,
		id, normalizeEmail(email), role,
	)
	if err != nil {
		return false, fmt.Errorf("setting role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing role: %w", err)
	}
	return true, nil
}
