package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/lostfound/internal/model"
)

// CreateInvite issues a single-use admin invite that expires after ttl.
func CreateInvite(ctx context.Context, db *sql.DB, createdBy int64, ttl time.Duration) (*model.Invite, error) {
	inv := &model.Invite{
		Token:     uuid.NewString(),
		CreatedBy: createdBy,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO admin_invites (token, created_by, expires_at) VALUES (?, ?, ?)`,
		inv.Token, inv.CreatedBy, inv.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}
	return inv, nil
}

// GetInvite returns an invite by token, or nil if it does not exist.
func GetInvite(ctx context.Context, db *sql.DB, token string) (*model.Invite, error) {
	inv := &model.Invite{}
	var usedAt sql.NullTime
	var usedBy sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT token, created_by, expires_at, used_at, used_by FROM admin_invites WHERE token = ?`, token,
	).Scan(&inv.Token, &inv.CreatedBy, &inv.ExpiresAt, &usedAt, &usedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting invite: %w", err)
	}
	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}
	if usedBy.Valid {
		inv.UsedBy = &usedBy.Int64
	}
	return inv, nil
}

// consumeInvite marks token as used by userID. The conditional update is
// the only check, so two registrations racing for the same invite cannot
// both succeed.
func consumeInvite(ctx context.Context, tx *sql.Tx, token string, userID int64, now time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE admin_invites SET used_at = ?, used_by = ?
		 WHERE token = ? AND used_at IS NULL AND expires_at > ?`,
		now, userID, token, now,
	)
	if err != nil {
		return fmt.Errorf("consuming invite: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrInvalidInvite
	}
	return nil
}
