package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/lostfound/internal/model"
)

// PutObject stores data under key, replacing any previous object.
func PutObject(ctx context.Context, db *sql.DB, key string, data []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO objects (key, data, mime) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data, mime = excluded.mime`,
		key, data, mime,
	)
	if err != nil {
		return fmt.Errorf("storing object: %w", err)
	}
	return nil
}

// GetObject returns the object stored under key, or nil if there is none.
func GetObject(ctx context.Context, db *sql.DB, key string) (*model.Object, error) {
	obj := &model.Object{Key: key}
	err := db.QueryRowContext(ctx,
		`SELECT data, mime, created_at FROM objects WHERE key = ?`, key,
	).Scan(&obj.Data, &obj.MIME, &obj.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting object: %w", err)
	}
	return obj, nil
}

// RemoveObjects deletes every object in keys with a single statement and
// returns how many existed. Missing keys are not an error.
func RemoveObjects(ctx context.Context, db *sql.DB, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	result, err := db.ExecContext(ctx,
		`DELETE FROM objects WHERE key IN (`+placeholders(len(keys))+`)`, args...,
	)
	if err != nil {
		return 0, fmt.Errorf("removing objects: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting removed objects: %w", err)
	}
	return n, nil
}
