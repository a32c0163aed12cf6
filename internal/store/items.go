package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/lostfound/internal/model"
)

const itemColumns = `id, owner_id, reporter_name, reporter_phone, title, description, place,
	occurred_at, category, status, image_ref, created_at`

// ItemQuery holds the predicates the store applies when listing items.
// Zero values mean "any". Occurred bounds are inclusive calendar dates in
// YYYY-MM-DD form.
type ItemQuery struct {
	Status       model.Status
	Categories   []model.Category
	OwnerID      int64
	OccurredFrom string
	OccurredTo   string
}

// CreateItem inserts a new item and returns the stored row.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item) (*model.Item, error) {
	var imageRef sql.NullString
	if item.ImageRef != "" {
		imageRef = sql.NullString{String: item.ImageRef, Valid: true}
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (owner_id, reporter_name, reporter_phone, title, description, place,
		                    occurred_at, category, status, image_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.OwnerID, item.ReporterName, item.ReporterPhone, item.Title, item.Description, item.Place,
		item.OccurredAt, item.Category, item.Status, imageRef,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns the items matching q, newest first.
func ListItems(ctx context.Context, db *sql.DB, q ItemQuery) ([]model.Item, error) {
	var where []string
	var args []any

	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	if len(q.Categories) > 0 {
		where = append(where, "category IN ("+placeholders(len(q.Categories))+")")
		for _, c := range q.Categories {
			args = append(args, c)
		}
	}
	if q.OwnerID != 0 {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.OccurredFrom != "" {
		where = append(where, "date(occurred_at) >= ?")
		args = append(args, q.OccurredFrom)
	}
	if q.OccurredTo != "" {
		where = append(where, "date(occurred_at) <= ?")
		args = append(args, q.OccurredTo)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItemStatus sets an item's status. It reports false if no row with
// that ID exists.
func UpdateItemStatus(ctx context.Context, db *sql.DB, id int64, status model.Status) (bool, error) {
	result, err := db.ExecContext(ctx, `UPDATE items SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return false, fmt.Errorf("updating item status: %w", err)
	}
	return affected(result)
}

// DeleteItem removes an item row. It reports false if no row with that ID
// exists.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting item: %w", err)
	}
	return affected(result)
}

// DeleteItems removes every item whose ID is in ids with a single statement
// and returns the number of rows removed.
func DeleteItems(ctx context.Context, db *sql.DB, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := db.ExecContext(ctx,
		`DELETE FROM items WHERE id IN (`+placeholders(len(ids))+`)`, args...,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting items: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted items: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var imageRef sql.NullString
	err := row.Scan(&item.ID, &item.OwnerID, &item.ReporterName, &item.ReporterPhone, &item.Title,
		&item.Description, &item.Place, &item.OccurredAt, &item.Category, &item.Status, &imageRef,
		&item.CreatedAt)
	if err != nil {
		return nil, err
	}
	item.ImageRef = imageRef.String
	return item, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("counting affected rows: %w", err)
	}
	return n > 0, nil
}
