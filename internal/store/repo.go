package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/lostfound/internal/model"
)

// ItemRepo exposes the item functions as methods so workflows can depend on
// a narrow interface instead of a database handle.
type ItemRepo struct {
	DB *sql.DB
}

func (r ItemRepo) CreateItem(ctx context.Context, item *model.Item) (*model.Item, error) {
	return CreateItem(ctx, r.DB, item)
}

func (r ItemRepo) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	return GetItem(ctx, r.DB, id)
}

func (r ItemRepo) ListItems(ctx context.Context, q ItemQuery) ([]model.Item, error) {
	return ListItems(ctx, r.DB, q)
}

func (r ItemRepo) UpdateItemStatus(ctx context.Context, id int64, status model.Status) (bool, error) {
	return UpdateItemStatus(ctx, r.DB, id, status)
}

func (r ItemRepo) DeleteItem(ctx context.Context, id int64) (bool, error) {
	return DeleteItem(ctx, r.DB, id)
}

func (r ItemRepo) DeleteItems(ctx context.Context, ids []int64) (int64, error) {
	return DeleteItems(ctx, r.DB, ids)
}

// ObjectRepo is the method form of the object functions.
type ObjectRepo struct {
	DB *sql.DB
}

func (r ObjectRepo) PutObject(ctx context.Context, key string, data []byte, mime string) error {
	return PutObject(ctx, r.DB, key, data, mime)
}

func (r ObjectRepo) RemoveObjects(ctx context.Context, keys []string) (int64, error) {
	return RemoveObjects(ctx, r.DB, keys)
}
