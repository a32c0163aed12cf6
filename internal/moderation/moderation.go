// Package moderation holds the role-gated item mutations: single delete,
// bulk delete and status change. Every operation checks the actor before
// touching a store, and image cleanup never blocks a row mutation.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/erazemk/lostfound/internal/metrics"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

// DefaultTimeout bounds each operation when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// ItemStore is the row store the workflow mutates.
type ItemStore interface {
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	ListItems(ctx context.Context, q store.ItemQuery) ([]model.Item, error)
	UpdateItemStatus(ctx context.Context, id int64, status model.Status) (bool, error)
	DeleteItem(ctx context.Context, id int64) (bool, error)
	DeleteItems(ctx context.Context, ids []int64) (int64, error)
}

// ObjectStore removes item images.
type ObjectStore interface {
	RemoveObjects(ctx context.Context, keys []string) (int64, error)
}

// Service runs moderation operations.
type Service struct {
	items   ItemStore
	objects ObjectStore
	metrics metrics.Recorder
	timeout time.Duration
}

// NewService returns a Service. A nil recorder discards metrics and a zero
// timeout uses DefaultTimeout.
func NewService(items ItemStore, objects ObjectStore, rec metrics.Recorder, timeout time.Duration) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{items: items, objects: objects, metrics: rec, timeout: timeout}
}

// Actions tells a client which mutations it may offer for an item.
type Actions struct {
	CanUpdateStatus bool `json:"can_update_status"`
	CanDelete       bool `json:"can_delete"`
}

// Permissions returns the actions actor may perform on item.
func Permissions(actor model.Identity, item *model.Item) Actions {
	ok := actor.CanModify(item)
	return Actions{CanUpdateStatus: ok, CanDelete: ok}
}

// Delete removes target and, best effort, its image. The row delete is
// attempted even when the image cannot be removed.
func (s *Service) Delete(ctx context.Context, actor model.Identity, target *model.Item) error {
	if target == nil {
		return &model.ValidationError{Field: "item", Message: "item is required"}
	}
	if !actor.CanModify(target) {
		return &model.AuthorizationError{Action: "delete item", ActorID: actor.ID}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.items.GetItem(ctx, target.ID)
	if err != nil {
		return &model.StoreError{Op: "get item", Err: err}
	}
	if current == nil {
		return model.ErrNotFound
	}

	if current.HasImage() {
		s.removeImages(ctx, []string{current.ImageRef}, "item_id", current.ID)
	}

	ok, err := s.items.DeleteItem(ctx, current.ID)
	if err != nil {
		return &model.StoreError{Op: "delete item", Err: err}
	}
	if !ok {
		return model.ErrNotFound
	}

	s.metrics.RecordItemsDeleted(1)
	slog.Info("item deleted", "item_id", current.ID, "actor_id", actor.ID)
	return nil
}

// BulkCriteria selects items for bulk deletion. Both dates are required
// (YYYY-MM-DD, inclusive). No categories means every category.
type BulkCriteria struct {
	DateStart  string
	DateEnd    string
	Categories []model.Category
}

// BulkResult summarizes a bulk delete.
type BulkResult struct {
	Matched       int   `json:"matched"`
	Deleted       int64 `json:"deleted"`
	ImagesRemoved int64 `json:"images_removed"`
}

// BulkDelete removes every item matching c with one select, one batched
// image removal and one batched row delete. Matching nothing is not an
// error; the result reports Matched == 0.
func (s *Service) BulkDelete(ctx context.Context, actor model.Identity, c BulkCriteria) (*BulkResult, error) {
	if !actor.IsAdmin() {
		return nil, &model.AuthorizationError{Action: "bulk delete", ActorID: actor.ID}
	}

	q, err := c.query()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	matched, err := s.items.ListItems(ctx, q)
	if err != nil {
		return nil, &model.StoreError{Op: "list items", Err: err}
	}

	result := &BulkResult{Matched: len(matched)}
	if len(matched) == 0 {
		slog.Info("bulk delete matched no items", "from", c.DateStart, "to", c.DateEnd, "actor_id", actor.ID)
		return result, nil
	}

	ids := make([]int64, 0, len(matched))
	var refs []string
	for _, item := range matched {
		ids = append(ids, item.ID)
		if item.HasImage() {
			refs = append(refs, item.ImageRef)
		}
	}

	if len(refs) > 0 {
		result.ImagesRemoved = s.removeImages(ctx, refs, "count", len(refs))
	}

	deleted, err := s.items.DeleteItems(ctx, ids)
	if err != nil {
		return nil, &model.StoreError{Op: "delete items", Err: err}
	}
	result.Deleted = deleted

	s.metrics.RecordItemsDeleted(int(deleted))
	slog.Info("bulk delete completed",
		"matched", result.Matched, "deleted", result.Deleted, "images_removed", result.ImagesRemoved,
		"actor_id", actor.ID)
	return result, nil
}

// UpdateStatus sets target's status and returns the updated item once the
// store has confirmed the write. Any status may move to any other.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Identity, target *model.Item, raw string) (*model.Item, error) {
	status, ok := model.ParseStatus(raw)
	if !ok {
		return nil, &model.ValidationError{Field: "status", Message: "status must be one of: lost, found, completed"}
	}
	if target == nil {
		return nil, &model.ValidationError{Field: "item", Message: "item is required"}
	}
	if !actor.CanModify(target) {
		return nil, &model.AuthorizationError{Action: "update status", ActorID: actor.ID}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.items.UpdateItemStatus(ctx, target.ID, status)
	if err != nil {
		return nil, &model.StoreError{Op: "update status", Err: err}
	}
	if !ok {
		return nil, model.ErrNotFound
	}

	updated := *target
	updated.Status = status

	s.metrics.RecordStatusChange(string(status))
	slog.Info("item status updated", "item_id", target.ID, "status", status, "actor_id", actor.ID)
	return &updated, nil
}

// removeImages deletes keys and returns how many were removed. Failures
// are logged and counted only.
func (s *Service) removeImages(ctx context.Context, keys []string, attrs ...any) int64 {
	n, err := s.objects.RemoveObjects(ctx, keys)
	if err != nil {
		s.metrics.RecordImageCleanupFailure()
		slog.Warn("image cleanup failed, objects left orphaned", append(attrs, "error", err)...)
		return 0
	}
	return n
}

func (c BulkCriteria) query() (store.ItemQuery, error) {
	if c.DateStart == "" {
		return store.ItemQuery{}, &model.ValidationError{Field: "date_start", Message: "start date is required"}
	}
	if c.DateEnd == "" {
		return store.ItemQuery{}, &model.ValidationError{Field: "date_end", Message: "end date is required"}
	}

	start, err := time.Parse(model.OccurredLayout, c.DateStart)
	if err != nil {
		return store.ItemQuery{}, &model.ValidationError{Field: "date_start", Message: fmt.Sprintf("start date must be in %s format", model.OccurredLayout)}
	}
	end, err := time.Parse(model.OccurredLayout, c.DateEnd)
	if err != nil {
		return store.ItemQuery{}, &model.ValidationError{Field: "date_end", Message: fmt.Sprintf("end date must be in %s format", model.OccurredLayout)}
	}
	if start.After(end) {
		return store.ItemQuery{}, &model.ValidationError{Field: "date_start", Message: "start date must not be after end date"}
	}

	var categories []model.Category
	for _, raw := range c.Categories {
		cat, ok := model.ParseCategory(string(raw))
		if !ok {
			return store.ItemQuery{}, &model.ValidationError{Field: "categories", Message: "category must be normal or emergency"}
		}
		if !slices.Contains(categories, cat) {
			categories = append(categories, cat)
		}
	}

	return store.ItemQuery{
		Categories:   categories,
		OccurredFrom: c.DateStart,
		OccurredTo:   c.DateEnd,
	}, nil
}
