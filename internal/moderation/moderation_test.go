package moderation

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

type fakeItems struct {
	items map[int64]*model.Item

	gets, lists, updates, deletes, bulkDeletes int

	lastQuery store.ItemQuery
	deleteErr error
}

func newFakeItems(items ...model.Item) *fakeItems {
	f := &fakeItems{items: map[int64]*model.Item{}}
	for i := range items {
		it := items[i]
		f.items[it.ID] = &it
	}
	return f
}

func (f *fakeItems) calls() int {
	return f.gets + f.lists + f.updates + f.deletes + f.bulkDeletes
}

func (f *fakeItems) GetItem(_ context.Context, id int64) (*model.Item, error) {
	f.gets++
	it, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (f *fakeItems) ListItems(_ context.Context, q store.ItemQuery) ([]model.Item, error) {
	f.lists++
	f.lastQuery = q
	var out []model.Item
	for id := int64(1); id <= int64(len(f.items))+100; id++ {
		it, ok := f.items[id]
		if !ok {
			continue
		}
		if q.OccurredFrom != "" && it.OccurredAt < q.OccurredFrom {
			continue
		}
		if q.OccurredTo != "" && it.OccurredAt > q.OccurredTo {
			continue
		}
		if len(q.Categories) > 0 && !slices.Contains(q.Categories, it.Category) {
			continue
		}
		out = append(out, *it)
	}
	return out, nil
}

func (f *fakeItems) UpdateItemStatus(_ context.Context, id int64, status model.Status) (bool, error) {
	f.updates++
	it, ok := f.items[id]
	if !ok {
		return false, nil
	}
	it.Status = status
	return true, nil
}

func (f *fakeItems) DeleteItem(_ context.Context, id int64) (bool, error) {
	f.deletes++
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	if _, ok := f.items[id]; !ok {
		return false, nil
	}
	delete(f.items, id)
	return true, nil
}

func (f *fakeItems) DeleteItems(_ context.Context, ids []int64) (int64, error) {
	f.bulkDeletes++
	var n int64
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			delete(f.items, id)
			n++
		}
	}
	return n, nil
}

type fakeObjects struct {
	keys    map[string]bool
	calls   int
	removed [][]string
	err     error
}

func newFakeObjects(keys ...string) *fakeObjects {
	f := &fakeObjects{keys: map[string]bool{}}
	for _, k := range keys {
		f.keys[k] = true
	}
	return f
}

func (f *fakeObjects) RemoveObjects(_ context.Context, keys []string) (int64, error) {
	f.calls++
	f.removed = append(f.removed, keys)
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			delete(f.keys, k)
			n++
		}
	}
	return n, nil
}

type countingRecorder struct {
	deleted         int
	cleanupFailures int
	statusChanges   []string
}

func (r *countingRecorder) RecordItemReported(string)                {}
func (r *countingRecorder) RecordItemsDeleted(n int)                 { r.deleted += n }
func (r *countingRecorder) RecordImageCleanupFailure()               { r.cleanupFailures++ }
func (r *countingRecorder) RecordStatusChange(s string)              { r.statusChanges = append(r.statusChanges, s) }
func (r *countingRecorder) RecordLogin(bool)                         {}
func (r *countingRecorder) RecordRequest(string, int, time.Duration) {}

var (
	admin    = model.Identity{ID: 1, Role: model.RoleAdmin}
	owner    = model.Identity{ID: 2, Role: model.RoleUser}
	stranger = model.Identity{ID: 3, Role: model.RoleEmployee}
)

func TestDeleteWithoutImage(t *testing.T) {
	items := newFakeItems(model.Item{ID: 10, OwnerID: owner.ID})
	objects := newFakeObjects()
	svc := NewService(items, objects, nil, time.Second)

	if err := svc.Delete(context.Background(), owner, &model.Item{ID: 10, OwnerID: owner.ID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if objects.calls != 0 {
		t.Errorf("expected zero object store calls, got %d", objects.calls)
	}
	if items.deletes != 1 {
		t.Errorf("expected one row delete, got %d", items.deletes)
	}
	if _, ok := items.items[10]; ok {
		t.Error("expected item to be deleted")
	}
}

func TestDeleteRemovesImageFirst(t *testing.T) {
	items := newFakeItems(model.Item{ID: 10, OwnerID: owner.ID, ImageRef: "items/a.jpg"})
	objects := newFakeObjects("items/a.jpg")
	svc := NewService(items, objects, nil, time.Second)

	// The caller's copy has no image ref; the workflow must re-read it.
	if err := svc.Delete(context.Background(), admin, &model.Item{ID: 10, OwnerID: owner.ID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if objects.calls != 1 || objects.removed[0][0] != "items/a.jpg" {
		t.Errorf("expected image removal of items/a.jpg, got %v", objects.removed)
	}
	if objects.keys["items/a.jpg"] {
		t.Error("expected image to be removed")
	}
}

func TestDeleteImageFailureDoesNotBlockRow(t *testing.T) {
	items := newFakeItems(model.Item{ID: 10, OwnerID: owner.ID, ImageRef: "items/a.jpg"})
	objects := newFakeObjects()
	objects.err = errors.New("bucket unavailable")
	rec := &countingRecorder{}
	svc := NewService(items, objects, rec, time.Second)

	if err := svc.Delete(context.Background(), owner, &model.Item{ID: 10, OwnerID: owner.ID}); err != nil {
		t.Fatalf("expected image failure to be swallowed, got %v", err)
	}
	if items.deletes != 1 {
		t.Errorf("expected row delete to be attempted, got %d", items.deletes)
	}
	if rec.cleanupFailures != 1 {
		t.Errorf("expected cleanup failure to be counted, got %d", rec.cleanupFailures)
	}
	if rec.deleted != 1 {
		t.Errorf("expected one deletion recorded, got %d", rec.deleted)
	}
}

func TestDeleteRejectsNonOwnerBeforeStoreCalls(t *testing.T) {
	items := newFakeItems(model.Item{ID: 10, OwnerID: owner.ID, ImageRef: "items/a.jpg"})
	objects := newFakeObjects("items/a.jpg")
	svc := NewService(items, objects, nil, time.Second)

	err := svc.Delete(context.Background(), stranger, &model.Item{ID: 10, OwnerID: owner.ID})
	var authErr *model.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if !errors.Is(err, model.ErrForbidden) {
		t.Error("expected error to match ErrForbidden")
	}
	if items.calls() != 0 || objects.calls != 0 {
		t.Errorf("expected no store calls, got items=%d objects=%d", items.calls(), objects.calls)
	}
}

func TestDeleteMissingItem(t *testing.T) {
	items := newFakeItems()
	svc := NewService(items, newFakeObjects(), nil, time.Second)

	err := svc.Delete(context.Background(), admin, &model.Item{ID: 99})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if items.deletes != 0 {
		t.Errorf("expected no row delete for missing item, got %d", items.deletes)
	}
}

func TestDeleteStoreErrorSurfacesMessage(t *testing.T) {
	items := newFakeItems(model.Item{ID: 10, OwnerID: owner.ID})
	items.deleteErr = errors.New("permission denied for table items")
	svc := NewService(items, newFakeObjects(), nil, time.Second)

	err := svc.Delete(context.Background(), owner, &model.Item{ID: 10, OwnerID: owner.ID})
	var storeErr *model.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if err.Error() != "permission denied for table items" {
		t.Errorf("expected store message verbatim, got %q", err.Error())
	}
}

func bulkFixture() (*fakeItems, *fakeObjects) {
	items := newFakeItems(
		model.Item{ID: 1, OccurredAt: "2025-01-01", Category: model.CategoryEmergency, ImageRef: "items/1.jpg"},
		model.Item{ID: 2, OccurredAt: "2025-01-15", Category: model.CategoryEmergency, ImageRef: "items/2.jpg"},
		model.Item{ID: 3, OccurredAt: "2025-01-31", Category: model.CategoryEmergency},
		model.Item{ID: 4, OccurredAt: "2025-01-15", Category: model.CategoryNormal, ImageRef: "items/4.jpg"},
		model.Item{ID: 5, OccurredAt: "2025-02-01", Category: model.CategoryEmergency, ImageRef: "items/5.jpg"},
	)
	objects := newFakeObjects("items/1.jpg", "items/2.jpg", "items/4.jpg", "items/5.jpg")
	return items, objects
}

func TestBulkDeleteByRangeAndCategory(t *testing.T) {
	items, objects := bulkFixture()
	rec := &countingRecorder{}
	svc := NewService(items, objects, rec, time.Second)

	res, err := svc.BulkDelete(context.Background(), admin, BulkCriteria{
		DateStart:  "2025-01-01",
		DateEnd:    "2025-01-31",
		Categories: []model.Category{model.CategoryEmergency},
	})
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}

	if res.Matched != 3 || res.Deleted != 3 || res.ImagesRemoved != 2 {
		t.Errorf("expected 3 matched, 3 deleted, 2 images, got %+v", res)
	}
	if items.lists != 1 || items.bulkDeletes != 1 || objects.calls != 1 {
		t.Errorf("expected one select, one row batch, one object batch; got %d, %d, %d",
			items.lists, items.bulkDeletes, objects.calls)
	}
	if len(objects.removed[0]) != 2 {
		t.Errorf("expected only non-null refs to be removed, got %v", objects.removed[0])
	}
	for _, id := range []int64{4, 5} {
		if _, ok := items.items[id]; !ok {
			t.Errorf("expected item %d to survive", id)
		}
	}
	if !objects.keys["items/4.jpg"] || !objects.keys["items/5.jpg"] {
		t.Error("expected non-matching images to survive")
	}
	if rec.deleted != 3 {
		t.Errorf("expected 3 deletions recorded, got %d", rec.deleted)
	}
}

func TestBulkDeleteAllCategories(t *testing.T) {
	items, objects := bulkFixture()
	svc := NewService(items, objects, nil, time.Second)

	res, err := svc.BulkDelete(context.Background(), admin, BulkCriteria{
		DateStart:  "2025-01-01",
		DateEnd:    "2025-01-31",
		Categories: []model.Category{model.CategoryNormal, model.CategoryEmergency, model.CategoryNormal},
	})
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if res.Matched != 4 {
		t.Errorf("expected 4 matched, got %d", res.Matched)
	}
	if len(items.lastQuery.Categories) != 2 {
		t.Errorf("expected duplicate categories to collapse, got %v", items.lastQuery.Categories)
	}
}

func TestBulkDeleteNoMatches(t *testing.T) {
	items, objects := bulkFixture()
	svc := NewService(items, objects, nil, time.Second)

	res, err := svc.BulkDelete(context.Background(), admin, BulkCriteria{DateStart: "2024-01-01", DateEnd: "2024-01-31"})
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if res.Matched != 0 {
		t.Errorf("expected no matches, got %d", res.Matched)
	}
	if items.bulkDeletes != 0 || objects.calls != 0 {
		t.Error("expected no deletions when nothing matched")
	}
}

func TestBulkDeleteValidation(t *testing.T) {
	tests := []struct {
		name  string
		c     BulkCriteria
		field string
	}{
		{"missing start", BulkCriteria{DateEnd: "2025-01-31"}, "date_start"},
		{"missing end", BulkCriteria{DateStart: "2025-01-01"}, "date_end"},
		{"bad start", BulkCriteria{DateStart: "01/01/2025", DateEnd: "2025-01-31"}, "date_start"},
		{"start after end", BulkCriteria{DateStart: "2025-02-01", DateEnd: "2025-01-01"}, "date_start"},
		{"bad category", BulkCriteria{DateStart: "2025-01-01", DateEnd: "2025-01-31", Categories: []model.Category{"urgent"}}, "categories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, objects := bulkFixture()
			svc := NewService(items, objects, nil, time.Second)

			_, err := svc.BulkDelete(context.Background(), admin, tt.c)
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if items.calls() != 0 || objects.calls != 0 {
				t.Error("expected no store calls on validation failure")
			}
		})
	}
}

func TestBulkDeleteRequiresAdmin(t *testing.T) {
	items, objects := bulkFixture()
	svc := NewService(items, objects, nil, time.Second)

	_, err := svc.BulkDelete(context.Background(), owner, BulkCriteria{DateStart: "2025-01-01", DateEnd: "2025-01-31"})
	if !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if items.calls() != 0 {
		t.Error("expected no store calls for non-admin")
	}
}

func TestBulkDeleteImageFailureStillDeletesRows(t *testing.T) {
	items, objects := bulkFixture()
	objects.err = errors.New("storage offline")
	rec := &countingRecorder{}
	svc := NewService(items, objects, rec, time.Second)

	res, err := svc.BulkDelete(context.Background(), admin, BulkCriteria{DateStart: "2025-01-01", DateEnd: "2025-01-31"})
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if res.Deleted != 4 || res.ImagesRemoved != 0 {
		t.Errorf("expected rows deleted without images, got %+v", res)
	}
	if rec.cleanupFailures != 1 {
		t.Errorf("expected one cleanup failure, got %d", rec.cleanupFailures)
	}
}

func TestUpdateStatus(t *testing.T) {
	items := newFakeItems(model.Item{ID: 10, OwnerID: owner.ID, Status: model.StatusLost})
	rec := &countingRecorder{}
	svc := NewService(items, newFakeObjects(), rec, time.Second)
	target := &model.Item{ID: 10, OwnerID: owner.ID, Status: model.StatusLost}

	// Any-to-any, including out of completed.
	for _, s := range []string{"found", "lost", "completed", "found"} {
		updated, err := svc.UpdateStatus(context.Background(), owner, target, s)
		if err != nil {
			t.Fatalf("UpdateStatus(%s): %v", s, err)
		}
		if string(updated.Status) != s {
			t.Errorf("expected returned status %s, got %s", s, updated.Status)
		}
		if string(items.items[10].Status) != s {
			t.Errorf("expected stored status %s, got %s", s, items.items[10].Status)
		}
	}
	if target.Status != model.StatusLost {
		t.Error("expected caller's item to be left untouched")
	}
	if len(rec.statusChanges) != 4 {
		t.Errorf("expected 4 status changes recorded, got %d", len(rec.statusChanges))
	}
}

func TestUpdateStatusRejections(t *testing.T) {
	items := newFakeItems(model.Item{ID: 10, OwnerID: owner.ID, Status: model.StatusLost})
	svc := NewService(items, newFakeObjects(), nil, time.Second)
	target := &model.Item{ID: 10, OwnerID: owner.ID}

	_, err := svc.UpdateStatus(context.Background(), owner, target, "resolved")
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown status, got %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), stranger, target, "found")
	if !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden for stranger, got %v", err)
	}
	if items.calls() != 0 {
		t.Errorf("expected no store calls, got %d", items.calls())
	}

	_, err = svc.UpdateStatus(context.Background(), admin, &model.Item{ID: 99}, "found")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing item, got %v", err)
	}
}

func TestPermissions(t *testing.T) {
	item := &model.Item{ID: 1, OwnerID: owner.ID}

	if a := Permissions(owner, item); !a.CanDelete || !a.CanUpdateStatus {
		t.Errorf("expected owner to have all actions, got %+v", a)
	}
	if a := Permissions(admin, item); !a.CanDelete {
		t.Errorf("expected admin to delete, got %+v", a)
	}
	if a := Permissions(stranger, item); a.CanDelete || a.CanUpdateStatus {
		t.Errorf("expected stranger to have no actions, got %+v", a)
	}
}
