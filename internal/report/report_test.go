package report

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

var reporter = model.Identity{ID: 4, Email: "ana@example.com", Role: model.RoleUser}

func validRequest() Request {
	return Request{
		ReporterName:  "Ana Novak",
		ReporterPhone: "+386 40 123 456",
		Title:         "Black backpack",
		Description:   "Has a laptop inside",
		Place:         "Lecture hall 3",
		OccurredAt:    "2025-01-15",
		Category:      "normal",
		Status:        "lost",
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *store.ItemRepo, *store.ObjectRepo) {
	t.Helper()
	database := db.NewTestDB(t)
	items := &store.ItemRepo{DB: database}
	objects := &store.ObjectRepo{DB: database}
	return NewService(items, objects, nil, 0, time.Second), items, objects
}

func TestSubmitWithoutPhoto(t *testing.T) {
	svc, _, _ := newTestService(t)

	item, err := svc.Submit(context.Background(), reporter, validRequest(), nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if item.ID == 0 || item.OwnerID != reporter.ID {
		t.Errorf("expected stored item owned by reporter, got %+v", item)
	}
	if item.HasImage() {
		t.Error("expected no image")
	}
	if item.Status != model.StatusLost || item.Category != model.CategoryNormal {
		t.Errorf("unexpected status/category %q/%q", item.Status, item.Category)
	}
}

func TestSubmitWithPhoto(t *testing.T) {
	svc, _, objects := newTestService(t)
	data := pngBytes(t)

	item, err := svc.Submit(context.Background(), reporter, validRequest(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(item.ImageRef, "items/") || !strings.HasSuffix(item.ImageRef, ".png") {
		t.Errorf("unexpected image ref %q", item.ImageRef)
	}

	obj, err := store.GetObject(context.Background(), objects.DB, item.ImageRef)
	if err != nil || obj == nil {
		t.Fatalf("expected uploaded object, got %v, %v", obj, err)
	}
	if !bytes.Equal(obj.Data, data) || obj.MIME != "image/png" {
		t.Error("expected photo to be stored unmodified as image/png")
	}
}

func TestSubmitEmptyPhotoIsIgnored(t *testing.T) {
	svc, _, _ := newTestService(t)

	item, err := svc.Submit(context.Background(), reporter, validRequest(), bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if item.HasImage() {
		t.Error("expected empty upload to be treated as no photo")
	}
}

func TestSubmitRejectsBadPhoto(t *testing.T) {
	svc, items, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), reporter, validRequest(), strings.NewReader("GIF89a not really"))
	var verr *model.ValidationError
	if !errors.As(err, &verr) || verr.Field != "photo" {
		t.Fatalf("expected photo ValidationError, got %v", err)
	}

	list, _ := items.ListItems(context.Background(), store.ItemQuery{})
	if len(list) != 0 {
		t.Error("expected no item to be created")
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"missing title", func(r *Request) { r.Title = "" }, "title"},
		{"markup-only title", func(r *Request) { r.Title = "<b></b>" }, "title"},
		{"bad phone", func(r *Request) { r.ReporterPhone = "call me maybe" }, "reporter_phone"},
		{"bad date", func(r *Request) { r.OccurredAt = "15.01.2025" }, "occurred_at"},
		{"bad category", func(r *Request) { r.Category = "both" }, "category"},
		{"completed on create", func(r *Request) { r.Status = "completed" }, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := svc.Submit(context.Background(), reporter, req, nil)
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestSubmitStripsMarkup(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := validRequest()
	req.Title = "<script>alert(1)</script>Red scarf"
	req.Description = "Found near <b>Tom & Jerry</b> poster"

	item, err := svc.Submit(context.Background(), reporter, req, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if item.Title != "Red scarf" {
		t.Errorf("expected markup stripped from title, got %q", item.Title)
	}
	if item.Description != "Found near Tom & Jerry poster" {
		t.Errorf("expected plain description, got %q", item.Description)
	}
}

func TestSubmitStripsEncodedMarkup(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"encoded script", "&lt;script&gt;alert(1)&lt;/script&gt;Scarf", "Scarf"},
		{"double encoded tag", "&amp;lt;b&amp;gt;Umbrella&amp;lt;/b&amp;gt;", "Umbrella"},
		{"encoded img", "Keys &lt;img src=x onerror=alert(1)&gt;", "Keys"},
		{"plain ampersand", "Tom &amp; Jerry mug", "Tom & Jerry mug"},
		{"literal less than", "Gloves 3 < 4", "Gloves 3 < 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.Title = tt.title
			req.Description = "&lt;img src=x onerror=alert(1)&gt;"

			item, err := svc.Submit(context.Background(), reporter, req, nil)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if item.Title != tt.want {
				t.Errorf("expected title %q, got %q", tt.want, item.Title)
			}
			if item.Description != "" {
				t.Errorf("expected encoded markup removed from description, got %q", item.Description)
			}
		})
	}
}

func TestSubmitRequiresIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), model.Identity{}, validRequest(), nil)
	if !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden for anonymous report, got %v", err)
	}
}

type failingItems struct{}

func (failingItems) CreateItem(context.Context, *model.Item) (*model.Item, error) {
	return nil, errors.New("disk full")
}

func TestSubmitRemovesPhotoWhenInsertFails(t *testing.T) {
	database := db.NewTestDB(t)
	objects := &store.ObjectRepo{DB: database}
	svc := NewService(failingItems{}, objects, nil, 0, time.Second)

	_, err := svc.Submit(context.Background(), reporter, validRequest(), bytes.NewReader(pngBytes(t)))
	var storeErr *model.StoreError
	if !errors.As(err, &storeErr) || err.Error() != "disk full" {
		t.Fatalf("expected StoreError with store message, got %v", err)
	}

	var n int
	database.QueryRow(`SELECT COUNT(*) FROM objects`).Scan(&n)
	if n != 0 {
		t.Errorf("expected uploaded photo to be removed, found %d objects", n)
	}
}
