// Package report creates item reports with an optional photo.
package report

import (
	"context"
	"errors"
	"html"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/erazemk/lostfound/internal/imaging"
	"github.com/erazemk/lostfound/internal/metrics"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/validation"
)

// DefaultTimeout bounds a submission when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// ItemStore inserts item rows.
type ItemStore interface {
	CreateItem(ctx context.Context, item *model.Item) (*model.Item, error)
}

// ObjectStore holds uploaded photos.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, mime string) error
	RemoveObjects(ctx context.Context, keys []string) (int64, error)
}

// Request is the report form.
type Request struct {
	ReporterName  string `json:"reporter_name" validate:"required,max=100"`
	ReporterPhone string `json:"reporter_phone" validate:"required,phone"`
	Title         string `json:"title" validate:"required,max=120"`
	Description   string `json:"description" validate:"max=2000"`
	Place         string `json:"place" validate:"required,max=200"`
	OccurredAt    string `json:"occurred_at" validate:"required,datetime=2006-01-02"`
	Category      string `json:"category" validate:"required,oneof=normal emergency"`
	Status        string `json:"status" validate:"required,oneof=lost found"`
}

// Service submits reports.
type Service struct {
	items    ItemStore
	objects  ObjectStore
	policy   *bluemonday.Policy
	metrics  metrics.Recorder
	maxBytes int64
	timeout  time.Duration
}

// NewService returns a Service. maxBytes limits photo size; zero uses the
// imaging default.
func NewService(items ItemStore, objects ObjectStore, rec metrics.Recorder, maxBytes int64, timeout time.Duration) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		items:    items,
		objects:  objects,
		policy:   bluemonday.StrictPolicy(),
		metrics:  rec,
		maxBytes: maxBytes,
		timeout:  timeout,
	}
}

// Submit validates req, stores the photo if there is one and inserts the
// item owned by owner. A nil photo reports an item without an image.
func (s *Service) Submit(ctx context.Context, owner model.Identity, req Request, photo io.Reader) (*model.Item, error) {
	if owner.ID == 0 {
		return nil, &model.AuthorizationError{Action: "report item"}
	}

	req = s.clean(req)
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}

	var p *imaging.Photo
	if photo != nil {
		var err error
		p, err = imaging.Inspect(photo, s.maxBytes)
		if err != nil {
			if errors.Is(err, imaging.ErrEmpty) {
				p = nil
			} else {
				return nil, &model.ValidationError{Field: "photo", Message: err.Error()}
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	item := &model.Item{
		OwnerID:       owner.ID,
		ReporterName:  req.ReporterName,
		ReporterPhone: req.ReporterPhone,
		Title:         req.Title,
		Description:   req.Description,
		Place:         req.Place,
		OccurredAt:    req.OccurredAt,
		Category:      model.Category(req.Category),
		Status:        model.Status(req.Status),
	}

	if p != nil {
		item.ImageRef = "items/" + uuid.NewString() + p.Ext
		if err := s.objects.PutObject(ctx, item.ImageRef, p.Data, p.MIME); err != nil {
			return nil, &model.StoreError{Op: "upload photo", Err: err}
		}
	}

	created, err := s.items.CreateItem(ctx, item)
	if err != nil {
		if item.ImageRef != "" {
			if _, rmErr := s.objects.RemoveObjects(ctx, []string{item.ImageRef}); rmErr != nil {
				s.metrics.RecordImageCleanupFailure()
				slog.Warn("removing photo of failed report", "key", item.ImageRef, "error", rmErr)
			}
		}
		return nil, &model.StoreError{Op: "create item", Err: err}
	}

	s.metrics.RecordItemReported(string(created.Category))
	slog.Info("item reported", "item_id", created.ID, "owner_id", owner.ID, "status", created.Status, "has_image", created.HasImage())
	return created, nil
}

// maxUnescapeRounds bounds how many layers of entity encoding are peeled
// off a free-text field.
const maxUnescapeRounds = 8

// clean strips markup and surrounding space from the free-text fields.
func (s *Service) clean(req Request) Request {
	text := func(v string) string {
		return strings.TrimSpace(s.plainText(v))
	}
	req.ReporterName = text(req.ReporterName)
	req.ReporterPhone = strings.TrimSpace(req.ReporterPhone)
	req.Title = text(req.Title)
	req.Description = text(req.Description)
	req.Place = text(req.Place)
	req.OccurredAt = strings.TrimSpace(req.OccurredAt)
	req.Category = strings.TrimSpace(req.Category)
	req.Status = strings.TrimSpace(req.Status)
	return req
}

// plainText strips markup from v and decodes entities. Decoding can expose
// entity-encoded markup, so both steps repeat until the value is stable.
// Input that is still changing after maxUnescapeRounds stays escaped.
func (s *Service) plainText(v string) string {
	for range maxUnescapeRounds {
		next := html.UnescapeString(s.policy.Sanitize(v))
		if next == v {
			return v
		}
		v = next
	}
	return s.policy.Sanitize(v)
}
