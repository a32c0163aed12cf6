package api

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/lostfound/internal/filter"
	"github.com/erazemk/lostfound/internal/imaging"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/moderation"
	"github.com/erazemk/lostfound/internal/report"
	"github.com/erazemk/lostfound/internal/store"
)

// multipartOverhead is the room left for form fields next to the photo.
const multipartOverhead = 1 << 20

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	DB             *sql.DB
	Reports        *report.Service
	Moderation     *moderation.Service
	MaxUploadBytes int64
}

// itemView is an item as sent to clients.
type itemView struct {
	model.Item
	ImageURL string `json:"image_url,omitempty"`
}

type itemDetail struct {
	itemView
	Actions moderation.Actions `json:"actions"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type bulkDeleteRequest struct {
	DateStart  string   `json:"date_start"`
	DateEnd    string   `json:"date_end"`
	Categories []string `json:"categories"`
}

type bulkDeleteResponse struct {
	*moderation.BulkResult
	Message string `json:"message"`
}

func newItemView(item model.Item) itemView {
	v := itemView{Item: item}
	if item.HasImage() {
		v.ImageURL = objectURL(item.ImageRef)
	}
	return v
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	caller := actor(r)

	var q store.ItemQuery
	var c filter.Criteria

	if raw := query.Get("status"); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			jsonError(w, http.StatusBadRequest, "invalid status")
			return
		}
		q.Status = status
		c.Status = status
	}

	switch raw := query.Get("category"); raw {
	case "", "both":
	default:
		category, ok := model.ParseCategory(raw)
		if !ok {
			jsonError(w, http.StatusBadRequest, "invalid category")
			return
		}
		q.Categories = []model.Category{category}
		c.Category = category
	}

	if mine, _ := strconv.ParseBool(query.Get("mine")); mine {
		if caller.ID == 0 {
			jsonError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		q.OwnerID = caller.ID
	}

	var err error
	if c.DateStart, err = filter.ParseDay(query.Get("from")); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	if c.DateEnd, err = filter.ParseDay(query.Get("to")); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	c.Search = query.Get("q")
	c.IncludeReporter = caller.IsAdmin()

	items, err := store.ListItems(r.Context(), h.DB, q)
	if err != nil {
		slog.Error("listing items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	matched := filter.Apply(items, c)
	views := make([]itemView, 0, len(matched))
	for _, item := range matched {
		views = append(views, newItemView(item))
	}
	jsonResponse(w, http.StatusOK, views)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}

	jsonResponse(w, http.StatusOK, itemDetail{
		itemView: newItemView(*item),
		Actions:  moderation.Permissions(actor(r), item),
	})
}

// Create handles POST /api/items. The body is a multipart form with the
// report fields and an optional "photo" file.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = imaging.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := report.Request{
		ReporterName:  r.FormValue("reporter_name"),
		ReporterPhone: r.FormValue("reporter_phone"),
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		Place:         r.FormValue("place"),
		OccurredAt:    r.FormValue("occurred_at"),
		Category:      r.FormValue("category"),
		Status:        r.FormValue("status"),
	}

	var photo io.Reader
	file, _, err := r.FormFile("photo")
	switch {
	case err == nil:
		defer file.Close()
		photo = file
	case errors.Is(err, http.ErrMissingFile):
	default:
		jsonError(w, http.StatusBadRequest, "invalid photo upload")
		return
	}

	item, err := h.Reports.Submit(r.Context(), actor(r), req, photo)
	if err != nil {
		writeServiceError(w, err, "failed to report item")
		return
	}

	jsonResponse(w, http.StatusCreated, newItemView(*item))
}

// UpdateStatus handles PATCH /api/items/{id}/status.
func (h *ItemsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}

	updated, err := h.Moderation.UpdateStatus(r.Context(), actor(r), item, req.Status)
	if err != nil {
		writeServiceError(w, err, "failed to update status")
		return
	}

	jsonResponse(w, http.StatusOK, newItemView(*updated))
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}

	if err := h.Moderation.Delete(r.Context(), actor(r), item); err != nil {
		writeServiceError(w, err, "failed to delete item")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// BulkDelete handles POST /api/admin/items/bulk-delete.
func (h *ItemsHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	categories := make([]model.Category, 0, len(req.Categories))
	for _, c := range req.Categories {
		categories = append(categories, model.Category(c))
	}

	result, err := h.Moderation.BulkDelete(r.Context(), actor(r), moderation.BulkCriteria{
		DateStart:  req.DateStart,
		DateEnd:    req.DateEnd,
		Categories: categories,
	})
	if err != nil {
		writeServiceError(w, err, "failed to delete items")
		return
	}

	message := "items deleted"
	if result.Matched == 0 {
		message = "no items matched"
	}
	jsonResponse(w, http.StatusOK, bulkDeleteResponse{BulkResult: result, Message: message})
}

// loadItem reads the {id} item, writing the error response itself when it
// cannot.
func (h *ItemsHandler) loadItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("getting item", "item_id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil, false
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, model.ErrNotFound.Error())
		return nil, false
	}
	return item, true
}
