package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/lostfound/internal/store"
)

const objectsPrefix = "/api/objects/"

// ObjectsHandler serves stored item images.
type ObjectsHandler struct {
	DB *sql.DB
}

// objectURL is the public URL of the object stored under key.
func objectURL(key string) string {
	return objectsPrefix + key
}

// Get handles GET /api/objects/*.
func (h *ObjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" || strings.Contains(key, "..") {
		jsonError(w, http.StatusBadRequest, "invalid object key")
		return
	}

	obj, err := store.GetObject(r.Context(), h.DB, key)
	if err != nil {
		slog.Error("failed to get object", "key", key, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get object")
		return
	}
	if obj == nil {
		jsonError(w, http.StatusNotFound, "object not found")
		return
	}

	w.Header().Set("Content-Type", obj.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(obj.Data)
}
