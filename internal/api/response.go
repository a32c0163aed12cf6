package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/session"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeServiceError maps a workflow error to its HTTP status. Store
// failures keep the store's message; anything unclassified is logged and
// reported as fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *model.ValidationError
	var storeErr *model.StoreError

	switch {
	case errors.As(err, &validationErr):
		jsonError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, model.ErrForbidden):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, model.ErrNotFound.Error())
	case errors.Is(err, model.ErrInvalidCredentials):
		jsonError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, model.ErrInvalidInvite):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrEmailTaken), errors.Is(err, model.ErrLastAdmin):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, session.ErrRevoked):
		jsonError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, session.ErrClosed):
		jsonError(w, http.StatusServiceUnavailable, "service shutting down")
	case errors.As(err, &storeErr):
		slog.Error(storeErr.Op+" failed", "error", storeErr.Err)
		jsonError(w, http.StatusInternalServerError, storeErr.Error())
	default:
		slog.Error(fallback, "error", err)
		jsonError(w, http.StatusInternalServerError, fallback)
	}
}
