package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/lostfound/internal/captcha"
)

// CaptchaHandler hands out and checks the challenges guarding account
// entry points.
type CaptchaHandler struct {
	Gate *captcha.Gate
}

type captchaResponse struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type captchaAnswerRequest struct {
	Input string `json:"input"`
}

type captchaAnswerResponse struct {
	Token string `json:"token"`
}

// Issue handles POST /api/captcha.
func (h *CaptchaHandler) Issue(w http.ResponseWriter, r *http.Request) {
	id, text, err := h.Gate.Issue()
	if errors.Is(err, captcha.ErrTooManyChallenges) {
		slog.Warn("captcha gate full")
		jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		slog.Error("issuing captcha", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to issue captcha")
		return
	}
	jsonResponse(w, http.StatusCreated, captchaResponse{ID: id, Text: text})
}

// Refresh handles POST /api/captcha/{id}/refresh.
func (h *CaptchaHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := h.Gate.Refresh(id)
	if err != nil {
		writeCaptchaError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, captchaResponse{ID: id, Text: text})
}

// Answer handles POST /api/captcha/{id}/answer.
func (h *CaptchaHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req captchaAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.Gate.Answer(chi.URLParam(r, "id"), req.Input)
	if err != nil {
		writeCaptchaError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, captchaAnswerResponse{Token: token})
}

func writeCaptchaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, captcha.ErrUnknownChallenge):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, captcha.ErrMismatch):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, captcha.ErrAlreadySolved):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("captcha failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "captcha failed")
	}
}
