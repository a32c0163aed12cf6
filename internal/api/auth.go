package api

import (
	"errors"
	"net/http"

	"github.com/erazemk/lostfound/internal/captcha"
	"github.com/erazemk/lostfound/internal/metrics"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/session"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	Sessions *session.Manager
	Captcha  *captcha.Gate
	Metrics  metrics.Recorder
}

type registerRequest struct {
	session.RegisterRequest
	CaptchaID    string `json:"captcha_id"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaID    string `json:"captcha_id"`
	CaptchaToken string `json:"captcha_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.Captcha.Redeem(req.CaptchaID, req.CaptchaToken) {
		jsonError(w, http.StatusBadRequest, "captcha verification required")
		return
	}

	ident, err := h.Sessions.Register(r.Context(), req.RegisterRequest)
	if err != nil {
		writeServiceError(w, err, "failed to register")
		return
	}

	jsonResponse(w, http.StatusCreated, ident)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "email and password required")
		return
	}

	if !h.Captcha.Redeem(req.CaptchaID, req.CaptchaToken) {
		jsonError(w, http.StatusBadRequest, "captcha verification required")
		return
	}

	s, err := h.Sessions.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			h.Metrics.RecordLogin(false)
		}
		writeServiceError(w, err, "failed to sign in")
		return
	}

	h.Metrics.RecordLogin(true)
	jsonResponse(w, http.StatusOK, s)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s := GetSession(r.Context())
	if s == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.Sessions.SignOut(r.Context(), s); err != nil {
		writeServiceError(w, err, "failed to sign out")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	s := GetSession(r.Context())
	if s == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	jsonResponse(w, http.StatusOK, s.Identity)
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	s := GetSession(r.Context())
	if s == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}

	err := h.Sessions.ChangePassword(r.Context(), s.Identity.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			jsonError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		writeServiceError(w, err, "failed to update password")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
