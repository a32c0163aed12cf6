package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

// defaultInviteTTL applies when no invite lifetime is configured.
const defaultInviteTTL = 72 * time.Hour

// UsersHandler handles account management endpoints (admin only).
type UsersHandler struct {
	DB        *sql.DB
	InviteTTL time.Duration
}

type inviteView struct {
	*model.Invite
	Status string `json:"status"`
}

type updateRoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// List handles GET /api/admin/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := store.ListProfiles(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	for i := range profiles {
		role, ok := model.ParseRole(string(profiles[i].Role))
		if !ok {
			slog.Warn("unknown profile role", "user_id", profiles[i].ID, "role", profiles[i].Role)
		}
		profiles[i].Role = role
	}
	jsonResponse(w, http.StatusOK, profiles)
}

// UpdateRole handles PUT /api/admin/users/role.
func (h *UsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		jsonError(w, http.StatusBadRequest, "email required")
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		jsonError(w, http.StatusBadRequest, "role must be one of: user, employee, admin")
		return
	}

	updated, err := store.SetRoleByEmail(r.Context(), h.DB, req.Email, role)
	if errors.Is(err, model.ErrLastAdmin) {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to update role", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	if !updated {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	slog.Info("user role changed", "email", req.Email, "role", role, "by", actor(r).ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "role updated"})
}

// CreateInvite handles POST /api/admin/invites.
func (h *UsersHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	ttl := h.InviteTTL
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}

	inv, err := store.CreateInvite(r.Context(), h.DB, actor(r).ID, ttl)
	if err != nil {
		slog.Error("failed to create invite", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	slog.Info("admin invite created", "by", inv.CreatedBy, "expires_at", inv.ExpiresAt)
	jsonResponse(w, http.StatusCreated, inv)
}

// GetInvite handles GET /api/admin/invites/{token}.
func (h *UsersHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := store.GetInvite(r.Context(), h.DB, chi.URLParam(r, "token"))
	if err != nil {
		slog.Error("failed to get invite", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get invite")
		return
	}
	if inv == nil {
		jsonError(w, http.StatusNotFound, "invite not found")
		return
	}

	jsonResponse(w, http.StatusOK, inviteView{Invite: inv, Status: inv.Status(time.Now())})
}
