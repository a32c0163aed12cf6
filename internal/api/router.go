package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/erazemk/lostfound/internal/captcha"
	"github.com/erazemk/lostfound/internal/metrics"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/moderation"
	"github.com/erazemk/lostfound/internal/report"
	"github.com/erazemk/lostfound/internal/session"
)

// Deps holds everything the API needs.
type Deps struct {
	DB         *sql.DB
	Sessions   *session.Manager
	Captcha    *captcha.Gate
	Reports    *report.Service
	Moderation *moderation.Service

	// Metrics records request and workflow counters; Gatherer serves them
	// on /metrics. Both may be nil.
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer

	InviteTTL      time.Duration
	MaxUploadBytes int64
}

// NewRouter creates the router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(d.Metrics))
	r.Use(middleware.Recoverer)

	authHandler := &AuthHandler{Sessions: d.Sessions, Captcha: d.Captcha, Metrics: d.Metrics}
	captchaHandler := &CaptchaHandler{Gate: d.Captcha}
	itemsHandler := &ItemsHandler{DB: d.DB, Reports: d.Reports, Moderation: d.Moderation, MaxUploadBytes: d.MaxUploadBytes}
	objectsHandler := &ObjectsHandler{DB: d.DB}
	usersHandler := &UsersHandler{DB: d.DB, InviteTTL: d.InviteTTL}

	authMW := AuthMiddleware(d.Sessions)
	optionalAuth := OptionalAuthMiddleware(d.Sessions)
	requireAdmin := RequireRole(model.RoleAdmin)

	r.Get("/health", health)
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		// Public: captcha and account entry points.
		r.Post("/captcha", captchaHandler.Issue)
		r.Post("/captcha/{id}/refresh", captchaHandler.Refresh)
		r.Post("/captcha/{id}/answer", captchaHandler.Answer)

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMW)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)
			r.Put("/auth/password", authHandler.ChangePassword)
		})

		// Items: read (anyone), write (signed in; ownership checked per item).
		r.Route("/items", func(r chi.Router) {
			r.With(optionalAuth).Get("/", itemsHandler.List)
			r.With(optionalAuth).Get("/{id}", itemsHandler.Get)
			r.With(authMW).Post("/", itemsHandler.Create)
			r.With(authMW).Patch("/{id}/status", itemsHandler.UpdateStatus)
			r.With(authMW).Delete("/{id}", itemsHandler.Delete)
		})

		r.Get("/objects/*", objectsHandler.Get)

		// Admin only.
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW, requireAdmin)
			r.Post("/items/bulk-delete", itemsHandler.BulkDelete)
			r.Post("/invites", usersHandler.CreateInvite)
			r.Get("/invites/{token}", usersHandler.GetInvite)
			r.Get("/users", usersHandler.List)
			r.Put("/users/role", usersHandler.UpdateRole)
		})
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
