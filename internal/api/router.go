package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/codementor-labs/codementor/internal/middleware"
)

// Handlers collects everything the router mounts. Handlers are injected from
// main so this package stays free of the feature packages.
type Handlers struct {
	AuthMiddleware func(http.Handler) http.Handler
	RequireAdmin   func(http.Handler) http.Handler
	AuthRateLimit  func(http.Handler) http.Handler

	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	Chat             http.HandlerFunc
	ChatHistory      http.HandlerFunc
	ClearChatHistory http.HandlerFunc

	Me        http.HandlerFunc
	Limits    http.HandlerFunc
	AuditList http.HandlerFunc

	PromoteUser http.HandlerFunc
	DemoteUser  http.HandlerFunc

	Readiness http.HandlerFunc
}

// NewRouter builds the HTTP routing tree.
func NewRouter(h Handlers, corsOptions cors.Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)
	r.Use(mw.SecurityHeaders)
	r.Use(cors.Handler(corsOptions))

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		JSONMessage(w, http.StatusOK, "ok")
	})
	if h.Readiness != nil {
		r.Get("/health/ready", h.Readiness)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if h.AuthRateLimit != nil {
					r.Use(h.AuthRateLimit)
				}
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/refresh", h.Refresh)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/chat", h.Chat)
			r.Get("/chat/history", h.ChatHistory)
			r.Delete("/chat/history", h.ClearChatHistory)

			r.Get("/me", h.Me)
			r.Get("/me/limits", h.Limits)
			r.Get("/me/audit", h.AuditList)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.RequireAdmin)
				r.Post("/users/{id}/promote", h.PromoteUser)
				r.Post("/users/{id}/demote", h.DemoteUser)
			})
		})
	})

	return r
}
