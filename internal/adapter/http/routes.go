package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CivStat/MetricBoard/internal/domain/user"
	"github.com/CivStat/MetricBoard/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.HandleHealth)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Auth
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)
		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.Me)
		r.Post("/auth/change-password", h.ChangePassword)

		// Sectors
		r.Get("/sectors", h.ListSectors)
		r.Get("/sectors/{id}", h.GetSector)
		r.With(middleware.RequireRole(user.RoleAdmin)).Post("/sectors", h.CreateSector)

		// Metric tables (nested under sectors)
		r.Get("/sectors/{id}/metrics", h.ListMetrics)
		r.Post("/sectors/{id}/metrics", h.CreateMetric)

		// Metric tables (direct access)
		r.Get("/metrics/{id}", h.GetMetric)
		r.Get("/metrics/{id}/totals", h.GetTotals)
		r.Post("/metrics/{id}/operations", h.ApplyOperation)
		r.Post("/metrics/{id}/submit", h.SubmitMetric)
		r.With(middleware.RequireRole(user.RoleAdmin)).Post("/metrics/{id}/unsubmit", h.UnsubmitMetric)
		r.With(middleware.RequireRole(user.RoleAdmin)).Delete("/metrics/{id}", h.DeleteMetric)

		// User management (admin only)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(user.RoleAdmin))
			r.Post("/users", h.CreateUser)
			r.Get("/users", h.ListUsers)
		})
	})
}
