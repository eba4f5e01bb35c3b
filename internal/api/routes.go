package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Bursts of 100 deletes, then 10 per second
	deleteRateLimiter := NewDeleteRateLimiter(100, 100*time.Millisecond)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(OptionalAuth(h.apiKey))

			r.Get("/categories", h.Categories)
			r.Get("/stats", h.Stats)
			r.Get("/export", h.Export)
			r.Post("/import", h.Import)

			r.Route("/goals", func(r chi.Router) {
				r.Get("/", h.ListGoals)
				r.Post("/", h.CreateGoal)
				r.Get("/{id}", h.GetGoal)
				r.Patch("/{id}", h.UpdateGoal)
				r.With(deleteRateLimiter.Middleware).Delete("/{id}", h.DeleteGoal)
				r.Post("/{id}/transactions", h.AddTransaction)
				r.With(deleteRateLimiter.Middleware).Delete("/{id}/transactions/{txID}", h.DeleteTransaction)
			})
		})
	})

	return r
}
