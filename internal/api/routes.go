package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	// Provider webhooks carry their own secret; they sit outside /api.
	r.Post("/webhooks/{provider}", h.ProviderWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/leads", h.IntakeLead)
		r.Get("/leads/{id}", h.GetLead)
		r.Post("/leads/{id}/booked", h.MarkBooked)

		r.Post("/replies", h.SubmitReply)
		r.Post("/replies/{id}/approve", h.ApproveReply)
		r.Post("/replies/{id}/reject", h.RejectReply)

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.AddSuppression)
			r.Get("/stats", h.SuppressionStats)
			r.Get("/check/{email}", h.CheckSuppression)
		})

		r.Get("/stats", h.PipelineStats)
	})

	return r
}
