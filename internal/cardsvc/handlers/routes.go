package handlers

import (
	"github.com/avvvet/idcard-services/internal/cardsvc/auth"
	"github.com/go-chi/chi"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Get("/", h.RootHandler)
	r.Get("/health", h.HealthHandler)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {

		// public routes here
		r.Post("/auth/login", h.Login)

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Get("/{id}", h.GetCard)

			// Secure routes
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuthorization(h.authorizer, h.WriteError))

				r.Post("/", h.CreateCard)
				r.Put("/{id}", h.UpdateCard)
				r.Delete("/{id}", h.DeleteCard)
			})
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/summary", h.StatsSummary)
			r.Get("/distribution/{field}", h.StatsDistribution)
			r.Get("/series", h.StatsSeries)
			r.Get("/today", h.StatsToday)
		})

		r.Get("/dashboard/stats", h.DashboardStats)
	})
}
