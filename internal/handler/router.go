package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/jeninmail/hermes-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса гермес.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/calculate-cost", h.CalculateCost)
		r.Get("/order/{orderID}/status", h.GetOrderStatus)

		r.Group(func(r chi.Router) {
			r.Use(h.eventAuth.Middleware)

			r.Post("/letters", h.CreateLetter)
			r.Post("/order", h.CreateOrder)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.adminAuth.Middleware)

		r.Post("/events", h.CreateEvent)
		r.Post("/events/{id}/mark-paid", h.MarkEventPaid)
		r.Get("/financial-summary", h.GetFinancialSummary)
		r.Post("/check-letter-status", h.CheckLetterStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.slackVerifier.Middleware)

		r.Post("/slack/interactions", h.SlackInteractions)
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
