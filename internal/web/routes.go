// Package web is the HTTP surface of voiceqa: a JSON API for asking,
// history, categories and uploads, websockets for live events and streamed
// recognition, plus health and metrics endpoints.
package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/voiceqa/internal/health"
	"github.com/MrWong99/voiceqa/internal/observe"
)

// NewRouter creates a router with all routes configured. hc may be nil.
func NewRouter(h *Handler, hc *health.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe.Middleware(h.cfg.Metrics))
	r.Use(middleware.Recoverer)

	if hc != nil {
		hc.Register(r)
	}
	if h.cfg.MetricsHandler != nil {
		r.Method("GET", "/metrics", h.cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.Categories)
		r.Put("/category", h.SetCategory)
		r.Put("/speak", h.SetSpeak)
		r.Post("/ask", h.Ask)
		r.Get("/history", h.History)
		r.Delete("/history", h.ClearHistory)
		r.Post("/questions", h.AddQuestion)
		r.Get("/uploads", h.Uploads)
		r.Post("/reload", h.Reload)
		r.Get("/events", h.Events)
		r.Get("/listen", h.Listen)
	})

	return r
}
