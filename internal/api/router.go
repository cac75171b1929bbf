// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seguefm/segue/internal/config"
)

// NewRouter assembles the HTTP surface around the handlers.
func NewRouter(h *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, outermost first.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	rateReqs := cfg.RateLimitReqs
	if rateReqs <= 0 {
		rateReqs = 300
	}
	rateWindow := cfg.RateLimitWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rateReqs, rateWindow))

		r.Post("/events", h.PostEvent)

		r.Route("/recommend", func(r chi.Router) {
			r.Get("/next", h.GetRecommendNext)
			r.Post("/queue-next", h.PostQueueNext)
		})

		r.Route("/library", func(r chi.Router) {
			r.Post("/sync", h.PostLibrarySync)
			r.Get("/count", h.GetLibraryCount)
		})

		r.Route("/health", func(r chi.Router) {
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
