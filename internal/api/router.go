// Run Atlas - Running Activity Sync and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/runatlas

// Package api provides the HTTP surface using the Chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/runatlas/internal/config"
	"github.com/tomtom215/runatlas/internal/middleware"
)

// NewRouter assembles the route tree and middleware stack.
func NewRouter(handler *Handler, cfg config.SecurityConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.Compression)

	r.Route("/api/v1", func(r chi.Router) {
		if !cfg.RateLimitDisabled {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		}
		r.Use(middleware.PrometheusMetrics)

		r.Get("/health", handler.Health)
		r.Get("/auth/status", handler.AuthStatus)
		r.Get("/auth/callback", handler.AuthCallback)
		r.Get("/runs", handler.Runs)
		r.Get("/locations", handler.Locations)
		r.Post("/geocode", handler.Geocode)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
