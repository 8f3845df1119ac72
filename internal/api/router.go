// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit int
	RunID     string
	Version   string
}

// NewRouter builds the control API:
//
//	GET  /api/v1/health/live
//	GET  /api/v1/status
//	POST /api/v1/stop
//	GET  /metrics
func NewRouter(ctrl Controller, opts RouterOptions) http.Handler {
	h := NewHandler(ctrl, opts.RunID, opts.Version)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging)
	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimitByIP(opts.RateLimit))
		r.Use(PrometheusMetrics)

		r.Get("/health/live", h.HealthLive)
		r.Get("/status", h.Status)
		r.Post("/stop", h.Stop)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
