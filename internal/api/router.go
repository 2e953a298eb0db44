// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP routing tree.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", userHeader, requestIDHeader},
		MaxAge:         300,
	}))

	r.Route("/api/v1/recommendations", func(r chi.Router) {
		r.Post("/context", h.SetContext)
		r.Get("/context", h.GetContext)
		r.Get("/top", h.GetTop)
		r.Delete("/audio/{audioID}", h.DeleteAudio)
		r.Post("/ingest", h.Ingest)
		r.Get("/status", h.Status)
	})

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
