// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the station's HTTP surface: session lifecycle,
// instrument administration, test-plan access and the usual operational
// endpoints (/healthz, /metrics).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/webpdtool/internal/cache"
	"github.com/ManuGH/webpdtool/internal/domain/session/engine"
	"github.com/ManuGH/webpdtool/internal/domain/session/store"
	"github.com/ManuGH/webpdtool/internal/instrument"
)

// Deps carries the server's collaborators.
type Deps struct {
	Engine      *engine.Engine
	Store       store.Store
	Instruments *instrument.Manager
	Plans       *cache.CachedPlans
	Prompts     *PromptHub

	// RequestTimeout bounds each request; zero means 30s.
	RequestTimeout time.Duration
	// RateLimit is requests per minute per client IP; zero means 600.
	RateLimit int
}

// Server is the HTTP API server.
type Server struct {
	deps Deps
}

// NewServer validates nothing beyond nil checks deferred to first use;
// wiring errors surface in tests immediately.
func NewServer(deps Deps) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	if deps.RateLimit <= 0 {
		deps.RateLimit = 600
	}
	return &Server{deps: deps}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.deps.RequestTimeout))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(s.deps.RateLimit, time.Minute))
		r.Use(otelMiddleware("webpdtool-api"))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/start", s.handleStartSession)
				r.Post("/stop", s.handleStopSession)
				r.Get("/status", s.handleSessionStatus)
				r.Get("/results", s.handleSessionResults)
				r.Get("/prompt", s.handleGetPrompt)
				r.Post("/prompt", s.handleAnswerPrompt)
			})
		})

		r.Route("/measurements/instruments", func(r chi.Router) {
			r.Get("/", s.handleInstrumentStatus)
			r.Post("/{id}/reset", s.handleInstrumentReset)
			r.Post("/{id}/disconnect", s.handleInstrumentDisconnect)
		})

		r.Route("/stations", func(r chi.Router) {
			r.Get("/", s.handleListStations)
			r.Get("/{sid}/testplan", s.handleGetTestPlan)
			r.Put("/{sid}/testplan", s.handleUploadTestPlan)
		})
	})

	return r
}
