// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/ManuGH/webpdtool/internal/instrument"
)

type healthResponse struct {
	Status      string         `json:"status"`
	Store       string         `json:"store"`
	Instruments map[string]int `json:"instruments"`
}

// handleHealthz probes the store with a cheap read and summarises
// instrument states. Degraded storage reports 503 so the load balancer
// stops routing new sessions here.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok", Instruments: map[string]int{}}

	if _, err := s.deps.Store.Stations(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
	}

	for _, e := range s.deps.Instruments.Status() {
		resp.Instruments[string(e.State)]++
	}
	if resp.Instruments[string(instrument.StateError)] > 0 {
		resp.Status = "degraded"
	}

	code := http.StatusOK
	if resp.Store != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
