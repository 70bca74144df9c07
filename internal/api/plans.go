// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/log"
)

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.deps.Store.Stations(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if stations == nil {
		stations = []string{}
	}
	writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleGetTestPlan(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "sid")
	points, err := s.deps.Plans.LoadPlan(r.Context(), stationID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if r.URL.Query().Get("enabled_only") == "true" {
		points = plan.EnabledOnly(points)
	}
	writeJSON(w, http.StatusOK, points)
}

// handleUploadTestPlan replaces a station's plan from a CSV body in the
// external parser's column layout.
func (s *Server) handleUploadTestPlan(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "sid")

	points, err := plan.ReadCSV(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		writeBadRequest(w, "invalid plan CSV: "+err.Error())
		return
	}
	if len(points) == 0 {
		writeBadRequest(w, "plan has no rows")
		return
	}
	plan.SortExecutionOrder(points)
	if err := plan.Validate(points); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.deps.Store.SavePlan(r.Context(), stationID, points); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Plans.Invalidate(stationID)

	log.WithComponentFromContext(r.Context(), "api").Info().
		Str("event", "plan.uploaded").
		Str(log.FieldStationID, stationID).
		Int("points", len(points)).
		Msg("test plan replaced")
	writeJSON(w, http.StatusOK, map[string]int{"points": len(points)})
}
