// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/webpdtool/internal/instrument"
)

func (s *Server) handleInstrumentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Instruments.Status())
}

func (s *Server) handleInstrumentReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Instruments.Reset(r.Context(), id); err != nil {
		if errors.Is(err, instrument.ErrNotConfigured) {
			writeNotFound(w)
			return
		}
		if errors.Is(err, instrument.ErrAcquireTimeout) {
			writeConflict(w, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInstrumentDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Instruments.Disconnect(r.Context(), id); err != nil {
		if errors.Is(err, instrument.ErrNotConfigured) {
			writeNotFound(w)
			return
		}
		if errors.Is(err, instrument.ErrAcquireTimeout) {
			writeConflict(w, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
