// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
)

type createSessionRequest struct {
	SerialNumber string `json:"serial_number"`
	StationID    string `json:"station_id"`
	UserID       string `json:"user_id"`
	RunAllTest   bool   `json:"run_all_test"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SerialNumber == "" {
		writeBadRequest(w, "serial_number is required")
		return
	}
	if req.StationID == "" {
		writeBadRequest(w, "station_id is required")
		return
	}

	id, err := s.deps.Engine.CreateSession(r.Context(), req.SerialNumber, req.StationID, req.UserID, req.RunAllTest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": id,
		"status":     string(model.StatusPending),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.ListSessions(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.deps.Engine.Start(r.Context(), id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if status.IsTerminal() {
		writeConflict(w, "session already finished: "+string(status))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Engine.Stop(r.Context(), id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap, err := s.deps.Engine.Status(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(snap.Status)})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Engine.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSessionResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Store.GetSession(r.Context(), id); err != nil {
		writeRepoError(w, err)
		return
	}
	results, err := s.deps.Store.ListResults(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if results == nil {
		results = []model.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}
