// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
)

// PromptHub bridges OPJudge prompts to the operator's browser: the engine
// blocks in Prompt while the UI polls GET .../prompt and answers with POST.
// One outstanding prompt per session.
type PromptHub struct {
	mu      sync.Mutex
	pending map[string]*pendingPrompt
}

type pendingPrompt struct {
	text   string
	answer chan bool
}

// NewPromptHub returns an empty hub.
func NewPromptHub() *PromptHub {
	return &PromptHub{pending: make(map[string]*pendingPrompt)}
}

// Prompt blocks until the operator answers or the session is cancelled.
func (h *PromptHub) Prompt(ctx context.Context, sessionID, prompt string) (bool, error) {
	p := &pendingPrompt{text: prompt, answer: make(chan bool, 1)}
	h.mu.Lock()
	h.pending[sessionID] = p
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.pending[sessionID] == p {
			delete(h.pending, sessionID)
		}
		h.mu.Unlock()
	}()

	select {
	case ok := <-p.answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Pending returns the open prompt text for a session.
func (h *PromptHub) Pending(sessionID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[sessionID]
	if !ok {
		return "", false
	}
	return p.text, true
}

// Answer resolves the open prompt. Reports false when none is pending.
func (h *PromptHub) Answer(sessionID string, ok bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, found := h.pending[sessionID]
	if !found {
		return false
	}
	delete(h.pending, sessionID)
	p.answer <- ok
	return true
}

var _ ports.OperatorPrompter = (*PromptHub)(nil)

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prompts == nil {
		writeNotFound(w)
		return
	}
	text, ok := s.deps.Prompts.Pending(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": text})
}

func (s *Server) handleAnswerPrompt(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prompts == nil {
		writeNotFound(w)
		return
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !s.deps.Prompts.Answer(chi.URLParam(r, "id"), body.OK) {
		writeNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
