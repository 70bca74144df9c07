// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
)

// Memory is the in-process reference store. It mirrors the SQL backends'
// semantics, including the (session_id, item_no) duplicate rule.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	results  map[string][]model.Result // session_id -> ordered rows
	sfcLogs  []model.SFCLog
	plans    map[string][]plan.Point // station_id -> points
	nextLog  int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]model.Session),
		results:  make(map[string][]model.Result),
		plans:    make(map[string][]plan.Point),
	}
}

func (m *Memory) CreateSession(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("store: session %s already exists", s.ID)
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := s
	return &out, nil
}

func (m *Memory) UpdateSession(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ports.ErrNotFound
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) ListSessions(ctx context.Context) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveResult(ctx context.Context, r *model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.results[r.SessionID]
	for i := range rows {
		// At-least-once writers may retry: last write wins per item_no.
		if rows[i].ItemNo == r.ItemNo {
			rows[i] = *r
			return nil
		}
	}
	m.results[r.SessionID] = append(rows, *r)
	return nil
}

func (m *Memory) ListResults(ctx context.Context, sessionID string) ([]model.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Result(nil), m.results[sessionID]...), nil
}

func (m *Memory) SaveSFCLog(ctx context.Context, l *model.SFCLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLog++
	// The assigned ID is part of the contract, same as the SQL backends.
	l.ID = m.nextLog
	m.sfcLogs = append(m.sfcLogs, *l)
	return nil
}

// SFCLogs returns every audit row, for tests and the HTTP surface.
func (m *Memory) SFCLogs(sessionID string) []model.SFCLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SFCLog, 0, len(m.sfcLogs))
	for _, l := range m.sfcLogs {
		if sessionID == "" || l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	return out
}

func (m *Memory) LoadPlan(ctx context.Context, stationID string) ([]plan.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	points, ok := m.plans[stationID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := append([]plan.Point(nil), points...)
	plan.SortExecutionOrder(out)
	return out, nil
}

func (m *Memory) SavePlan(ctx context.Context, stationID string, points []plan.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// An empty upload removes the station. Every backend agrees, so a
	// station either has at least one point or is not found.
	if len(points) == 0 {
		delete(m.plans, stationID)
		return nil
	}
	m.plans[stationID] = append([]plan.Point(nil), points...)
	return nil
}

func (m *Memory) Stations(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.plans))
	for id := range m.plans {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
