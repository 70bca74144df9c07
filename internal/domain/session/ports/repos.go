// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ports declares the engine's external collaborators. The engine
// only ever sees these interfaces; storage layout, report formats and the
// operator UI live behind them.
package ports

import (
	"context"
	"errors"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
)

// ErrNotFound is returned by repositories for unknown ids.
var ErrNotFound = errors.New("not found")

// PlanRepository loads the ordered test plan for a station.
type PlanRepository interface {
	// LoadPlan returns the plan's points in execution order
	// (sequence_order, item_no), including disabled points.
	LoadPlan(ctx context.Context, stationID string) ([]plan.Point, error)
}

// ResultRepository persists sessions, per-point results and SFC audit rows.
// Save is at-least-once; duplicate detection via (session_id, test_plan_id)
// is the repository's concern.
type ResultRepository interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	UpdateSession(ctx context.Context, s *model.Session) error
	ListSessions(ctx context.Context) ([]model.Session, error)

	SaveResult(ctx context.Context, r *model.Result) error
	ListResults(ctx context.Context, sessionID string) ([]model.Result, error)

	SaveSFCLog(ctx context.Context, l *model.SFCLog) error
}

// ReportSink is notified exactly once when a session reaches a terminal
// state. Implementations must tolerate repeated notifications (idempotent).
type ReportSink interface {
	OnSessionTerminal(ctx context.Context, sessionID string, status model.Status) error
}

// ProgressBus fans session snapshots out to in-process observers. Publishing
// must never block the engine; slow observers miss intermediate snapshots.
type ProgressBus interface {
	Publish(snapshot model.Snapshot)
	// Latest returns the most recent snapshot for a session, if any.
	Latest(sessionID string) (model.Snapshot, bool)
}

// OperatorPrompter presents an OPJudge prompt to the station operator and
// waits for the OK/NG decision.
type OperatorPrompter interface {
	// Prompt returns true for OK, false for NG.
	Prompt(ctx context.Context, sessionID, prompt string) (bool, error)
}
