// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package measure contains the measurement dispatcher and the handler
// catalogue. A handler implements one kind of measurement (power, command
// bus, SFC upload, operator judgement) behind the Prepare/Execute/Cleanup
// lifecycle; the dispatcher turns a plan point plus a handler run into a
// PointOutcome, with the validation kernel deciding PASS/FAIL.
package measure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/instrument"
	"github.com/ManuGH/webpdtool/internal/sfc"
)

// ErrAbortSession is returned by a handler to abort the whole session
// (operator pressed NG). The point is recorded as FAIL and the engine
// transitions to ABORTED.
var ErrAbortSession = errors.New("session aborted by handler")

// maxIOTimeout caps the per-point Timeout parameter.
const maxIOTimeout = 30 * time.Second

// Env is the per-point execution environment the dispatcher hands to a
// handler: the resolved point, session identity and the shared services.
type Env struct {
	SessionID    string
	SerialNumber string
	StationID    string

	Point  *plan.Point
	Params map[string]string // after use_result substitution

	Instruments *instrument.Manager
	SFC         *sfc.Client
	Prompter    ports.OperatorPrompter
	Clock       ports.Clock
}

// Param returns a resolved parameter, falling back to the point's hoisted
// fields.
func (e *Env) Param(key string) (string, bool) {
	if v, ok := e.Params[key]; ok {
		return v, true
	}
	return e.Point.Param(key)
}

// RequireParam returns the parameter or the canonical missing-parameter
// error used for Prepare failures.
func (e *Env) RequireParam(key string) (string, error) {
	v, ok := e.Param(key)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required parameter %s", key)
	}
	return v, nil
}

// IOTimeout resolves the point's Timeout parameter (milliseconds) against
// the handler's default, capped at 30s.
func (e *Env) IOTimeout(fallback time.Duration) time.Duration {
	d := fallback
	if e.Point.TimeoutMS > 0 {
		d = time.Duration(e.Point.TimeoutMS) * time.Millisecond
	}
	if d <= 0 || d > maxIOTimeout {
		d = maxIOTimeout
	}
	return d
}

// Handler is one measurement kind. The dispatcher guarantees Cleanup runs
// whenever Prepare was called, even after an Execute failure or panic.
type Handler interface {
	// Prepare validates parameters and acquires instrument leases.
	Prepare(ctx context.Context, env *Env) error
	// Execute performs the measurement and returns the measured value.
	Execute(ctx context.Context, env *Env) (string, error)
	// Cleanup releases leases and restores instrument state.
	Cleanup(ctx context.Context, env *Env) error
}

// leaseSet tracks the leases a handler acquired in Prepare and releases
// them in reverse order during Cleanup.
type leaseSet struct {
	leases []*instrument.Lease
}

// acquire leases one instrument and remembers it for releaseAll.
func (ls *leaseSet) acquire(ctx context.Context, env *Env, id string) (*instrument.Lease, error) {
	if id == "" {
		return nil, errors.New("no instrument found")
	}
	lease, err := env.Instruments.Acquire(ctx, id, env.SessionID)
	if err != nil {
		if errors.Is(err, instrument.ErrNotConfigured) {
			return nil, fmt.Errorf("No instrument found: %s", id)
		}
		return nil, err
	}
	ls.leases = append(ls.leases, lease)
	return lease, nil
}

// releaseAll releases in LIFO order, mirroring acquisition nesting.
func (ls *leaseSet) releaseAll() {
	for i := len(ls.leases) - 1; i >= 0; i-- {
		ls.leases[i].Release()
	}
	ls.leases = nil
}

// markError flags every held lease's instrument after an I/O failure.
func (ls *leaseSet) markError(err error) {
	for _, l := range ls.leases {
		l.MarkError(err)
	}
}

// PointOutcome is the dispatcher's verdict for one executed point.
type PointOutcome struct {
	Result     model.PointResult
	Measured   string
	Error      string
	DurationMS int64
	// Abort is set when a handler requested session abort (OPJudge NG).
	Abort bool
}
