// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/log"
	"github.com/ManuGH/webpdtool/internal/metrics"
	"github.com/ManuGH/webpdtool/internal/validate"
)

// hardware sentinel strings mapped to ERROR before the kernel runs
const (
	sentinelNoInstrument = "No instrument found"
	sentinelErrorPrefix  = "Error:"
)

// Dispatcher turns one plan point into a PointOutcome. It never returns an
// error and never panics: every internal fault becomes result=ERROR.
type Dispatcher struct {
	registry *Registry
	clock    ports.Clock
}

// NewDispatcher builds a dispatcher over a handler registry. clock may be
// nil for the system clock.
func NewDispatcher(registry *Registry, clock ports.Clock) *Dispatcher {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Dispatcher{registry: registry, clock: clock}
}

// Run executes one point. resultMap holds measured values of earlier points
// keyed by item_name; env carries session identity and shared services
// (Point and Params are filled in here).
func (d *Dispatcher) Run(ctx context.Context, point *plan.Point, resultMap map[string]string, env Env) (outcome PointOutcome) {
	start := d.clock.Now()
	defer func() {
		outcome.DurationMS = d.clock.Since(start).Milliseconds()
		if r := recover(); r != nil {
			outcome = PointOutcome{
				Result:     model.PointError,
				Error:      fmt.Sprintf("handler panic: %v", r),
				DurationMS: d.clock.Since(start).Milliseconds(),
			}
			log.WithComponent("measure").Error().
				Str(log.FieldSessionID, env.SessionID).
				Int(log.FieldItemNo, point.ItemNo).
				Str(log.FieldExecuteName, point.ExecuteName).
				Interface("panic", r).
				Msg("handler panicked")
		}
		metrics.PointExecuted(point.ExecuteName, string(outcome.Result), d.clock.Since(start).Seconds())
	}()

	canonical, ok := plan.NormalizeExecuteName(point.ExecuteName)
	if !ok {
		return PointOutcome{Result: model.PointError, Error: fmt.Sprintf("unknown execute_name %q", point.ExecuteName)}
	}

	handler, ok := d.registry.New(canonical)
	if !ok {
		return PointOutcome{Result: model.PointError, Error: fmt.Sprintf("unknown execute_name %q", point.ExecuteName)}
	}

	env.Point = point
	env.Params = substituteParams(point, resultMap)
	env.Clock = d.clock

	measured, execErr := d.runLifecycle(ctx, handler, &env)

	abort := errors.Is(execErr, ErrAbortSession)

	switch {
	case execErr != nil && !abort:
		return PointOutcome{Result: model.PointError, Measured: measured, Error: execErr.Error(), Abort: false}
	case measured == sentinelNoInstrument, strings.HasPrefix(measured, sentinelNoInstrument):
		return PointOutcome{Result: model.PointError, Measured: measured, Error: measured}
	case strings.HasPrefix(measured, sentinelErrorPrefix):
		return PointOutcome{Result: model.PointError, Measured: measured, Error: measured}
	case measured == "" && !abort:
		return PointOutcome{Result: model.PointError, Error: "empty measured value"}
	}

	verdict := validate.Check(measured, validate.FromPoint(point))
	result := model.PointPass
	reason := ""
	if !verdict.Pass {
		result = model.PointFail
		reason = verdict.Reason
	}
	if abort {
		// Operator judged NG: the point fails and the session aborts.
		result = model.PointFail
		if reason == "" {
			reason = execErr.Error()
		}
	}
	return PointOutcome{Result: result, Measured: measured, Error: reason, Abort: abort}
}

// runLifecycle drives Prepare/Execute/Cleanup with the guarantee that
// Cleanup runs whenever Prepare was called, even when Prepare itself
// failed partway through acquiring leases.
func (d *Dispatcher) runLifecycle(ctx context.Context, handler Handler, env *Env) (string, error) {
	defer func() {
		if err := handler.Cleanup(ctx, env); err != nil {
			log.WithComponent("measure").Warn().
				Err(err).
				Str(log.FieldSessionID, env.SessionID).
				Int(log.FieldItemNo, env.Point.ItemNo).
				Msg("handler cleanup failed")
		}
	}()

	if err := handler.Prepare(ctx, env); err != nil {
		return "", err
	}
	return handler.Execute(ctx, env)
}

// substituteParams resolves use_result chaining: parameter values that
// exactly match an earlier point's item_name are replaced with that point's
// measured value, and the point's use_result field binds the upstream value
// under the UpstreamValue key.
func substituteParams(point *plan.Point, resultMap map[string]string) map[string]string {
	params := make(map[string]string, len(point.Parameters)+1)
	for k, v := range point.Parameters {
		if upstream, ok := resultMap[v]; ok {
			params[k] = upstream
			continue
		}
		params[k] = v
	}
	if point.UseResult != "" {
		if upstream, ok := resultMap[point.UseResult]; ok {
			params[plan.ParamUpstreamValue] = upstream
		}
	}
	return params
}
