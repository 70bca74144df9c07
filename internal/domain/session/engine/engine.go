// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package engine drives test sessions from PENDING to a terminal state:
// one executor goroutine per running session, strictly sequential point
// execution, per-point persistence with bounded retry and progress fan-out.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
	"github.com/ManuGH/webpdtool/internal/log"
	"github.com/ManuGH/webpdtool/internal/measure"
	"github.com/ManuGH/webpdtool/internal/metrics"
)

// Config wires the engine's collaborators.
type Config struct {
	Plans      ports.PlanRepository
	Results    ports.ResultRepository
	Dispatcher *measure.Dispatcher
	Bus        ports.ProgressBus
	Report     ports.ReportSink
	Clock      ports.Clock

	// Env is the session-independent part of the handler environment
	// (instrument manager, SFC client, operator prompter).
	Env measure.Env

	// RetryMax bounds repository write retries before the session goes
	// to ERROR.
	RetryMax uint
}

type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine executes sessions. Safe for concurrent use.
type Engine struct {
	cfg    Config
	clock  ports.Clock
	tracer trace.Tracer

	mu      sync.Mutex
	running map[string]*runner
}

// New builds an engine. Clock defaults to the system clock, RetryMax to 3.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}
	return &Engine{
		cfg:     cfg,
		clock:   cfg.Clock,
		tracer:  otel.Tracer("webpdtool/engine"),
		running: make(map[string]*runner),
	}
}

// CreateSession persists a PENDING session. No execution starts.
func (e *Engine) CreateSession(ctx context.Context, serial, stationID, userID string, runAllTest bool) (string, error) {
	if serial == "" {
		return "", fmt.Errorf("engine: serial_number is required")
	}
	if stationID == "" {
		return "", fmt.Errorf("engine: station_id is required")
	}
	sess := &model.Session{
		ID:           uuid.NewString(),
		SerialNumber: serial,
		StationID:    stationID,
		UserID:       userID,
		Status:       model.StatusPending,
		RunAllTest:   runAllTest,
		CreatedAt:    e.clock.Now().UTC(),
	}
	if err := e.cfg.Results.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("engine: create session: %w", err)
	}
	log.WithComponent("engine").Info().
		Str("event", "session.created").
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldSerialNumber, serial).
		Str(log.FieldStationID, stationID).
		Bool("run_all_test", runAllTest).
		Msg("session created")
	return sess.ID, nil
}

// Start spawns the executor for a PENDING session and returns immediately.
// Non-PENDING sessions are a no-op returning the current status.
func (e *Engine) Start(ctx context.Context, sessionID string) (model.Status, error) {
	// Check-and-claim under the lock: a concurrent Start must observe
	// either the runner or a non-PENDING status, never spawn a second
	// executor.
	e.mu.Lock()
	if _, isRunning := e.running[sessionID]; isRunning {
		e.mu.Unlock()
		return model.StatusRunning, nil
	}
	sess, err := e.cfg.Results.GetSession(ctx, sessionID)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	if !sess.Status.CanTransition(model.StatusRunning) {
		e.mu.Unlock()
		return sess.Status, nil
	}

	// The executor outlives the HTTP request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &runner{cancel: cancel, done: make(chan struct{})}
	e.running[sessionID] = r
	e.mu.Unlock()

	now := e.clock.Now().UTC()
	sess.Status = model.StatusRunning
	sess.StartTime = &now
	if err := e.cfg.Results.UpdateSession(ctx, sess); err != nil {
		e.mu.Lock()
		delete(e.running, sessionID)
		e.mu.Unlock()
		cancel()
		close(r.done)
		return "", fmt.Errorf("engine: start session: %w", err)
	}

	metrics.SessionStarted()
	go e.run(runCtx, sess, r)
	return model.StatusRunning, nil
}

// Status returns the freshest progress snapshot, preferring the bus over
// the store.
func (e *Engine) Status(ctx context.Context, sessionID string) (model.Snapshot, error) {
	if snap, ok := e.cfg.Bus.Latest(sessionID); ok {
		return snap, nil
	}
	sess, err := e.cfg.Results.GetSession(ctx, sessionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return snapshotOf(sess, ""), nil
}

// Stop requests cancellation. Running sessions abort between points (or
// after the current point's cleanup); PENDING sessions abort in place.
// Stopping an already-terminal session is a no-op.
func (e *Engine) Stop(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	r, isRunning := e.running[sessionID]
	e.mu.Unlock()
	if isRunning {
		r.cancel()
		return nil
	}

	sess, err := e.cfg.Results.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.IsTerminal() {
		return nil
	}
	if sess.Status == model.StatusPending {
		now := e.clock.Now().UTC()
		sess.Status = model.StatusAborted
		sess.FinalResult = model.FinalAbort
		sess.EndTime = &now
		if err := e.cfg.Results.UpdateSession(ctx, sess); err != nil {
			return err
		}
		metrics.SessionTerminal(string(model.StatusAborted))
		e.notifyTerminal(ctx, sess)
	}
	return nil
}

// Wait blocks until the session's executor exits. Test helper surface.
func (e *Engine) Wait(sessionID string) {
	e.mu.Lock()
	r, ok := e.running[sessionID]
	e.mu.Unlock()
	if ok {
		<-r.done
	}
}

func (e *Engine) run(ctx context.Context, sess *model.Session, r *runner) {
	logger := log.WithComponent("engine").With().Str(log.FieldSessionID, sess.ID).Logger()

	ctx, span := e.tracer.Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("session.serial_number", sess.SerialNumber),
		attribute.String("session.station_id", sess.StationID),
		attribute.Bool("session.run_all_test", sess.RunAllTest),
	))

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("session executor panicked")
			e.finish(ctx, sess, model.StatusError, model.FinalFail)
		}
		span.End()
		e.mu.Lock()
		delete(e.running, sess.ID)
		e.mu.Unlock()
		close(r.done)
	}()

	points, err := e.loadPlan(ctx, sess)
	if err != nil {
		logger.Error().Err(err).Msg("plan load failed")
		e.finish(ctx, sess, model.StatusError, model.FinalFail)
		return
	}

	sess.TotalItems = len(points)
	if err := e.persistSession(ctx, sess); err != nil {
		e.finish(ctx, sess, model.StatusError, model.FinalFail)
		return
	}
	e.publish(sess, "")

	env := e.cfg.Env
	env.SessionID = sess.ID
	env.SerialNumber = sess.SerialNumber
	env.StationID = sess.StationID

	resultMap := make(map[string]string, len(points))
	aborted := false
	executed := 0

	for i := range points {
		p := &points[i]

		select {
		case <-ctx.Done():
			aborted = true
		default:
		}
		if aborted {
			break
		}

		var outcome measure.PointOutcome
		if p.UseResult != "" {
			if _, ok := resultMap[p.UseResult]; !ok {
				outcome = measure.PointOutcome{
					Result: model.PointSkip,
					Error:  "missing upstream result",
				}
				metrics.PointExecuted(p.ExecuteName, string(model.PointSkip), 0)
			}
		}
		if outcome.Result == "" {
			outcome = e.cfg.Dispatcher.Run(ctx, p, resultMap, env)
		}

		row := resultRow(sess, p, outcome, e.clock.Now().UTC())
		if err := e.persistResult(ctx, &row); err != nil {
			logger.Error().Err(err).Int(log.FieldItemNo, p.ItemNo).Msg("result persistence failed after retries")
			e.finish(ctx, sess, model.StatusError, model.FinalFail)
			return
		}

		// Downstream points may consume the value even when this point
		// failed. Points that produced nothing leave no entry, so their
		// consumers skip.
		if outcome.Measured != "" {
			resultMap[p.ItemName] = outcome.Measured
		}

		executed++
		if outcome.Result.CountsAsFailure() {
			sess.FailItems++
		} else {
			sess.PassItems++
		}

		logger.Info().
			Str("event", "point.executed").
			Int(log.FieldItemNo, p.ItemNo).
			Str(log.FieldItemName, p.ItemName).
			Str(log.FieldExecuteName, p.ExecuteName).
			Str(log.FieldResult, string(outcome.Result)).
			Str(log.FieldMeasured, outcome.Measured).
			Int64(log.FieldDurationMS, outcome.DurationMS).
			Msg("point executed")

		e.publishProgress(sess, executed, p.ItemName)

		if outcome.Abort {
			aborted = true
			break
		}
		// Only FAIL and ERROR halt a normal-mode session. SKIP counts
		// toward fail_items but execution continues past it.
		halts := outcome.Result == model.PointFail || outcome.Result == model.PointError
		if halts && !sess.RunAllTest {
			break
		}
	}

	select {
	case <-ctx.Done():
		aborted = true
	default:
	}

	switch {
	case aborted:
		e.finish(ctx, sess, model.StatusAborted, model.FinalAbort)
	case sess.FailItems > 0:
		e.finish(ctx, sess, model.StatusFailed, model.FinalFail)
	default:
		e.finish(ctx, sess, model.StatusCompleted, model.FinalPass)
	}
}

func (e *Engine) loadPlan(ctx context.Context, sess *model.Session) ([]plan.Point, error) {
	points, err := e.cfg.Plans.LoadPlan(ctx, sess.StationID)
	if err != nil {
		return nil, err
	}
	plan.SortExecutionOrder(points)
	if err := plan.Validate(points); err != nil {
		return nil, err
	}
	return plan.EnabledOnly(points), nil
}

func resultRow(sess *model.Session, p *plan.Point, outcome measure.PointOutcome, now time.Time) model.Result {
	return model.Result{
		SessionID:           sess.ID,
		TestPlanID:          p.ID,
		ItemNo:              p.ItemNo,
		ItemName:            p.ItemName,
		MeasuredValue:       outcome.Measured,
		LowerLimit:          p.LowerLimit,
		UpperLimit:          p.UpperLimit,
		Result:              outcome.Result,
		ErrorMessage:        outcome.Error,
		ExecutionDurationMS: outcome.DurationMS,
		TestTime:            now,
	}
}

// persistResult retries transient repository failures with exponential
// backoff before giving up.
func (e *Engine) persistResult(ctx context.Context, row *model.Result) error {
	return e.withRetry(ctx, func(writeCtx context.Context) error {
		return e.cfg.Results.SaveResult(writeCtx, row)
	})
}

func (e *Engine) persistSession(ctx context.Context, sess *model.Session) error {
	return e.withRetry(ctx, func(writeCtx context.Context) error {
		return e.cfg.Results.UpdateSession(writeCtx, sess)
	})
}

func (e *Engine) withRetry(ctx context.Context, write func(context.Context) error) error {
	// Terminal writes must land even when the session context is already
	// cancelled by Stop.
	writeCtx := context.WithoutCancel(ctx)

	attempt := 0
	operation := func() (struct{}, error) {
		if attempt > 0 {
			metrics.RepoRetry()
		}
		attempt++
		return struct{}{}, write(writeCtx)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second

	_, err := backoff.Retry(writeCtx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(e.cfg.RetryMax+1))
	return err
}

func (e *Engine) finish(ctx context.Context, sess *model.Session, status model.Status, final model.FinalResult) {
	now := e.clock.Now().UTC()
	sess.Status = status
	sess.FinalResult = final
	sess.EndTime = &now

	if err := e.persistSession(ctx, sess); err != nil {
		log.WithComponent("engine").Error().
			Err(err).
			Str(log.FieldSessionID, sess.ID).
			Msg("terminal session update failed")
		sess.Status = model.StatusError
	}

	metrics.SessionTerminal(string(sess.Status))
	metrics.SessionStopped()
	e.publish(sess, "")
	e.notifyTerminal(ctx, sess)

	log.WithComponent("engine").Info().
		Str("event", "session.terminal").
		Str(log.FieldSessionID, sess.ID).
		Str("status", string(sess.Status)).
		Str("final_result", string(sess.FinalResult)).
		Int("pass_items", sess.PassItems).
		Int("fail_items", sess.FailItems).
		Msg("session finished")
}

// notifyTerminal calls the report sink once per terminal transition. The
// sink itself is idempotent per contract.
func (e *Engine) notifyTerminal(ctx context.Context, sess *model.Session) {
	if e.cfg.Report == nil {
		return
	}
	if err := e.cfg.Report.OnSessionTerminal(context.WithoutCancel(ctx), sess.ID, sess.Status); err != nil {
		log.WithComponent("engine").Warn().
			Err(err).
			Str(log.FieldSessionID, sess.ID).
			Msg("report sink failed")
	}
}

func (e *Engine) publish(sess *model.Session, currentItem string) {
	e.publishProgress(sess, sess.PassItems+sess.FailItems, currentItem)
}

func (e *Engine) publishProgress(sess *model.Session, executed int, currentItem string) {
	e.cfg.Bus.Publish(model.Snapshot{
		SessionID:     sess.ID,
		Status:        sess.Status,
		ExecutedCount: executed,
		Total:         sess.TotalItems,
		CurrentItem:   currentItem,
		PassItems:     sess.PassItems,
		FailItems:     sess.FailItems,
		FinalResult:   sess.FinalResult,
	})
}

func snapshotOf(sess *model.Session, currentItem string) model.Snapshot {
	return model.Snapshot{
		SessionID:     sess.ID,
		Status:        sess.Status,
		ExecutedCount: sess.PassItems + sess.FailItems,
		Total:         sess.TotalItems,
		CurrentItem:   currentItem,
		PassItems:     sess.PassItems,
		FailItems:     sess.FailItems,
		FinalResult:   sess.FinalResult,
	}
}
