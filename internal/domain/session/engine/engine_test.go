// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/store"
	"github.com/ManuGH/webpdtool/internal/measure"
	"github.com/ManuGH/webpdtool/internal/pipeline/bus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubHandler answers Execute from a per-item script.
type stubHandler struct {
	responses map[string]string
	errs      map[string]error
}

func (h *stubHandler) Prepare(ctx context.Context, env *measure.Env) error { return nil }

func (h *stubHandler) Execute(ctx context.Context, env *measure.Env) (string, error) {
	name := env.Point.ItemName
	if err, ok := h.errs[name]; ok {
		return "", err
	}
	if v, ok := h.responses[name]; ok {
		return v, nil
	}
	return "OK", nil
}

func (h *stubHandler) Cleanup(ctx context.Context, env *measure.Env) error { return nil }

// blockingHandler parks Execute until the session context is cancelled.
type blockingHandler struct {
	started   chan struct{}
	startOnce sync.Once
}

func (h *blockingHandler) Prepare(ctx context.Context, env *measure.Env) error { return nil }

func (h *blockingHandler) Execute(ctx context.Context, env *measure.Env) (string, error) {
	h.startOnce.Do(func() { close(h.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

func (h *blockingHandler) Cleanup(ctx context.Context, env *measure.Env) error { return nil }

// reportRecorder counts terminal notifications per session.
type reportRecorder struct {
	mu    sync.Mutex
	calls map[string][]model.Status
}

func newReportRecorder() *reportRecorder {
	return &reportRecorder{calls: make(map[string][]model.Status)}
}

func (r *reportRecorder) OnSessionTerminal(ctx context.Context, sessionID string, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[sessionID] = append(r.calls[sessionID], status)
	return nil
}

func (r *reportRecorder) statuses(sessionID string) []model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Status(nil), r.calls[sessionID]...)
}

type fixture struct {
	engine *Engine
	store  store.Store
	bus    *bus.ProgressBus
	report *reportRecorder
}

func newFixture(t *testing.T, h measure.Handler) *fixture {
	t.Helper()
	s := store.NewMemory()
	reg := measure.NewRegistry()
	reg.Register(plan.ExecOther, func() measure.Handler { return h })
	b := bus.NewProgressBus()
	rep := newReportRecorder()
	e := New(Config{
		Plans:      s,
		Results:    s,
		Dispatcher: measure.NewDispatcher(reg, nil),
		Bus:        b,
		Report:     rep,
		RetryMax:   1,
	})
	return &fixture{engine: e, store: s, bus: b, report: rep}
}

func stubPoint(no int, name string) plan.Point {
	return plan.Point{
		ItemNo:        no,
		ItemName:      name,
		ExecuteName:   plan.ExecOther,
		LimitType:     plan.LimitNone,
		ValueType:     plan.ValueString,
		Enabled:       true,
		SequenceOrder: no,
	}
}

func eqPoint(no int, name, expect string) plan.Point {
	p := stubPoint(no, name)
	p.LimitType = plan.LimitEquality
	p.EqLimit = expect
	return p
}

func savePlan(t *testing.T, f *fixture, points ...plan.Point) {
	t.Helper()
	require.NoError(t, f.store.SavePlan(context.Background(), "ST-10", points))
}

func startSession(t *testing.T, f *fixture, runAll bool) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.engine.CreateSession(ctx, "SN001", "ST-10", "op-7", runAll)
	require.NoError(t, err)
	status, err := f.engine.Start(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusRunning, status)
	return id
}

func finishedSession(t *testing.T, f *fixture, id string) *model.Session {
	t.Helper()
	f.engine.Wait(id)
	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t, &stubHandler{})
	_, err := f.engine.CreateSession(context.Background(), "", "ST-10", "op-7", false)
	require.Error(t, err)
	_, err = f.engine.CreateSession(context.Background(), "SN001", "", "op-7", false)
	require.Error(t, err)
}

func TestFullPass(t *testing.T) {
	h := &stubHandler{responses: map[string]string{
		"sn-read":    "SN001",
		"vcc-check":  "12.01",
		"fw-version": "FW-1.2",
	}}
	f := newFixture(t, h)
	savePlan(t, f,
		stubPoint(10, "sn-read"),
		stubPoint(20, "vcc-check"),
		stubPoint(30, "fw-version"),
	)

	id := startSession(t, f, false)
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusCompleted, sess.Status)
	assert.Equal(t, model.FinalPass, sess.FinalResult)
	assert.Equal(t, 3, sess.TotalItems)
	assert.Equal(t, 3, sess.PassItems)
	assert.Equal(t, 0, sess.FailItems)
	require.NotNil(t, sess.StartTime)
	require.NotNil(t, sess.EndTime)

	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "12.01", rows[1].MeasuredValue)
	assert.Equal(t, model.PointPass, rows[1].Result)

	assert.Equal(t, []model.Status{model.StatusCompleted}, f.report.statuses(id))

	snap, ok := f.bus.Latest(id)
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, snap.Status)
	assert.Equal(t, model.FinalPass, snap.FinalResult)
}

func TestAllPointsDisabledCompletesEmpty(t *testing.T) {
	f := newFixture(t, &stubHandler{})
	p := stubPoint(10, "disabled-item")
	p.Enabled = false
	savePlan(t, f, p)

	id := startSession(t, f, false)
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusCompleted, sess.Status)
	assert.Equal(t, model.FinalPass, sess.FinalResult)
	assert.Equal(t, 0, sess.TotalItems)

	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFailureHaltsByDefault(t *testing.T) {
	h := &stubHandler{responses: map[string]string{"fw-version": "FW-9.9"}}
	f := newFixture(t, h)
	savePlan(t, f,
		stubPoint(10, "sn-read"),
		eqPoint(20, "fw-version", "FW-1.2"),
		stubPoint(30, "never-runs"),
	)

	id := startSession(t, f, false)
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusFailed, sess.Status)
	assert.Equal(t, model.FinalFail, sess.FinalResult)
	assert.Equal(t, 1, sess.PassItems)
	assert.Equal(t, 1, sess.FailItems)

	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.PointFail, rows[1].Result)
}

func TestRunAllTestContinuesPastFailure(t *testing.T) {
	h := &stubHandler{responses: map[string]string{"fw-version": "FW-9.9"}}
	f := newFixture(t, h)
	savePlan(t, f,
		stubPoint(10, "sn-read"),
		eqPoint(20, "fw-version", "FW-1.2"),
		stubPoint(30, "still-runs"),
	)

	id := startSession(t, f, true)
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusFailed, sess.Status)
	assert.Equal(t, 2, sess.PassItems)
	assert.Equal(t, 1, sess.FailItems)

	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSkipOnMissingUpstream(t *testing.T) {
	h := &stubHandler{errs: map[string]error{"source": errors.New("instrument hiccup")}}
	f := newFixture(t, h)
	consumer := stubPoint(20, "consumer")
	consumer.UseResult = "source"
	savePlan(t, f, stubPoint(10, "source"), consumer)

	id := startSession(t, f, true)
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusFailed, sess.Status)

	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.PointError, rows[0].Result)
	assert.Equal(t, model.PointSkip, rows[1].Result)
	assert.Equal(t, "missing upstream result", rows[1].ErrorMessage)
}

func TestSkipDoesNotHaltNormalMode(t *testing.T) {
	f := newFixture(t, &stubHandler{})
	dangling := stubPoint(20, "consumer")
	dangling.UseResult = "ghost"
	savePlan(t, f,
		stubPoint(10, "sn-read"),
		dangling,
		stubPoint(30, "still-runs"),
	)

	id := startSession(t, f, false)
	sess := finishedSession(t, f, id)

	// SKIP counts as a failed item but never stops execution.
	assert.Equal(t, model.StatusFailed, sess.Status)
	assert.Equal(t, 2, sess.PassItems)
	assert.Equal(t, 1, sess.FailItems)

	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, model.PointSkip, rows[1].Result)
	assert.Equal(t, model.PointPass, rows[2].Result)
}

func TestConcurrentStartSpawnsOneExecutor(t *testing.T) {
	h := &blockingHandler{started: make(chan struct{})}
	f := newFixture(t, h)
	savePlan(t, f, stubPoint(10, "blocks"))

	id, err := f.engine.CreateSession(context.Background(), "SN001", "ST-10", "op-7", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := f.engine.Start(context.Background(), id)
			assert.NoError(t, err)
			assert.Equal(t, model.StatusRunning, status)
		}()
	}
	wg.Wait()

	select {
	case <-h.started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}
	require.NoError(t, f.engine.Stop(context.Background(), id))
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusAborted, sess.Status)

	// A second executor would have produced a duplicate terminal report.
	assert.Equal(t, []model.Status{model.StatusAborted}, f.report.statuses(id))
	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rows), 1)
}

func TestStartIsIdempotentOnTerminal(t *testing.T) {
	f := newFixture(t, &stubHandler{})
	savePlan(t, f, stubPoint(10, "only"))

	id := startSession(t, f, false)
	f.engine.Wait(id)

	status, err := f.engine.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status)

	// No second run, no second report.
	assert.Equal(t, []model.Status{model.StatusCompleted}, f.report.statuses(id))
}

func TestStopPendingSession(t *testing.T) {
	f := newFixture(t, &stubHandler{})
	savePlan(t, f, stubPoint(10, "only"))

	id, err := f.engine.CreateSession(context.Background(), "SN001", "ST-10", "op-7", false)
	require.NoError(t, err)

	require.NoError(t, f.engine.Stop(context.Background(), id))
	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAborted, sess.Status)
	assert.Equal(t, model.FinalAbort, sess.FinalResult)
	assert.Equal(t, []model.Status{model.StatusAborted}, f.report.statuses(id))

	// Stopping again is a no-op.
	require.NoError(t, f.engine.Stop(context.Background(), id))
	assert.Len(t, f.report.statuses(id), 1)
}

func TestStopRunningSession(t *testing.T) {
	h := &blockingHandler{started: make(chan struct{})}
	f := newFixture(t, h)
	savePlan(t, f, stubPoint(10, "blocks"), stubPoint(20, "never-runs"))

	id := startSession(t, f, false)
	select {
	case <-h.started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	require.NoError(t, f.engine.Stop(context.Background(), id))
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusAborted, sess.Status)
	assert.Equal(t, model.FinalAbort, sess.FinalResult)
	require.NotNil(t, sess.EndTime)
}

func TestOPJudgeAbort(t *testing.T) {
	h := &stubHandler{errs: map[string]error{"op-check": measure.ErrAbortSession}}
	f := newFixture(t, h)
	savePlan(t, f,
		stubPoint(10, "sn-read"),
		stubPoint(20, "op-check"),
		stubPoint(30, "never-runs"),
	)

	id := startSession(t, f, false)
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusAborted, sess.Status)
	assert.Equal(t, model.FinalAbort, sess.FinalResult)

	rows, err := f.store.ListResults(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.PointFail, rows[1].Result)
}

func TestPlanLoadFailureGoesError(t *testing.T) {
	f := newFixture(t, &stubHandler{})
	// No plan saved for ST-10.
	id := startSession(t, f, false)
	sess := finishedSession(t, f, id)

	assert.Equal(t, model.StatusError, sess.Status)
	assert.Equal(t, model.FinalFail, sess.FinalResult)
}

// flakyStore fails every SaveResult to exercise retry exhaustion.
type flakyStore struct {
	store.Store
}

func (s *flakyStore) SaveResult(ctx context.Context, r *model.Result) error {
	return errors.New("disk full")
}

func TestResultPersistenceFailureGoesError(t *testing.T) {
	mem := store.NewMemory()
	flaky := &flakyStore{Store: mem}
	reg := measure.NewRegistry()
	reg.Register(plan.ExecOther, func() measure.Handler { return &stubHandler{} })
	b := bus.NewProgressBus()
	rep := newReportRecorder()
	e := New(Config{
		Plans:      mem,
		Results:    flaky,
		Dispatcher: measure.NewDispatcher(reg, nil),
		Bus:        b,
		Report:     rep,
		RetryMax:   1,
	})
	require.NoError(t, mem.SavePlan(context.Background(), "ST-10", []plan.Point{stubPoint(10, "only")}))

	id, err := e.CreateSession(context.Background(), "SN001", "ST-10", "op-7", false)
	require.NoError(t, err)
	_, err = e.Start(context.Background(), id)
	require.NoError(t, err)
	e.Wait(id)

	sess, err := mem.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, sess.Status)
	assert.Equal(t, []model.Status{model.StatusError}, rep.statuses(id))
}

func TestStatusFallsBackToStore(t *testing.T) {
	f := newFixture(t, &stubHandler{})
	savePlan(t, f, stubPoint(10, "only"))
	id := startSession(t, f, false)
	f.engine.Wait(id)

	f.bus.Forget(id)
	snap, err := f.engine.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.Total)
}
