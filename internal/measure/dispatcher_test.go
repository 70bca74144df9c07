// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/instrument"
	"github.com/ManuGH/webpdtool/internal/instrument/drivers"
)

// scriptedHandler lets a test inject behaviour and records lifecycle calls.
type scriptedHandler struct {
	mu         sync.Mutex
	calls      []string
	prepareErr error
	execValue  string
	execErr    error
	panicOn    string
}

func (h *scriptedHandler) record(step string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, step)
	if h.panicOn == step {
		panic("scripted panic in " + step)
	}
}

func (h *scriptedHandler) Prepare(ctx context.Context, env *Env) error {
	h.record("prepare")
	return h.prepareErr
}

func (h *scriptedHandler) Execute(ctx context.Context, env *Env) (string, error) {
	h.record("execute")
	return h.execValue, h.execErr
}

func (h *scriptedHandler) Cleanup(ctx context.Context, env *Env) error {
	h.record("cleanup")
	return nil
}

// registryWith binds every canonical name a test needs to one handler.
func registryWith(h Handler, names ...string) *Registry {
	r := NewRegistry()
	for _, name := range names {
		r.Register(name, func() Handler { return h })
	}
	return r
}

func passPoint(executeName string) *plan.Point {
	return &plan.Point{
		ItemNo:      1,
		ItemName:    "item-1",
		ExecuteName: executeName,
		LimitType:   plan.LimitNone,
		ValueType:   plan.ValueString,
		Enabled:     true,
	}
}

func TestRunUnknownExecuteName(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil)
	out := d.Run(context.Background(), passPoint("Teleport"), nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointError, out.Result)
	assert.Contains(t, out.Error, "unknown execute_name")
}

func TestRunPassFlow(t *testing.T) {
	h := &scriptedHandler{execValue: "12.01"}
	d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

	p := passPoint("other")
	p.LimitType = plan.LimitBoth
	p.ValueType = plan.ValueFloat
	lower, upper := 11.5, 12.5
	p.LowerLimit, p.UpperLimit = &lower, &upper

	out := d.Run(context.Background(), p, nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointPass, out.Result)
	assert.Equal(t, "12.01", out.Measured)
	assert.Empty(t, out.Error)
	assert.Equal(t, []string{"prepare", "execute", "cleanup"}, h.calls)
}

func TestRunFailCarriesKernelReason(t *testing.T) {
	h := &scriptedHandler{execValue: "13.10"}
	d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

	p := passPoint("other")
	p.LimitType = plan.LimitBoth
	p.ValueType = plan.ValueFloat
	lower, upper := 11.5, 12.5
	p.LowerLimit, p.UpperLimit = &lower, &upper

	out := d.Run(context.Background(), p, nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointFail, out.Result)
	assert.Equal(t, "13.10 not in [11.5,12.5]", out.Error)
	// The measured value survives on FAIL for downstream use_result.
	assert.Equal(t, "13.10", out.Measured)
}

func TestRunPrepareErrorSkipsExecuteRunsCleanup(t *testing.T) {
	h := &scriptedHandler{prepareErr: errors.New("missing required parameter Command")}
	d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

	out := d.Run(context.Background(), passPoint("other"), nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointError, out.Result)
	assert.Contains(t, out.Error, "missing required parameter")
	assert.Equal(t, []string{"prepare", "cleanup"}, h.calls)
}

func TestRunExecuteErrorIsErrorNotFail(t *testing.T) {
	h := &scriptedHandler{execErr: errors.New("read timeout")}
	d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

	out := d.Run(context.Background(), passPoint("other"), nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointError, out.Result)
	assert.Equal(t, "read timeout", out.Error)
	assert.Equal(t, []string{"prepare", "execute", "cleanup"}, h.calls)
}

func TestRunSentinelStringsMapToError(t *testing.T) {
	for _, measured := range []string{"No instrument found", "No instrument found: psu-1", "Error: relay stuck"} {
		h := &scriptedHandler{execValue: measured}
		d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

		out := d.Run(context.Background(), passPoint("other"), nil, Env{SessionID: "s"})
		assert.Equal(t, model.PointError, out.Result, "measured %q", measured)
		assert.Equal(t, measured, out.Error)
	}
}

func TestRunEmptyMeasuredIsError(t *testing.T) {
	h := &scriptedHandler{execValue: ""}
	d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

	out := d.Run(context.Background(), passPoint("other"), nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointError, out.Result)
	assert.Equal(t, "empty measured value", out.Error)
}

func TestRunPanicBecomesError(t *testing.T) {
	h := &scriptedHandler{panicOn: "execute"}
	d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

	out := d.Run(context.Background(), passPoint("other"), nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointError, out.Result)
	assert.Contains(t, out.Error, "handler panic")
}

func TestRunAliasNormalisation(t *testing.T) {
	h := &scriptedHandler{execValue: "ok"}
	d := NewDispatcher(registryWith(h, plan.ExecChassisRotation), nil)

	out := d.Run(context.Background(), passPoint("CHASSIS_ROTATION"), nil, Env{SessionID: "s"})
	assert.Equal(t, model.PointPass, out.Result)
}

func TestSubstituteParams(t *testing.T) {
	p := &plan.Point{
		ItemName:  "downstream",
		UseResult: "sn-read",
		Parameters: map[string]string{
			"Command": "sn-read", // exact match, substituted
			"Port":    "5025",    // untouched
		},
	}
	resultMap := map[string]string{"sn-read": "SN12345678"}

	params := substituteParams(p, resultMap)
	assert.Equal(t, "SN12345678", params["Command"])
	assert.Equal(t, "5025", params["Port"])
	assert.Equal(t, "SN12345678", params[plan.ParamUpstreamValue])
}

func TestSubstituteParamsMissingUpstream(t *testing.T) {
	p := &plan.Point{UseResult: "absent", Parameters: map[string]string{"A": "x"}}
	params := substituteParams(p, map[string]string{})
	_, bound := params[plan.ParamUpstreamValue]
	assert.False(t, bound)
}

func TestRunDurationMeasured(t *testing.T) {
	h := &scriptedHandler{execValue: "ok"}
	d := NewDispatcher(registryWith(h, plan.ExecOther), nil)

	out := d.Run(context.Background(), passPoint("other"), nil, Env{SessionID: "s"})
	assert.GreaterOrEqual(t, out.DurationMS, int64(0))
}

// benchRegistry wires a Manager over scriptable fake drivers for handler
// tests.
type benchRegistry struct {
	responses map[string]map[string]string
}

func (r *benchRegistry) New(id string) (instrument.Driver, error) {
	return drivers.NewFake(r.responses[id]), nil
}

func (r *benchRegistry) IDs() []string {
	ids := make([]string, 0, len(r.responses))
	for id := range r.responses {
		ids = append(ids, id)
	}
	return ids
}

func newBenchManager(responses map[string]map[string]string) *instrument.Manager {
	return instrument.NewManager(&benchRegistry{responses: responses}, time.Second)
}
