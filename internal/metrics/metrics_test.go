// SPDX-License-Identifier: MIT
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestSessionCounters(t *testing.T) {
	SessionStarted()
	SessionTerminal("COMPLETED")

	mf := gather(t, "webpdtool_sessions_started_total")
	require.NotNil(t, mf)
	assert.GreaterOrEqual(t, mf.GetMetric()[0].GetCounter().GetValue(), 1.0)

	mf = gather(t, "webpdtool_sessions_terminal_total")
	require.NotNil(t, mf)
}

func TestPointExecutedObservesDuration(t *testing.T) {
	PointExecuted("PowerRead", "PASS", 0.05)

	mf := gather(t, "webpdtool_point_duration_seconds")
	require.NotNil(t, mf)
	found := false
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "execute_name" && lp.GetValue() == "PowerRead" {
				found = true
				assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
			}
		}
	}
	assert.True(t, found)
}

func TestInstrumentStateIsExclusive(t *testing.T) {
	InstrumentState("DAQ973A_1", "BUSY")

	mf := gather(t, "webpdtool_instrument_state")
	require.NotNil(t, mf)

	values := map[string]float64{}
	for _, m := range mf.GetMetric() {
		var id, state string
		for _, lp := range m.GetLabel() {
			switch lp.GetName() {
			case "instrument_id":
				id = lp.GetValue()
			case "state":
				state = lp.GetValue()
			}
		}
		if id == "DAQ973A_1" {
			values[state] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, values["BUSY"])
	assert.Equal(t, 0.0, values["IDLE"])
	assert.Equal(t, 0.0, values["OFFLINE"])
	assert.Equal(t, 0.0, values["ERROR"])
}
