// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	instrumentState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "webpdtool",
		Name:      "instrument_state",
		Help:      "Instrument connection state (1 for the current state, 0 otherwise)",
	}, []string{"instrument_id", "state"}) // state=OFFLINE|IDLE|BUSY|ERROR

	acquireWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "webpdtool",
		Name:      "instrument_acquire_wait_seconds",
		Help:      "Time callers spent waiting for an instrument lease",
		Buckets:   []float64{.001, .01, .05, .1, .5, 1, 2.5, 5},
	})

	acquireFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "instrument_acquire_failures_total",
		Help:      "Failed lease acquisitions by reason",
	}, []string{"reason"}) // reason=timeout|not_configured|init_failed

	instrumentResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "instrument_resets_total",
		Help:      "Driver resets performed by the instrument manager",
	})

	sfcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "sfc_requests_total",
		Help:      "SFC service calls by outcome",
	}, []string{"operation", "outcome"}) // outcome=success|failure
)

var instrumentStates = []string{"OFFLINE", "IDLE", "BUSY", "ERROR"}

// InstrumentState records a state transition for an instrument.
func InstrumentState(id, state string) {
	for _, s := range instrumentStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		instrumentState.WithLabelValues(id, s).Set(v)
	}
}

// AcquireWait records the time spent waiting for a lease.
func AcquireWait(seconds float64) {
	acquireWait.Observe(seconds)
}

// AcquireFailure records a failed lease acquisition.
func AcquireFailure(reason string) {
	acquireFailures.WithLabelValues(reason).Inc()
}

// InstrumentReset records a driver reset.
func InstrumentReset() {
	instrumentResets.Inc()
}

// SFCRequest records one SFC service call.
func SFCRequest(operation, outcome string) {
	sfcRequests.WithLabelValues(operation, outcome).Inc()
}
