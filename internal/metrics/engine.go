// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "sessions_started_total",
		Help:      "Total number of test sessions started",
	})

	sessionsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "sessions_terminal_total",
		Help:      "Sessions reaching a terminal status",
	}, []string{"status"}) // status=COMPLETED|FAILED|ABORTED|ERROR

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "webpdtool",
		Name:      "sessions_active",
		Help:      "Sessions currently in RUNNING state",
	})

	pointsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "points_executed_total",
		Help:      "Executed test points by result",
	}, []string{"result"}) // result=PASS|FAIL|SKIP|ERROR

	pointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "webpdtool",
		Name:      "point_duration_seconds",
		Help:      "Wall-clock duration of a single test point",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"execute_name"})

	repoRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "repository_retries_total",
		Help:      "Retried repository writes during result persistence",
	})

	progressPublishes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webpdtool",
		Name:      "progress_publishes_total",
		Help:      "Progress snapshots published to observers",
	})
)

// SessionStarted records a session transitioning to RUNNING.
func SessionStarted() {
	sessionsStarted.Inc()
	sessionsActive.Inc()
}

// SessionTerminal records a session reaching a terminal status.
func SessionTerminal(status string) {
	sessionsTerminal.WithLabelValues(status).Inc()
}

// SessionStopped removes a previously started session from the active gauge.
func SessionStopped() {
	sessionsActive.Dec()
}

// PointExecuted records one executed (or skipped) test point.
func PointExecuted(executeName, result string, seconds float64) {
	pointsExecuted.WithLabelValues(result).Inc()
	if executeName != "" {
		pointDuration.WithLabelValues(executeName).Observe(seconds)
	}
}

// RepoRetry records a retried repository write.
func RepoRetry() {
	repoRetries.Inc()
}

// ProgressPublished records one progress snapshot fan-out.
func ProgressPublished() {
	progressPublishes.Inc()
}
