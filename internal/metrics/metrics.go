package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glosar",
			Subsystem: "run",
			Name:      "state_transitions_total",
			Help:      "Number of run state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "glosar",
			Subsystem: "run",
			Name:      "current_state",
			Help:      "Current run state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	guideOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glosar",
			Subsystem: "guide",
			Name:      "outcomes_total",
			Help:      "Status records emitted, by status.",
		}, []string{"status"},
	)
	checkpointOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glosar",
			Subsystem: "checkpoint",
			Name:      "outcomes_total",
			Help:      "Manual-intervention checkpoint results.",
		}, []string{"outcome"},
	)
	diagnosticCaptures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glosar",
			Subsystem: "diagnostic",
			Name:      "captures_total",
			Help:      "Diagnostic screenshot attempts, by result.",
		}, []string{"result"},
	)
	resolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "glosar",
			Subsystem: "resolve",
			Name:      "duration_seconds",
			Help:      "Time spent resolving a selector across surfaces.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"outcome"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{stateTransitions, currentState, guideOutcomes, checkpointOutcomes, diagnosticCaptures, resolveDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentState.WithLabelValues(state).Set(value)
	}
}

func IncGuideOutcome(status string) {
	if regOK.Load() {
		guideOutcomes.WithLabelValues(status).Inc()
	}
}

func IncCheckpoint(outcome string) {
	if regOK.Load() {
		checkpointOutcomes.WithLabelValues(outcome).Inc()
	}
}

func IncDiagnosticCapture(ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "failed"
		}
		diagnosticCaptures.WithLabelValues(result).Inc()
	}
}

func ObserveResolve(found bool, seconds float64) {
	if regOK.Load() {
		outcome := "found"
		if !found {
			outcome = "timeout"
		}
		resolveDuration.WithLabelValues(outcome).Observe(seconds)
	}
}
