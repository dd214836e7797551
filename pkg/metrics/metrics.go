// Package metrics holds the prometheus instruments of the query engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for executions.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// Metrics wraps the engine's counters. A nil *Metrics records nothing, so
// callers never check whether instrumentation is enabled.
type Metrics struct {
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	adaptations       prometheus.Counter
	fallbacks         *prometheus.CounterVec
	lookups           *prometheus.CounterVec
}

// New creates the instruments under prefix and registers them with reg.
// A nil reg leaves them unregistered, which tests use to read values
// without touching the global registry.
func New(prefix string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_executions_total",
				Help: "Safe executions by outcome",
			},
			[]string{"outcome"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_execution_duration_seconds",
				Help:    "Duration of safe executions in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"outcome"},
		),
		adaptations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_adaptations_total",
			Help: "Queries rewritten before execution",
		}),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_fallbacks_total",
				Help: "Fallback queries by result",
			},
			[]string{"result"},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_normalization_lookups_total",
				Help: "Foreign-key and related-row lookups by status",
			},
			[]string{"status"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.executions, m.executionDuration, m.adaptations, m.fallbacks, m.lookups} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveExecution counts one ExecuteSafely call.
func (m *Metrics) ObserveExecution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(outcome).Inc()
	m.executionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncAdaptation counts a query that AdaptQuery changed.
func (m *Metrics) IncAdaptation() {
	if m == nil {
		return
	}
	m.adaptations.Inc()
}

// IncFallback counts a fallback attempt; result is "rows", "empty" or "failed".
func (m *Metrics) IncFallback(result string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(result).Inc()
}

// IncLookup counts a normalization lookup; status is "ok" or "error".
func (m *Metrics) IncLookup(status string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(status).Inc()
}

// Executions exposes the execution counter for inspection.
func (m *Metrics) Executions() *prometheus.CounterVec { return m.executions }

// Adaptations exposes the adaptation counter for inspection.
func (m *Metrics) Adaptations() prometheus.Counter { return m.adaptations }

// Fallbacks exposes the fallback counter for inspection.
func (m *Metrics) Fallbacks() *prometheus.CounterVec { return m.fallbacks }

// Lookups exposes the lookup counter for inspection.
func (m *Metrics) Lookups() *prometheus.CounterVec { return m.lookups }
