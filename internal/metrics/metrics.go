// Package metrics exposes prometheus collectors for gate decisions and ledger
// transitions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	admission         *prometheus.CounterVec
	ledger            *prometheus.CounterVec
	ledgerRaces       prometheus.Counter
	admissionDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		admission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "admission_decisions_total",
			Help:      "Admission gate decisions by method and status.",
		}, []string{"method", "status"}),
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "ledger_operations_total",
			Help:      "Attendance ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ledgerRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "ledger_insert_races_total",
			Help:      "Check-in inserts that lost the unique (phone, day) race and were re-read.",
		}),
		admissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollcall",
			Name:      "admission_evaluation_seconds",
			Help:      "Time spent evaluating admission.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"method"}),
	}
	reg.MustRegister(m.admission, m.ledger, m.ledgerRaces, m.admissionDuration,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// ObserveAdmission counts one gate decision.
func (m *Metrics) ObserveAdmission(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.admission.WithLabelValues(method, status).Inc()
	m.admissionDuration.WithLabelValues(method).Observe(seconds)
}

// ObserveLedger counts one ledger operation outcome.
func (m *Metrics) ObserveLedger(operation, outcome string) {
	if m == nil {
		return
	}
	m.ledger.WithLabelValues(operation, outcome).Inc()
}

// ObserveInsertRace counts a lost unique-key race.
func (m *Metrics) ObserveInsertRace() {
	if m == nil {
		return
	}
	m.ledgerRaces.Inc()
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
