// Package metrics holds the Prometheus collectors for the pipeline. A nil *Registry is valid
// and records nothing, so components can run without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the autoposter
type Registry struct {
	reg *prometheus.Registry

	Assignments        *prometheus.CounterVec
	GenerationAttempts *prometheus.CounterVec
	GenerationResults  *prometheus.CounterVec
	PublishResults     *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	CallLatency        *prometheus.HistogramVec
	TickDuration       prometheus.Histogram
	TicksInFlight      prometheus.Gauge
}

// New creates and registers all collectors on a private registry
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoposter_assignments_total",
				Help: "Topic-to-persona assignments by outcome",
			},
			[]string{"outcome"},
		),

		GenerationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoposter_generation_attempts_total",
				Help: "Generation API calls by result",
			},
			[]string{"result"},
		),

		GenerationResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoposter_generation_results_total",
				Help: "Work items leaving generation by final state",
			},
			[]string{"state"},
		),

		PublishResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoposter_publish_results_total",
				Help: "Publish outcomes per persona",
			},
			[]string{"persona", "outcome"},
		),

		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoposter_ledger_transitions_total",
				Help: "Ledger status transitions by target status",
			},
			[]string{"to"},
		),

		CallLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoposter_remote_call_seconds",
				Help:    "Latency of calls to external services",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"service", "op", "result"},
		),

		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "autoposter_tick_duration_seconds",
				Help:    "Wall-clock duration of publish scheduler ticks",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),

		TicksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "autoposter_ticks_in_flight",
				Help: "Publish ticks currently running",
			},
		),
	}

	r.reg.MustRegister(
		r.Assignments,
		r.GenerationAttempts,
		r.GenerationResults,
		r.PublishResults,
		r.Transitions,
		r.CallLatency,
		r.TickDuration,
		r.TicksInFlight,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Assigned counts assignments with outcome "assigned" or "conflict"
func (r *Registry) Assigned(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.Assignments.WithLabelValues(outcome).Add(float64(n))
}

// GenerationAttempt counts one Generation API call
func (r *Registry) GenerationAttempt(result string) {
	if r == nil {
		return
	}
	r.GenerationAttempts.WithLabelValues(result).Inc()
}

// GenerationResult counts a work item leaving generation
func (r *Registry) GenerationResult(state string) {
	if r == nil {
		return
	}
	r.GenerationResults.WithLabelValues(state).Inc()
}

// PublishResult counts a publish outcome for persona
func (r *Registry) PublishResult(persona, outcome string) {
	if r == nil {
		return
	}
	r.PublishResults.WithLabelValues(persona, outcome).Inc()
}

// Transition counts a ledger transition
func (r *Registry) Transition(to string) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(to).Inc()
}

// ObserveCall records the latency of an external call started at start
func (r *Registry) ObserveCall(service, op string, start time.Time, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.CallLatency.WithLabelValues(service, op, result).Observe(time.Since(start).Seconds())
}

// TickStarted marks a tick in flight and returns a func that records its duration
func (r *Registry) TickStarted() func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	r.TicksInFlight.Inc()
	return func() {
		r.TicksInFlight.Dec()
		r.TickDuration.Observe(time.Since(start).Seconds())
	}
}
