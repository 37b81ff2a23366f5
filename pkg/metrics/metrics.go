// Package metrics exposes the ambient Prometheus collectors for the
// simulation core: counts by simulation kind/outcome and a histogram of
// whole-run durations labelled by simulation kind ("failure", "scaling").
// Per-stage timings from the pipeline trace are not exported.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Registry struct {
	SimulationsTotal  *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	BreakerStateGauge *prometheus.GaugeVec
	DecisionLogErrors prometheus.Counter
}

func New(namespace string) *Registry {
	return &Registry{
		SimulationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Simulations processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each whole simulation run, by simulation kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		BreakerStateGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_provider_breaker_state",
			Help:      "Circuit breaker state for the graph provider adapter (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
		DecisionLogErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_log_errors_total",
			Help:      "Decision-sink writes that failed and were swallowed.",
		}),
	}
}

func (r *Registry) ObserveSimulation(kind, outcome string) {
	if r == nil {
		return
	}
	r.SimulationsTotal.WithLabelValues(kind, outcome).Inc()
}

func (r *Registry) ObserveStage(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (r *Registry) ObserveBreakerState(name string, state float64) {
	if r == nil {
		return
	}
	r.BreakerStateGauge.WithLabelValues(name).Set(state)
}

func (r *Registry) IncDecisionLogError() {
	if r == nil {
		return
	}
	r.DecisionLogErrors.Inc()
}
