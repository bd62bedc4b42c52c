package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-level instruments for the generation pipeline.
type Metrics struct {
	registry *prometheus.Registry

	stageRuns     *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	handoffs      prometheus.Counter
	sweeps        prometheus.Counter
}

// New builds the metric set on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.stageRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pressgen_stage_runs_total",
		Help: "Pipeline stage executions by stage name.",
	}, []string{"stage"})
	m.stageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pressgen_stage_failures_total",
		Help: "Pipeline stage executions that ended in failure.",
	}, []string{"stage"})
	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pressgen_stage_duration_seconds",
		Help:    "Wall time per stage execution.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"stage"})
	m.handoffs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pressgen_stage_handoffs_total",
		Help: "Stage events published to the handoff stream.",
	})
	m.sweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pressgen_sweeper_retriggers_total",
		Help: "Stalled generations re-triggered by the sweeper.",
	})

	m.registry.MustRegister(m.stageRuns, m.stageFailures, m.stageDuration, m.handoffs, m.sweeps)
	return m
}

// ObserveStage records one stage execution outcome.
func (m *Metrics) ObserveStage(stage string, seconds float64, failed bool) {
	m.stageRuns.WithLabelValues(stage).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
	if failed {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// HandoffPublished counts one published stage event.
func (m *Metrics) HandoffPublished() { m.handoffs.Inc() }

// SweepRetriggered counts one sweeper re-trigger.
func (m *Metrics) SweepRetriggered() { m.sweeps.Inc() }

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
