// Package metrics provides per-run metrics recording for the orchestration
// pipeline, with a Prometheus-based implementation and a no-op default.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunRecord summarizes one handled request for the monitoring collaborator.
type RunRecord struct {
	// Duration is the wall-clock time from admission to terminal event.
	Duration time.Duration
	// Outcome is "success", "truncated", "failed" or "rejected".
	Outcome string
	// NodeVisits counts executions per node name within the run. Empty for
	// rejected requests.
	NodeVisits map[string]int
	// RejectedScope names the admission scope that rejected the request
	// ("caller" or "global"); empty otherwise.
	RejectedScope string
}

// Recorder consumes per-run records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRun(rec RunRecord)
}

// NoopRecorder discards all records.
type NoopRecorder struct{}

// ObserveRun implements Recorder.
func (NoopRecorder) ObserveRun(RunRecord) {}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements the Recorder interface using Prometheus
// metrics.
type PrometheusRecorder struct {
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	nodeVisits     *prometheus.CounterVec
	rejectionTotal *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder registering with the default
// Prometheus registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(nil)
}

// NewPrometheusRecorderWith creates a recorder registering with reg; a nil
// registerer uses the default registry.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryflow_runs_total",
				Help: "Total number of handled requests by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queryflow_run_duration_seconds",
				Help:    "Duration of runs from admission to terminal event",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		nodeVisits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryflow_node_visits_total",
				Help: "Total node executions by node name",
			},
			[]string{"node"},
		),
		rejectionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryflow_admission_rejections_total",
				Help: "Total admission rejections by scope",
			},
			[]string{"scope"},
		),
	}
}

// ObserveRun implements Recorder.
func (p *PrometheusRecorder) ObserveRun(rec RunRecord) {
	p.runsTotal.WithLabelValues(rec.Outcome).Inc()
	p.runDuration.WithLabelValues(rec.Outcome).Observe(rec.Duration.Seconds())
	for nodeName, count := range rec.NodeVisits {
		p.nodeVisits.WithLabelValues(nodeName).Add(float64(count))
	}
	if rec.RejectedScope != "" {
		p.rejectionTotal.WithLabelValues(rec.RejectedScope).Inc()
	}
}
