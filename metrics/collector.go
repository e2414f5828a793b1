// Package metrics exports run and node measurements to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/songzhibin97/mediaflow/types"
)

// Collector implements workflow.Metrics using Prometheus
type Collector struct {
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	nodesExecuted *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec
	sharesCreated prometheus.Counter
}

// NewCollector registers the collector's metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		runsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mediaflow_runs_started_total",
				Help: "Total number of workflow runs started",
			},
		),
		runsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaflow_runs_finished_total",
				Help: "Total number of workflow runs finished",
			},
			[]string{"outcome"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediaflow_active_runs",
				Help: "Number of runs currently executing",
			},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediaflow_run_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),
		nodesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaflow_nodes_executed_total",
				Help: "Total number of nodes that reached a terminal status",
			},
			[]string{"kind", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediaflow_node_duration_seconds",
				Help:    "Node execution duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		sharesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mediaflow_shares_created_total",
				Help: "Total number of share links created",
			},
		),
	}
}

// RunStarted counts a run and marks it active
func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
	c.activeRuns.Inc()
}

// RunFinished records the outcome and duration of a run
func (c *Collector) RunFinished(outcome string, d time.Duration) {
	c.activeRuns.Dec()
	c.runsFinished.WithLabelValues(outcome).Inc()
	c.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// NodeFinished records a node's terminal status. Blocked nodes never ran, so
// they add no duration sample.
func (c *Collector) NodeFinished(kind types.NodeKind, status types.Status, d time.Duration) {
	label := kindLabel(kind)
	c.nodesExecuted.WithLabelValues(label, string(status)).Inc()
	if status != types.StatusBlocked {
		c.nodeDuration.WithLabelValues(label).Observe(d.Seconds())
	}
}

// unknownKind labels every kind outside the built-in set, since kinds come from clients.
const unknownKind = "unknown"

func kindLabel(kind types.NodeKind) string {
	if !kind.Known() {
		return unknownKind
	}
	return string(kind)
}

// ShareCreated counts a new share link
func (c *Collector) ShareCreated() {
	c.sharesCreated.Inc()
}
