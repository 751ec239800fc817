// Package metrics exposes the monitor's own Prometheus series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Store operations ───────────────────────────────────────────────────────

// OperationDuration tracks observed store operation latency in seconds.
var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dbpulse",
	Name:      "operation_duration_seconds",
	Help:      "Observed data-store operation duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"query_type", "table"})

// OperationsTotal counts observed store operations.
var OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dbpulse",
	Name:      "operations_total",
	Help:      "Total observed data-store operations.",
}, []string{"query_type", "table", "success"})

// MetricLogSize tracks the number of metrics held in memory.
var MetricLogSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "dbpulse",
	Name:      "metric_log_size",
	Help:      "Number of metrics currently held in the in-memory log.",
})

// ─── Alerts ─────────────────────────────────────────────────────────────────

// AlertsRaised counts raised (not suppressed) alerts.
var AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dbpulse",
	Name:      "alerts_raised_total",
	Help:      "Total alerts raised by type and severity.",
}, []string{"type", "severity"})

// AlertsSuppressed counts duplicates dropped by deduplication.
var AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dbpulse",
	Name:      "alerts_suppressed_total",
	Help:      "Total duplicate alerts discarded.",
}, []string{"type"})

// ─── Optimization ───────────────────────────────────────────────────────────

// IndexRecommendations tracks the size of the latest recommendation set.
var IndexRecommendations = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "dbpulse",
	Name:      "index_recommendations",
	Help:      "Index recommendations from the latest analysis by priority.",
}, []string{"priority"})

// ArchivedRecords counts records archived by smart archiving.
var ArchivedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dbpulse",
	Name:      "archived_records_total",
	Help:      "Total records archived by table.",
}, []string{"table"})

// SpaceReclaimed counts megabytes reclaimed by archiving.
var SpaceReclaimed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dbpulse",
	Name:      "space_reclaimed_megabytes_total",
	Help:      "Total megabytes reclaimed by archiving.",
})
