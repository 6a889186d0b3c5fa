package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/metrics-cli/internal/model"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for cleanup runs. All names are
// prefixed "metrics_cli_".
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	RecordsTotal   *prometheus.CounterVec
	RulesTotal     *prometheus.CounterVec
	SkippedTotal   prometheus.Counter
	QualityScore   *prometheus.GaugeVec
	RemovalRate    *prometheus.GaugeVec
	WindowRuns     *prometheus.GaugeVec
	WindowFailRate prometheus.Gauge
	WindowQuality  prometheus.Gauge
}

// NewMetrics registers the collectors with the default registry once and
// returns the shared instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "metrics_cli_runs_total",
					Help: "Cleanup runs finished, by terminal status",
				},
				[]string{"status"},
			),
			RunDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "metrics_cli_run_duration_seconds",
					Help:    "Wall time of one cleanup run",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
				},
			),
			RecordsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "metrics_cli_records_total",
					Help: "Records classified, by action",
				},
				[]string{"action"},
			),
			RulesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "metrics_cli_rule_decisions_total",
					Help: "Decisions attributed to each rule",
				},
				[]string{"rule"},
			),
			SkippedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "metrics_cli_skipped_rows_total",
					Help: "Input rows rejected before classification",
				},
			),
			QualityScore: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "metrics_cli_quality_score",
					Help: "Quality score of the latest run per source",
				},
				[]string{"source_id"},
			),
			RemovalRate: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "metrics_cli_removal_rate",
					Help: "Removal rate of the latest run per source",
				},
				[]string{"source_id"},
			),
			WindowRuns: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "metrics_cli_window_runs",
					Help: "Runs in the monitoring lookback window, by status",
				},
				[]string{"status"},
			),
			WindowFailRate: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "metrics_cli_window_fail_rate",
					Help: "Share of finished runs in the lookback window that failed",
				},
			),
			WindowQuality: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "metrics_cli_window_avg_quality",
					Help: "Mean quality score of complete runs in the lookback window",
				},
			),
		}
	})
	return globalMetrics
}

// ObserveRun records a finished run. summary is nil for failed runs.
func (m *Metrics) ObserveRun(status model.RunStatus, summary *model.Summary, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	if summary == nil {
		return
	}

	m.RecordsTotal.WithLabelValues(string(model.ActionKeep)).Add(float64(summary.Kept))
	m.RecordsTotal.WithLabelValues(string(model.ActionRemove)).Add(float64(summary.Removed))
	m.RecordsTotal.WithLabelValues(string(model.ActionModify)).Add(float64(summary.Modified))
	for rule, n := range summary.RuleCounts {
		m.RulesTotal.WithLabelValues(rule).Add(float64(n))
	}
	m.SkippedTotal.Add(float64(summary.Skipped))
	m.QualityScore.WithLabelValues(summary.SourceID).Set(summary.Quality.Final)
	m.RemovalRate.WithLabelValues(summary.SourceID).Set(summary.RemovalRate)
}

// SetSnapshot publishes a collector snapshot as gauges.
func (m *Metrics) SetSnapshot(snap *MetricsSnapshot) {
	m.WindowRuns.WithLabelValues(string(model.RunStatusComplete)).Set(float64(snap.RunsComplete))
	m.WindowRuns.WithLabelValues(string(model.RunStatusFailed)).Set(float64(snap.RunsFailed))
	m.WindowRuns.WithLabelValues("active").Set(float64(snap.RunsActive))
	m.WindowFailRate.Set(snap.FailRate)
	m.WindowQuality.Set(snap.AvgQuality)
}
