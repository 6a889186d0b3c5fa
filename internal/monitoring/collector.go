// Package monitoring tracks run health: Prometheus metrics for every cleanup
// run, periodic snapshots of recent runs from the store, and webhook alerts
// when those snapshots cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of recent cleanup runs.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsActive   int     `json:"runs_active"`
	FailRate     float64 `json:"fail_rate"`

	// Record totals across complete runs.
	Records  int `json:"records"`
	Kept     int `json:"kept"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Skipped  int `json:"skipped"`

	AvgRemovalRate float64 `json:"avg_removal_rate"`
	AvgQuality     float64 `json:"avg_quality"`
	// LowestQuality is the worst complete run in the window.
	LowestQuality       float64 `json:"lowest_quality"`
	LowestQualitySource string  `json:"lowest_quality_source,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store method the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect summarizes runs created within the lookback window. A zero or
// negative lookback covers all runs.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	filter := store.RunFilter{Limit: 10000}
	if lookbackHours > 0 {
		filter.CreatedAfter = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	runs, err := c.runs.ListRuns(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var removalSum, qualitySum float64
	var summarized int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsActive++
		}
		if r.Status != model.RunStatusComplete || r.Summary == nil {
			continue
		}

		s := r.Summary
		snap.Records += s.Total
		snap.Kept += s.Kept
		snap.Removed += s.Removed
		snap.Modified += s.Modified
		snap.Skipped += s.Skipped
		removalSum += s.RemovalRate
		qualitySum += s.Quality.Final
		if summarized == 0 || s.Quality.Final < snap.LowestQuality {
			snap.LowestQuality = s.Quality.Final
			snap.LowestQualitySource = s.SourceID
		}
		summarized++
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if summarized > 0 {
		snap.AvgRemovalRate = removalSum / float64(summarized)
		snap.AvgQuality = qualitySum / float64(summarized)
	}
	return snap, nil
}
