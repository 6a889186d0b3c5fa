package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/config"
	"github.com/sells-group/metrics-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertRemovalRate    AlertType = "removal_rate"
	AlertLowQuality     AlertType = "low_quality"
)

// minFinishedRuns keeps a single failure from tripping the rate alert.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.DefaultRetryConfig(),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Cleanup run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.RemovalRateThreshold > 0 && snap.RunsComplete > 0 && snap.AvgRemovalRate > a.cfg.RemovalRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRemovalRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Average removal rate %.1f%% exceeds threshold %.1f%% across %d runs in last %dh",
				snap.AvgRemovalRate*100, a.cfg.RemovalRateThreshold*100,
				snap.RunsComplete, snap.LookbackHours,
			),
			Details: map[string]any{
				"avg_removal_rate": snap.AvgRemovalRate,
				"threshold":        a.cfg.RemovalRateThreshold,
				"removed":          snap.Removed,
				"records":          snap.Records,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinQualityScore > 0 && snap.RunsComplete > 0 && snap.LowestQuality < a.cfg.MinQualityScore {
		alerts = append(alerts, Alert{
			Type:     AlertLowQuality,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Source %s scored %.3f, below minimum quality %.3f",
				snap.LowestQualitySource, snap.LowestQuality, a.cfg.MinQualityScore,
			),
			Details: map[string]any{
				"source_id":   snap.LowestQualitySource,
				"quality":     snap.LowestQuality,
				"avg_quality": snap.AvgQuality,
				"minimum":     a.cfg.MinQualityScore,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts one alert, retrying timeouts, refused connections, and
// retryable status codes.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	retry := a.retry
	retry.OnRetry = resilience.RetryLogger("monitoring.webhook")

	err = resilience.Do(ctx, retry, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := a.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 400 {
			statusErr := fmt.Errorf("webhook returned status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return statusErr
		}
		return nil
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	return nil
}
