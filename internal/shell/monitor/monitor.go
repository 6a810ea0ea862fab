// Package monitor records deployment metrics and delivers operator alerts.
// Metrics are exported through Prometheus; alerts go to the structured log
// and, when configured, to a webhook.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/rollout/internal/shell/orchestrator"
)

// ErrWebhookFailed is returned when the alert webhook rejects a delivery.
var ErrWebhookFailed = errors.New("alert webhook delivery failed")

const webhookTimeout = 10 * time.Second

// =============================================================================
// Monitor
// =============================================================================

// Monitor implements the orchestrator's Monitor port.
type Monitor struct {
	logger     *slog.Logger
	client     *http.Client
	webhookURL string

	deployments *prometheus.CounterVec
	attempts    prometheus.Histogram
	duration    prometheus.Histogram
	alerts      *prometheus.CounterVec
}

// NewMonitor creates a monitor registering its metrics with reg. An empty
// webhookURL disables webhook delivery; alerts still reach the log.
func NewMonitor(reg prometheus.Registerer, webhookURL string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	factory := promauto.With(reg)

	return &Monitor{
		logger:     logger.With("component", "monitor"),
		client:     &http.Client{Timeout: webhookTimeout},
		webhookURL: webhookURL,

		deployments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_deployments_total",
				Help: "Total number of finished deployments by status",
			},
			[]string{"status"},
		),
		attempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rollout_deployment_attempts",
				Help:    "Attempts needed per finished deployment",
				Buckets: []float64{1, 2, 3, 5, 10},
			},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rollout_deployment_duration_seconds",
				Help:    "Wall-clock duration of finished deployments in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_alerts_total",
				Help: "Total number of alerts sent by severity",
			},
			[]string{"severity"},
		),
	}
}

// RecordDeploymentMetrics publishes the outcome of a finished deployment.
func (m *Monitor) RecordDeploymentMetrics(_ context.Context, dm orchestrator.DeploymentMetrics) error {
	m.deployments.WithLabelValues(dm.Status).Inc()
	m.attempts.Observe(float64(dm.Attempts))
	m.duration.Observe(dm.Duration.Seconds())

	m.logger.Info("deployment metrics recorded",
		"deployment_id", dm.DeploymentID,
		"status", dm.Status,
		"attempts", dm.Attempts,
		"services", dm.Services,
		"duration", dm.Duration,
	)
	return nil
}

// SendAlert logs the alert and delivers it to the webhook when configured.
func (m *Monitor) SendAlert(ctx context.Context, alert orchestrator.Alert) error {
	m.alerts.WithLabelValues(alert.Severity).Inc()

	level := slog.LevelInfo
	if alert.Severity == orchestrator.SeverityCritical {
		level = slog.LevelError
	}
	m.logger.Log(ctx, level, "alert",
		"severity", alert.Severity,
		"summary", alert.Summary,
		"deployment_id", alert.DeploymentID,
		"detail", alert.Detail,
	)

	if m.webhookURL == "" {
		return nil
	}
	return m.deliverWebhook(ctx, alert)
}

func (m *Monitor) deliverWebhook(ctx context.Context, alert orchestrator.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrWebhookFailed, resp.Status)
	}
	return nil
}
