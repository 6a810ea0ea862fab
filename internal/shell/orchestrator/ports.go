// Package orchestrator coordinates multi-service deployments: pre-flight
// environment validation, bounded retries under a timeout, health
// verification, and compensating rollback. It depends on three ports
// implemented by adapters; no foreign error type escapes its public surface.
package orchestrator

import (
	"context"
	"time"
)

// =============================================================================
// Ports
// =============================================================================

// ServiceStatus is the status reported for one service.
type ServiceStatus struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// StatusHealthy is the status value a service must report to pass health
// verification.
const StatusHealthy = "healthy"

// ServiceManager deploys, rolls back, and inspects named services.
type ServiceManager interface {
	DeployService(ctx context.Context, name string) error
	RollbackService(ctx context.Context, name string) error
	ServiceStatus(ctx context.Context, name string) (ServiceStatus, error)
	CleanupDeployment(ctx context.Context, deploymentID string) error
}

// EnvironmentValidator performs pre-deployment requirement and
// compatibility checks.
type EnvironmentValidator interface {
	ValidateRequirements(ctx context.Context) (bool, error)
	CheckCompatibility(ctx context.Context) (bool, error)
}

// Monitor receives deployment metrics and alerts.
type Monitor interface {
	RecordDeploymentMetrics(ctx context.Context, m DeploymentMetrics) error
	SendAlert(ctx context.Context, a Alert) error
}

// =============================================================================
// Monitoring Payloads
// =============================================================================

// DeploymentMetrics summarizes a finished deployment for the monitoring
// sink.
type DeploymentMetrics struct {
	DeploymentID string
	Status       string
	Attempts     int
	Services     int
	Duration     time.Duration
}

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityCritical = "critical"
)

// Alert is an operator notification dispatched through the monitoring port.
type Alert struct {
	Severity     string `json:"severity"`
	Summary      string `json:"summary"`
	DeploymentID string `json:"deployment_id"`
	Detail       string `json:"detail,omitempty"`
}
