// Package services provides a command-driven service manager. Each managed
// service declares its lifecycle commands in configuration; deploys,
// rollbacks, and cleanups shell out to those commands, and health is probed
// over HTTP when a probe URL is configured.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/shell/config"
	"github.com/artpar/rollout/internal/shell/orchestrator"
)

// =============================================================================
// Parameters
// =============================================================================

// Per-service configuration keys under services.<name>.
const (
	ParamDeployCmd   = "deploy_cmd"
	ParamRollbackCmd = "rollback_cmd"
	ParamHealthURL   = "health_url"
)

// deployment.cleanup_cmd runs once per failed attempt, with the deployment
// id in the environment.
const cleanupCmdKey = "deployment.cleanup_cmd"

const (
	// EnvServiceName carries the service name into lifecycle commands.
	EnvServiceName = "ROLLOUT_SERVICE"

	// EnvDeploymentID carries the deployment id into cleanup commands.
	EnvDeploymentID = "ROLLOUT_DEPLOYMENT_ID"
)

var (
	// ErrUnknownService is returned for services absent from configuration.
	ErrUnknownService = errors.New("service not configured")

	// ErrCommandMissing is returned when a service declares no command for
	// the requested lifecycle step.
	ErrCommandMissing = errors.New("lifecycle command not configured")

	// ErrCommandFailed is returned when a lifecycle command exits non-zero.
	ErrCommandFailed = errors.New("lifecycle command failed")

	// ErrProbeFailed is returned when a health probe cannot be performed.
	ErrProbeFailed = errors.New("health probe failed")
)

const defaultProbeTimeout = 10 * time.Second

// =============================================================================
// Manager
// =============================================================================

// Manager runs service lifecycle commands. It implements the orchestrator's
// ServiceManager port.
type Manager struct {
	cfg    *config.Store
	client *http.Client
	logger *slog.Logger
}

// NewManager creates a command-driven service manager.
func NewManager(cfg *config.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultProbeTimeout},
		logger: logger.With("component", "services"),
	}
}

// DeployService runs the service's deploy command.
func (m *Manager) DeployService(ctx context.Context, name string) error {
	return m.runLifecycle(ctx, name, ParamDeployCmd)
}

// RollbackService runs the service's rollback command. A service without a
// rollback command is skipped rather than failed; not every service can be
// reverted.
func (m *Manager) RollbackService(ctx context.Context, name string) error {
	err := m.runLifecycle(ctx, name, ParamRollbackCmd)
	if errors.Is(err, ErrCommandMissing) {
		m.logger.Warn("service has no rollback command, skipping", "service", name)
		return nil
	}
	return err
}

// ServiceStatus probes the service's health URL. Services without a probe
// URL are reported healthy; there is nothing to check.
func (m *Manager) ServiceStatus(ctx context.Context, name string) (orchestrator.ServiceStatus, error) {
	svc, err := m.spec(name)
	if err != nil {
		return orchestrator.ServiceStatus{}, err
	}

	url := svc.StringParam(ParamHealthURL)
	if url == "" {
		return orchestrator.ServiceStatus{
			Status:  orchestrator.StatusHealthy,
			Details: map[string]any{"reason": "no health probe configured"},
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return orchestrator.ServiceStatus{}, fmt.Errorf("%w: %s: %v", ErrProbeFailed, name, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return orchestrator.ServiceStatus{}, fmt.Errorf("%w: %s: %v", ErrProbeFailed, name, err)
	}
	defer resp.Body.Close()

	details := map[string]any{"http_status": resp.Status, "url": url}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return orchestrator.ServiceStatus{
			Status:  orchestrator.StatusHealthy,
			Details: details,
		}, nil
	}
	return orchestrator.ServiceStatus{
		Status:  "unhealthy",
		Details: details,
	}, nil
}

// CleanupDeployment runs the deployment-level cleanup command, if any, with
// the deployment id in its environment.
func (m *Manager) CleanupDeployment(ctx context.Context, deploymentID string) error {
	cmd := m.cfg.GetStringOr(cleanupCmdKey, "")
	if strings.TrimSpace(cmd) == "" {
		return nil
	}
	return m.run(ctx, cmd, EnvDeploymentID+"="+deploymentID)
}

// =============================================================================
// Internals
// =============================================================================

func (m *Manager) spec(name string) (domain.ServiceSpec, error) {
	tree := m.cfg.GetSection("services")
	specs, err := domain.ParseServiceSet(tree)
	if err != nil {
		return domain.ServiceSpec{}, err
	}
	for _, svc := range specs {
		if svc.Name == name {
			return svc, nil
		}
	}
	return domain.ServiceSpec{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
}

func (m *Manager) runLifecycle(ctx context.Context, name, param string) error {
	svc, err := m.spec(name)
	if err != nil {
		return err
	}

	cmd := svc.StringParam(param)
	if strings.TrimSpace(cmd) == "" {
		return fmt.Errorf("%w: %s.%s", ErrCommandMissing, name, param)
	}

	m.logger.Info("running lifecycle command", "service", name, "step", param)
	return m.run(ctx, cmd, EnvServiceName+"="+name)
}

func (m *Manager) run(ctx context.Context, command string, extraEnv ...string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), extraEnv...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrCommandFailed, err, strings.TrimSpace(string(output)))
	}
	return nil
}
