package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/core/plan"
	"github.com/artpar/rollout/internal/shell/config"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultMaxRetries bounds deployment attempts when
	// deployment.max_retries is not configured.
	DefaultMaxRetries = 3

	// DefaultTimeoutSeconds bounds one attempt when deployment.timeout is
	// not configured.
	DefaultTimeoutSeconds = 300

	// progressInterval is how often the observational monitor reports
	// attempt progress.
	progressInterval = 250 * time.Millisecond
)

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator drives the deployment lifecycle for one deployment at a
// time. Ports are injected at construction and never mutated afterwards.
// Concurrent Deploy calls on the same instance are rejected; callers run
// one deployment per orchestrator.
type Orchestrator struct {
	cfg       *config.Store
	manager   ServiceManager
	validator EnvironmentValidator
	monitor   Monitor
	logger    *slog.Logger

	rollbackEnabled bool

	mu     sync.RWMutex
	record *domain.DeploymentRecord

	deploying atomic.Bool
	deployed  atomic.Int64 // services deployed in the current attempt
}

// New creates an orchestrator around the given configuration and ports.
// The configuration must carry a deployment section; a missing section is a
// constructor-time DeploymentError.
func New(cfg *config.Store, manager ServiceManager, validator EnvironmentValidator, monitor Monitor, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg == nil {
		return nil, &DeploymentError{Message: ErrInvalidConfig.Error(), Err: ErrInvalidConfig}
	}
	if _, err := cfg.Get("deployment"); err != nil {
		return nil, &DeploymentError{
			Message: "configuration has no deployment section",
			Err:     ErrInvalidConfig,
		}
	}

	rollbackEnabled, err := cfg.GetBoolOr("rollback.enabled", true)
	if err != nil {
		return nil, &DeploymentError{Message: "rollback.enabled: " + err.Error(), Err: ErrInvalidConfig}
	}

	return &Orchestrator{
		cfg:             cfg,
		manager:         manager,
		validator:       validator,
		monitor:         monitor,
		logger:          logger.With("component", "orchestrator"),
		rollbackEnabled: rollbackEnabled,
	}, nil
}

// =============================================================================
// Accessors
// =============================================================================

// Status returns the current deployment status. Before the first Deploy
// call the orchestrator reports initialized.
func (o *Orchestrator) Status() domain.DeploymentStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.record == nil {
		return domain.StatusInitialized
	}
	return o.record.Status
}

// Attempt returns the attempt counter of the current deployment. When
// retries exhaust it equals the number of attempts actually made.
func (o *Orchestrator) Attempt() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.record == nil {
		return 0
	}
	return o.record.Attempt
}

// DeploymentID returns the id of the current deployment, or empty before
// the first Deploy call.
func (o *Orchestrator) DeploymentID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.record == nil {
		return ""
	}
	return o.record.ID
}

// Record returns a snapshot of the current deployment record, or nil
// before the first Deploy call.
func (o *Orchestrator) Record() *domain.DeploymentRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.record == nil {
		return nil
	}
	return o.record.Clone()
}

// RollbackEnabled reports whether rollback was enabled at construction.
func (o *Orchestrator) RollbackEnabled() bool {
	return o.rollbackEnabled
}

// =============================================================================
// Deploy
// =============================================================================

// Deploy runs the end-to-end deployment: a fresh deployment id, pre-flight
// environment validation, then the bounded retry loop. Validation failures
// surface immediately and are never retried. The returned error is always a
// *DeploymentError.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	if !o.deploying.CompareAndSwap(false, true) {
		return &DeploymentError{Message: ErrDeployInProgress.Error(), Err: ErrDeployInProgress}
	}
	defer o.deploying.Store(false)

	services, err := o.serviceSet()
	if err != nil {
		return &DeploymentError{Message: err.Error(), Err: err}
	}

	record := domain.NewDeploymentRecord(domain.ServiceNames(services))
	o.mu.Lock()
	o.record = record
	o.mu.Unlock()

	o.logger.Info("starting deployment",
		"deployment_id", record.ID,
		"services", len(services),
	)

	if err := o.validatePreDeployment(ctx); err != nil {
		return err
	}

	return o.coordinate(ctx, services)
}

// serviceSet parses, validates, and orders the configured services.
func (o *Orchestrator) serviceSet() ([]domain.ServiceSpec, error) {
	tree := o.cfg.GetSection("services")

	services, err := domain.ParseServiceSet(tree)
	if err != nil {
		return nil, err
	}
	if err := plan.ValidateServiceSet(services); err != nil {
		return nil, err
	}
	return plan.OrderServices(services), nil
}

// validatePreDeployment runs the environment validator's requirement and
// compatibility checks. Either failing names the check that failed.
func (o *Orchestrator) validatePreDeployment(ctx context.Context) error {
	if o.validator == nil {
		return &DeploymentError{
			DeploymentID: o.DeploymentID(),
			Message:      ErrValidatorNotConfigured.Error(),
			Err:          ErrValidatorNotConfigured,
		}
	}

	ok, err := o.validator.ValidateRequirements(ctx)
	if err != nil {
		return &DeploymentError{
			DeploymentID: o.DeploymentID(),
			Message:      "requirements check: " + err.Error(),
			Err:          fmt.Errorf("%w: %w", ErrRequirements, err),
		}
	}
	if !ok {
		return &DeploymentError{
			DeploymentID: o.DeploymentID(),
			Message:      ErrRequirements.Error(),
			Err:          ErrRequirements,
		}
	}

	ok, err = o.validator.CheckCompatibility(ctx)
	if err != nil {
		return &DeploymentError{
			DeploymentID: o.DeploymentID(),
			Message:      "compatibility check: " + err.Error(),
			Err:          fmt.Errorf("%w: %w", ErrCompatibility, err),
		}
	}
	if !ok {
		return &DeploymentError{
			DeploymentID: o.DeploymentID(),
			Message:      ErrCompatibility.Error(),
			Err:          ErrCompatibility,
		}
	}

	return nil
}

// coordinate runs the bounded retry loop. Every failed attempt triggers one
// resource cleanup call; exhausting the bound is a terminal failure.
func (o *Orchestrator) coordinate(ctx context.Context, services []domain.ServiceSpec) error {
	deploymentID := o.DeploymentID()

	if o.manager == nil {
		return &DeploymentError{
			DeploymentID: deploymentID,
			Message:      ErrManagerNotConfigured.Error(),
			Err:          ErrManagerNotConfigured,
		}
	}

	maxRetries, err := o.cfg.GetIntOr("deployment.max_retries", DefaultMaxRetries)
	if err != nil {
		return &DeploymentError{DeploymentID: deploymentID, Message: err.Error(), Err: err}
	}
	timeoutSeconds, err := o.cfg.GetIntOr("deployment.timeout", DefaultTimeoutSeconds)
	if err != nil {
		return &DeploymentError{DeploymentID: deploymentID, Message: err.Error(), Err: err}
	}
	timeout := time.Duration(timeoutSeconds) * time.Second

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		o.beginAttempt(attempt)

		attemptErr := o.deployWithTimeout(ctx, services, timeout)
		if attemptErr == nil {
			o.finishAttempt(domain.StatusCompleted, "")
			o.recordMetrics(ctx, DeploymentMetrics{
				DeploymentID: deploymentID,
				Status:       string(domain.StatusCompleted),
				Attempts:     attempt,
				Services:     len(services),
				Duration:     time.Since(start),
			})
			o.logger.Info("deployment completed",
				"deployment_id", deploymentID,
				"attempt", attempt,
			)
			return nil
		}

		lastErr = attemptErr
		o.finishAttempt(domain.StatusFailed, attemptErr.Error())
		o.logger.Warn("deployment attempt failed",
			"deployment_id", deploymentID,
			"attempt", attempt,
			"error", attemptErr,
		)

		// One cleanup per failed attempt, addressed to the same id.
		if cleanupErr := o.manager.CleanupDeployment(ctx, deploymentID); cleanupErr != nil {
			o.logger.Warn("cleanup failed",
				"deployment_id", deploymentID,
				"error", cleanupErr,
			)
		}

		if ctx.Err() != nil && attempt < maxRetries {
			return &DeploymentError{
				DeploymentID: deploymentID,
				Attempt:      attempt,
				Message:      "deployment cancelled",
				Err:          fmt.Errorf("%w: %w", ctx.Err(), lastErr),
			}
		}
	}

	return &DeploymentError{
		DeploymentID: deploymentID,
		Attempt:      maxRetries,
		Message:      ErrMaxAttempts.Error(),
		Err:          fmt.Errorf("%w: %w", ErrMaxAttempts, lastErr),
	}
}

// =============================================================================
// Attempt Execution
// =============================================================================

// deployWithTimeout runs one attempt: all services deployed sequentially as
// a cancellable unit under the timeout, with an observational progress
// monitor that is always cancelled when the attempt settles. A timeout is
// an ordinary attempt failure, subject to the same retry loop.
func (o *Orchestrator) deployWithTimeout(ctx context.Context, services []domain.ServiceSpec, timeout time.Duration) error {
	dctx, cancel := context.WithTimeout(ctx, timeout)

	o.deployed.Store(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.monitorProgress(dctx, len(services))
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	done := make(chan error, 1)
	go func() {
		done <- o.deployAllServices(dctx, services)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return o.timeoutError(timeout)
		}
		return err
	case <-dctx.Done():
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			return o.timeoutError(timeout)
		}
		return &DeploymentError{
			DeploymentID: o.DeploymentID(),
			Message:      "deployment cancelled",
			Err:          dctx.Err(),
		}
	}
}

func (o *Orchestrator) timeoutError(timeout time.Duration) error {
	return &DeploymentError{
		DeploymentID: o.DeploymentID(),
		Message:      fmt.Sprintf("deployment timeout after %s", timeout),
		Err:          fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded),
	}
}

// deployAllServices deploys each service strictly sequentially in planned
// order. The first failure aborts the remaining services for this attempt.
func (o *Orchestrator) deployAllServices(ctx context.Context, services []domain.ServiceSpec) error {
	for _, svc := range services {
		if ctx.Err() != nil {
			return &DeploymentError{
				DeploymentID: o.DeploymentID(),
				Message:      "deployment cancelled before service " + svc.Name,
				Err:          ctx.Err(),
			}
		}

		o.logger.Info("deploying service",
			"deployment_id", o.DeploymentID(),
			"service", svc.Name,
		)
		if err := o.manager.DeployService(ctx, svc.Name); err != nil {
			return &DeploymentError{
				DeploymentID: o.DeploymentID(),
				Message:      fmt.Sprintf("deploy service %s: %v", svc.Name, err),
				Err:          err,
			}
		}
		o.deployed.Add(1)
	}
	return nil
}

// monitorProgress observes the current attempt until cancelled. It is
// strictly observational; it never influences the attempt's outcome.
func (o *Orchestrator) monitorProgress(ctx context.Context, total int) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.logger.Debug("deployment progress",
				"deployment_id", o.DeploymentID(),
				"deployed", o.deployed.Load(),
				"total", total,
			)
		}
	}
}

// =============================================================================
// Health Verification
// =============================================================================

// CheckHealth queries the status of every configured service. The first
// service reporting non-healthy short-circuits into a HealthCheckError.
func (o *Orchestrator) CheckHealth(ctx context.Context) error {
	if o.manager == nil {
		return &HealthCheckError{Message: ErrManagerNotConfigured.Error(), Err: ErrManagerNotConfigured}
	}

	services, err := o.serviceSet()
	if err != nil {
		return &HealthCheckError{Message: err.Error(), Err: err}
	}

	for _, svc := range services {
		status, err := o.manager.ServiceStatus(ctx, svc.Name)
		if err != nil {
			return &HealthCheckError{
				Service: svc.Name,
				Message: "status query failed: " + err.Error(),
				Err:     err,
			}
		}
		if status.Status != StatusHealthy {
			return &HealthCheckError{
				Service: svc.Name,
				Message: fmt.Sprintf("%s (status %q)", ErrUnhealthy.Error(), status.Status),
				Err:     ErrUnhealthy,
			}
		}
	}
	return nil
}

// =============================================================================
// Rollback
// =============================================================================

// Rollback reverts every configured service after a terminal deployment
// failure. It requires rollback to be enabled, a service manager, and a
// deployment id; each missing precondition is a distinct RollbackError.
// Exactly one alert is sent whether rollback succeeds or fails.
func (o *Orchestrator) Rollback(ctx context.Context) error {
	if !o.rollbackEnabled {
		return &RollbackError{Message: ErrRollbackDisabled.Error(), Err: ErrRollbackDisabled}
	}
	if o.manager == nil {
		return &RollbackError{Message: ErrManagerNotConfigured.Error(), Err: ErrManagerNotConfigured}
	}
	deploymentID := o.DeploymentID()
	if deploymentID == "" {
		return &RollbackError{Message: ErrNoDeployment.Error(), Err: ErrNoDeployment}
	}

	services, err := o.serviceSet()
	if err != nil {
		return &RollbackError{DeploymentID: deploymentID, Message: err.Error(), Err: err}
	}

	for _, svc := range services {
		if err := o.manager.RollbackService(ctx, svc.Name); err != nil {
			o.alert(ctx, Alert{
				Severity:     SeverityCritical,
				Summary:      "rollback failed",
				DeploymentID: deploymentID,
				Detail:       fmt.Sprintf("service %s: %v", svc.Name, err),
			})
			return &RollbackError{
				DeploymentID: deploymentID,
				Message:      fmt.Sprintf("rollback failed: service %s: %v", svc.Name, err),
				Err:          err,
			}
		}
	}

	o.mu.Lock()
	if o.record != nil && o.record.Status == domain.StatusFailed {
		// Rollback after a terminal failure parks the deployment in stopped.
		_ = o.record.Transition(domain.StatusStopped)
	}
	o.mu.Unlock()

	// Operators are notified of successful rollbacks too.
	o.alert(ctx, Alert{
		Severity:     SeverityInfo,
		Summary:      "rollback completed",
		DeploymentID: deploymentID,
		Detail:       fmt.Sprintf("%d services rolled back", len(services)),
	})

	o.logger.Info("rollback completed",
		"deployment_id", deploymentID,
		"services", len(services),
	)
	return nil
}

// =============================================================================
// Internal State Helpers
// =============================================================================

func (o *Orchestrator) beginAttempt(attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.record.Attempt = attempt
	_ = o.record.Transition(domain.StatusInProgress)
}

func (o *Orchestrator) finishAttempt(status domain.DeploymentStatus, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if status == domain.StatusFailed {
		_ = o.record.Fail(message)
		return
	}
	_ = o.record.Transition(status)
}

func (o *Orchestrator) recordMetrics(ctx context.Context, m DeploymentMetrics) {
	if o.monitor == nil {
		return
	}
	if err := o.monitor.RecordDeploymentMetrics(ctx, m); err != nil {
		o.logger.Warn("failed to record deployment metrics",
			"deployment_id", m.DeploymentID,
			"error", err,
		)
	}
}

func (o *Orchestrator) alert(ctx context.Context, a Alert) {
	if o.monitor == nil {
		return
	}
	if err := o.monitor.SendAlert(ctx, a); err != nil {
		o.logger.Warn("failed to send alert",
			"deployment_id", a.DeploymentID,
			"error", err,
		)
	}
}
