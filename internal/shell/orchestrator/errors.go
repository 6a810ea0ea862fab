package orchestrator

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidConfig is returned when the orchestrator is constructed
	// without a deployment configuration section.
	ErrInvalidConfig = errors.New("invalid deployment configuration")

	// ErrManagerNotConfigured is returned when an operation needs the
	// service manager port and none was injected.
	ErrManagerNotConfigured = errors.New("service manager not configured")

	// ErrValidatorNotConfigured is returned when pre-deployment validation
	// runs without an environment validator port.
	ErrValidatorNotConfigured = errors.New("environment validator not configured")

	// ErrRequirements is returned when the requirements pre-flight check
	// reports failure.
	ErrRequirements = errors.New("pre-deployment validation failed: requirements")

	// ErrCompatibility is returned when the compatibility pre-flight check
	// reports failure.
	ErrCompatibility = errors.New("pre-deployment validation failed: compatibility")

	// ErrMaxAttempts is returned when every deployment attempt failed.
	ErrMaxAttempts = errors.New("maximum deployment attempts exceeded")

	// ErrTimeout is returned when an attempt exceeds the deployment timeout.
	// It is an ordinary attempt failure, subject to the same retry loop.
	ErrTimeout = errors.New("deployment timeout")

	// ErrRollbackDisabled is returned when rollback runs with
	// rollback.enabled false.
	ErrRollbackDisabled = errors.New("rollback not enabled")

	// ErrNoDeployment is returned when rollback runs before any deployment
	// generated an id.
	ErrNoDeployment = errors.New("no deployment id available for rollback")

	// ErrUnhealthy is returned when a service reports a non-healthy status.
	ErrUnhealthy = errors.New("health checks failed")

	// ErrDeployInProgress is returned when Deploy is called while another
	// deployment is still running on the same orchestrator.
	ErrDeployInProgress = errors.New("deployment already in progress")
)

// DeploymentError is the only error type Deploy returns. Foreign errors
// crossing a port boundary are wrapped before reaching the caller.
type DeploymentError struct {
	DeploymentID string
	Attempt      int
	Message      string
	Err          error
}

func (e *DeploymentError) Error() string {
	if e.DeploymentID != "" {
		return fmt.Sprintf("deployment %s: %s", e.DeploymentID, e.Message)
	}
	return e.Message
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// RollbackError is returned for rollback precondition and execution
// failures. Rollback failures are never retried.
type RollbackError struct {
	DeploymentID string
	Message      string
	Err          error
}

func (e *RollbackError) Error() string {
	if e.DeploymentID != "" {
		return fmt.Sprintf("rollback %s: %s", e.DeploymentID, e.Message)
	}
	return e.Message
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

// HealthCheckError is returned when health verification fails. The first
// unhealthy service short-circuits; Service names it.
type HealthCheckError struct {
	Service string
	Message string
	Err     error
}

func (e *HealthCheckError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("service %s: %s", e.Service, e.Message)
	}
	return e.Message
}

func (e *HealthCheckError) Unwrap() error {
	return e.Err
}
