// Package domain contains the core deployment entities and their state
// machine. Types here carry no I/O; the orchestrator shell mutates them
// through the transition methods.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Domain Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Deployment Status
// =============================================================================

type DeploymentStatus string

const (
	StatusInitialized DeploymentStatus = "initialized"
	StatusInProgress  DeploymentStatus = "in_progress"
	StatusCompleted   DeploymentStatus = "completed"
	StatusFailed      DeploymentStatus = "failed"
	StatusStopped     DeploymentStatus = "stopped"
)

// validTransitions defines the allowed state transitions.
// A failed deployment may re-enter in_progress (retry) or reach stopped
// through an explicit rollback. Completed and stopped are terminal.
var validTransitions = map[DeploymentStatus][]DeploymentStatus{
	StatusInitialized: {StatusInProgress},
	StatusInProgress:  {StatusCompleted, StatusFailed},
	StatusFailed:      {StatusInProgress, StatusStopped},
	StatusCompleted:   {},
	StatusStopped:     {},
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to DeploymentStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// =============================================================================
// Deployment Record
// =============================================================================

// DeploymentRecord tracks the identity and progress of one Deploy call.
// A fresh record with a new ID is created per call; the previous record is
// discarded.
type DeploymentRecord struct {
	ID           string           `json:"id"`
	Status       DeploymentStatus `json:"status"`
	Attempt      int              `json:"attempt"`
	Services     []string         `json:"services,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}

// NewDeploymentRecord creates a record in the initialized state with a
// freshly generated deployment ID.
func NewDeploymentRecord(services []string) *DeploymentRecord {
	return &DeploymentRecord{
		ID:        NewDeploymentID(),
		Status:    StatusInitialized,
		Services:  services,
		StartedAt: time.Now().UTC(),
	}
}

// Transition attempts to transition the record to a new status.
// Terminal statuses set the finish timestamp; re-entering in_progress on a
// retry clears the previous error message.
func (r *DeploymentRecord) Transition(to DeploymentStatus) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}

	r.Status = to

	switch to {
	case StatusInProgress:
		r.ErrorMessage = ""
	case StatusCompleted, StatusStopped, StatusFailed:
		if to != StatusFailed {
			now := time.Now().UTC()
			r.FinishedAt = &now
		}
	}

	return nil
}

// Fail transitions to failed with an error message. Failed is not terminal;
// the retry loop may re-enter in_progress.
func (r *DeploymentRecord) Fail(message string) error {
	if err := r.Transition(StatusFailed); err != nil {
		return err
	}
	r.ErrorMessage = message
	return nil
}

// Clone returns a copy of the record for safe hand-off across goroutines.
func (r *DeploymentRecord) Clone() *DeploymentRecord {
	cp := *r
	cp.Services = append([]string(nil), r.Services...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// =============================================================================
// Deployment ID Generation
// =============================================================================

// NewDeploymentID generates a unique deployment identifier of the form
// deploy_<timestamp>_<random suffix>. Collisions are negligible.
func NewDeploymentID() string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("deploy_%s_%s", timestamp, suffix)
}
