package api

import "time"

// =============================================================================
// Response Types
// =============================================================================

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for the readiness endpoint.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// DeploymentResponse describes one deployment record.
type DeploymentResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Attempt      int        `json:"attempt"`
	Services     []string   `json:"services,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// DeploymentListResponse is the response for listing deployment history.
type DeploymentListResponse struct {
	Deployments []DeploymentResponse `json:"deployments"`
	Count       int                  `json:"count"`
}

// ConfigResponse carries the exported configuration with sensitive values
// masked.
type ConfigResponse struct {
	Config map[string]any `json:"config"`
}

// ReloadResponse is the response for a configuration reload.
type ReloadResponse struct {
	Reloaded []string `json:"reloaded"`
}
