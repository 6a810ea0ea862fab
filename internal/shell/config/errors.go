// Package config provides the validated, cached configuration store.
// It merges hierarchical settings from files and the environment, validates
// them against a schema (internal/core/schema), and exposes typed access by
// dot-path.
package config

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrSourceNotFound is returned when a configuration file does not exist.
	ErrSourceNotFound = errors.New("configuration source not found")

	// ErrValidation is returned when a value fails schema validation or
	// type coercion.
	ErrValidation = errors.New("configuration validation failed")

	// ErrKeyNotFound is returned when a dot-path does not resolve and no
	// default was supplied.
	ErrKeyNotFound = errors.New("configuration key not found")

	// ErrParse is returned when a configuration document cannot be parsed.
	ErrParse = errors.New("configuration parse failed")
)

// ConfigError wraps configuration failures with the dot-path or file path
// involved. Every error returned by this package is a *ConfigError wrapping
// one of the sentinel errors above, so callers can branch with errors.Is.
type ConfigError struct {
	Path    string // dot-path or file path, if applicable
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(path, message string, err error) *ConfigError {
	return &ConfigError{Path: path, Message: message, Err: err}
}
