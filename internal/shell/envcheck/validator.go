// Package envcheck validates the host environment before a deployment is
// allowed to start. Requirements are declared in configuration: commands
// that must resolve on PATH, environment variables that must be set, and
// the platforms the deployment is compatible with.
package envcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/rollout/internal/shell/config"
)

// Configuration keys under the environment section.
const (
	KeyRequiredCommands = "environment.required_commands"
	KeyRequiredEnv      = "environment.required_env"
	KeyPlatforms        = "environment.platforms"
)

// ErrBadRequirementList is returned when a requirement list in
// configuration is not a list of strings.
var ErrBadRequirementList = errors.New("requirement list must be a list of strings")

// =============================================================================
// Validator
// =============================================================================

// Validator implements the orchestrator's EnvironmentValidator port against
// the local host.
type Validator struct {
	cfg    *config.Store
	logger *slog.Logger

	// lookPath and getenv are swapped in tests.
	lookPath func(string) (string, error)
	getenv   func(string) string
	goos     string
}

// NewValidator creates a host environment validator.
func NewValidator(cfg *config.Store, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		cfg:      cfg,
		logger:   logger.With("component", "envcheck"),
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
		goos:     runtime.GOOS,
	}
}

// ValidateRequirements checks that every required command resolves on PATH
// and every required environment variable is set. All probes run
// concurrently; the result is false when any requirement is missing.
func (v *Validator) ValidateRequirements(ctx context.Context) (bool, error) {
	commands, err := v.stringList(KeyRequiredCommands)
	if err != nil {
		return false, err
	}
	envVars, err := v.stringList(KeyRequiredEnv)
	if err != nil {
		return false, err
	}

	var mu sync.Mutex
	var missing []string

	g, _ := errgroup.WithContext(ctx)
	for _, command := range commands {
		g.Go(func() error {
			if _, err := v.lookPath(command); err != nil {
				mu.Lock()
				missing = append(missing, "command "+command)
				mu.Unlock()
			}
			return nil
		})
	}
	for _, name := range envVars {
		g.Go(func() error {
			if v.getenv(name) == "" {
				mu.Lock()
				missing = append(missing, "env "+name)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	if len(missing) > 0 {
		v.logger.Warn("environment requirements not met", "missing", missing)
		return false, nil
	}
	return true, nil
}

// CheckCompatibility checks the host platform against the configured
// allow-list. An empty list means every platform is acceptable.
func (v *Validator) CheckCompatibility(_ context.Context) (bool, error) {
	platforms, err := v.stringList(KeyPlatforms)
	if err != nil {
		return false, err
	}
	if len(platforms) == 0 {
		return true, nil
	}

	for _, platform := range platforms {
		if platform == v.goos {
			return true, nil
		}
	}
	v.logger.Warn("platform not in compatibility list", "platform", v.goos, "allowed", platforms)
	return false, nil
}

func (v *Validator) stringList(key string) ([]string, error) {
	raw, err := v.cfg.Get(key)
	if err != nil {
		// Absent requirements mean nothing to check.
		return nil, nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBadRequirementList, key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBadRequirementList, key)
		}
		out = append(out, s)
	}
	return out, nil
}
