package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/artpar/rollout/internal/core/schema"
	"github.com/artpar/rollout/internal/shell/api"
	"github.com/artpar/rollout/internal/shell/config"
	"github.com/artpar/rollout/internal/shell/envcheck"
	"github.com/artpar/rollout/internal/shell/monitor"
	"github.com/artpar/rollout/internal/shell/orchestrator"
	"github.com/artpar/rollout/internal/shell/services"
	"github.com/artpar/rollout/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDeployError     = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Runtime Schema
// =============================================================================

func float(v float64) *float64 { return &v }

// runtimeSchema validates the sections the orchestrator reads. Sections the
// schema does not know pass through untouched; service definitions are
// free-form.
func runtimeSchema() schema.Schema {
	return schema.Schema{
		"deployment": {
			"max_retries": {
				Type:    schema.TypeInteger,
				Default: 3,
				Min:     float(1),
				Max:     float(100),
			},
			"timeout": {
				Type:    schema.TypeInteger,
				Default: 300,
				Min:     float(1),
			},
			"cleanup_cmd": {
				Type: schema.TypeString,
			},
		},
		"rollback": {
			"enabled": {
				Type:    schema.TypeBoolean,
				Default: true,
			},
		},
	}
}

// =============================================================================
// Server
// =============================================================================

// Server wires the configuration store, the orchestrator and its ports,
// deployment history, and the HTTP operations surface.
type Server struct {
	config     *Config
	httpServer *http.Server
	cfgStore   *config.Store
	orch       *orchestrator.Orchestrator
	history    store.Store
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Build the runtime configuration store from the declared sources.
	cfgStore := config.NewStore(runtimeSchema(), config.Options{}, logger)
	if len(cfg.Sources.Files) > 0 || cfg.Sources.Env {
		if err := cfgStore.LoadFromMultipleSources(cfg.Sources.Files, cfg.Sources.Env); err != nil {
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
	}
	if err := cfgStore.Validate(); err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	// Open deployment history
	var history store.Store
	if cfg.Database.DSN != "" {
		s, err := store.NewSQLiteStore(cfg.Database.DSN)
		if err != nil {
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitDatabaseError,
			}
		}
		history = s
	} else {
		logger.Info("deployment history disabled")
	}

	// Metrics registry with the standard process collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Orchestrator ports
	mon := monitor.NewMonitor(registry, cfg.Alerts.WebhookURL, logger)
	manager := services.NewManager(cfgStore, logger)
	validator := envcheck.NewValidator(cfgStore, logger)

	orch, err := orchestrator.New(cfgStore, manager, validator, mon, logger)
	if err != nil {
		if history != nil {
			history.Close()
		}
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	handler := api.NewHandler(cfgStore, orch, history, registry, logger, cfg.Sources.Files)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		cfgStore:   cfgStore,
		orch:       orch,
		history:    history,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// RunOnce executes a single deployment and returns. When the deployment
// fails terminally and rollback is enabled, rollback runs before the error
// is reported.
func (s *Server) RunOnce(ctx context.Context) error {
	err := s.orch.Deploy(ctx)

	if s.history != nil {
		if record := s.orch.Record(); record != nil {
			if storeErr := s.history.CreateRecord(ctx, record); storeErr != nil {
				s.logger.Error("failed to persist deployment record", "error", storeErr)
			}
		}
	}

	if err == nil {
		s.logger.Info("deployment succeeded", "deployment_id", s.orch.DeploymentID())
		return nil
	}

	s.logger.Error("deployment failed", "error", err)
	if s.orch.RollbackEnabled() {
		if rbErr := s.orch.Rollback(ctx); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		} else {
			s.logger.Info("rollback succeeded", "deployment_id", s.orch.DeploymentID())
		}
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("history close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// Close releases resources without the HTTP shutdown dance. Used by the
// one-shot deploy mode.
func (s *Server) Close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("history close error", "error", err)
		}
	}
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
