// Package api provides the HTTP operations surface: health and readiness,
// masked configuration export, deployment history, and deployment triggers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/shell/config"
	"github.com/artpar/rollout/internal/shell/orchestrator"
	"github.com/artpar/rollout/internal/shell/store"
)

// Deployer is the orchestrator surface the API drives.
type Deployer interface {
	Deploy(ctx context.Context) error
	Rollback(ctx context.Context) error
	CheckHealth(ctx context.Context) error
	Record() *domain.DeploymentRecord
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the operations API.
type Handler struct {
	cfg         *config.Store
	deployer    Deployer
	history     store.Store
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	configPaths []string
}

// NewHandler creates an API handler. history and gatherer may be nil; the
// corresponding endpoints then report unavailable. configPaths are the
// files a reload re-reads, in load order.
func NewHandler(cfg *config.Store, deployer Deployer, history store.Store, gatherer prometheus.Gatherer, logger *slog.Logger, configPaths []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:         cfg,
		deployer:    deployer,
		history:     history,
		gatherer:    gatherer,
		logger:      logger.With("component", "api"),
		configPaths: configPaths,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// Prometheus metrics
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/config", func(r chi.Router) {
			r.Get("/", h.handleGetConfig)
			r.Post("/reload", h.handleReloadConfig)
		})

		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", h.handleTriggerDeployment)
			r.Get("/", h.handleListDeployments)
			r.Get("/current", h.handleCurrentDeployment)
			r.Get("/{id}", h.handleGetDeployment)
			r.Post("/rollback", h.handleRollback)
			r.Get("/health", h.handleDeploymentHealth)
		})
	})

	return r
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]string)

	report := h.cfg.Health()
	checks["config"] = report.Status

	if h.history != nil {
		checks["history"] = "ok"
	} else {
		checks["history"] = "disabled"
	}

	if report.Status != "healthy" {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Config Handlers
// =============================================================================

func (h *Handler) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, ConfigResponse{Config: h.cfg.Export(true)})
}

func (h *Handler) handleReloadConfig(w http.ResponseWriter, _ *http.Request) {
	if len(h.configPaths) == 0 {
		h.writeError(w, http.StatusConflict, "no configuration files to reload", "reload_unavailable")
		return
	}

	reloaded := make([]string, 0, len(h.configPaths))
	for _, path := range h.configPaths {
		if err := h.cfg.Reload(path); err != nil {
			h.logger.Error("config reload failed", "path", path, "error", err)
			h.writeError(w, http.StatusInternalServerError, "reload failed: "+path, "reload_error")
			return
		}
		reloaded = append(reloaded, path)
	}
	h.writeJSON(w, http.StatusOK, ReloadResponse{Reloaded: reloaded})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleTriggerDeployment(w http.ResponseWriter, r *http.Request) {
	err := h.deployer.Deploy(r.Context())
	record := h.deployer.Record()

	if h.history != nil && record != nil {
		if storeErr := h.persistRecord(r.Context(), record); storeErr != nil {
			h.logger.Error("failed to persist deployment record", "error", storeErr)
		}
	}

	if err != nil {
		if errors.Is(err, orchestrator.ErrDeployInProgress) {
			h.writeError(w, http.StatusConflict, err.Error(), "deploy_in_progress")
			return
		}
		h.logger.Error("deployment failed", "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error(), "deploy_failed")
		return
	}
	if record == nil {
		h.writeJSON(w, http.StatusOK, HealthResponse{Status: "completed"})
		return
	}
	h.writeJSON(w, http.StatusOK, recordToResponse(record))
}

func (h *Handler) handleCurrentDeployment(w http.ResponseWriter, _ *http.Request) {
	record := h.deployer.Record()
	if record == nil {
		h.writeError(w, http.StatusNotFound, "no deployment has run yet", "not_found")
		return
	}
	h.writeJSON(w, http.StatusOK, recordToResponse(record))
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusConflict, "deployment history is disabled", "history_unavailable")
		return
	}

	opts := store.DefaultListOptions()
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		opts.Offset = offset
	}

	var records []domain.DeploymentRecord
	var err error
	if status := r.URL.Query().Get("status"); status != "" {
		records, err = h.history.ListRecordsByStatus(r.Context(), domain.DeploymentStatus(status), opts)
	} else {
		records, err = h.history.ListRecords(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list deployments", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	resp := DeploymentListResponse{
		Deployments: make([]DeploymentResponse, 0, len(records)),
		Count:       len(records),
	}
	for i := range records {
		resp.Deployments = append(resp.Deployments, recordToResponse(&records[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusConflict, "deployment history is disabled", "history_unavailable")
		return
	}

	id := chi.URLParam(r, "id")
	record, err := h.history.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "not_found")
			return
		}
		h.logger.Error("failed to get deployment", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, recordToResponse(record))
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	if err := h.deployer.Rollback(r.Context()); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrRollbackDisabled):
			h.writeError(w, http.StatusConflict, err.Error(), "rollback_disabled")
		case errors.Is(err, orchestrator.ErrNoDeployment):
			h.writeError(w, http.StatusConflict, err.Error(), "no_deployment")
		default:
			h.logger.Error("rollback failed", "error", err)
			h.writeError(w, http.StatusBadGateway, err.Error(), "rollback_failed")
		}
		return
	}

	record := h.deployer.Record()
	if h.history != nil && record != nil {
		if storeErr := h.persistRecord(r.Context(), record); storeErr != nil {
			h.logger.Error("failed to persist deployment record", "error", storeErr)
		}
	}
	if record == nil {
		h.writeJSON(w, http.StatusOK, HealthResponse{Status: "rolled_back"})
		return
	}
	h.writeJSON(w, http.StatusOK, recordToResponse(record))
}

func (h *Handler) handleDeploymentHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.deployer.CheckHealth(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: err.Error(),
			Code:  "unhealthy",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// =============================================================================
// Helpers
// =============================================================================

// persistRecord inserts the record, falling back to update when the id is
// already stored.
func (h *Handler) persistRecord(ctx context.Context, record *domain.DeploymentRecord) error {
	err := h.history.CreateRecord(ctx, record)
	if errors.Is(err, store.ErrDuplicateID) {
		return h.history.UpdateRecord(ctx, record)
	}
	return err
}

func recordToResponse(record *domain.DeploymentRecord) DeploymentResponse {
	return DeploymentResponse{
		ID:           record.ID,
		Status:       string(record.Status),
		Attempt:      record.Attempt,
		Services:     record.Services,
		ErrorMessage: record.ErrorMessage,
		StartedAt:    record.StartedAt,
		FinishedAt:   record.FinishedAt,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
