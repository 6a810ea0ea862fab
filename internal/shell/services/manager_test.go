package services

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/rollout/internal/shell/config"
	"github.com/artpar/rollout/internal/shell/orchestrator"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManager(t *testing.T) (*Manager, *config.Store) {
	t.Helper()
	cfg := config.NewStore(nil, config.Options{}, testLogger())
	return NewManager(cfg, testLogger()), cfg
}

// =============================================================================
// Lifecycle Commands
// =============================================================================

func TestDeployService_RunsCommand(t *testing.T) {
	mgr, cfg := testManager(t)
	marker := filepath.Join(t.TempDir(), "deployed")
	cfg.Set("services.web."+ParamDeployCmd, "printf %s \"$ROLLOUT_SERVICE\" > "+marker)

	require.NoError(t, mgr.DeployService(context.Background(), "web"))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "web", string(data))
}

func TestDeployService_CommandFails(t *testing.T) {
	mgr, cfg := testManager(t)
	cfg.Set("services.web."+ParamDeployCmd, "echo boom >&2; exit 3")

	err := mgr.DeployService(context.Background(), "web")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestDeployService_NoCommand(t *testing.T) {
	mgr, cfg := testManager(t)
	cfg.Set("services.web.image", "web:latest")

	err := mgr.DeployService(context.Background(), "web")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandMissing)
}

func TestDeployService_UnknownService(t *testing.T) {
	mgr, cfg := testManager(t)
	cfg.Set("services.web."+ParamDeployCmd, "true")

	err := mgr.DeployService(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestRollbackService_SkipsWhenNotConfigured(t *testing.T) {
	mgr, cfg := testManager(t)
	cfg.Set("services.web."+ParamDeployCmd, "true")

	assert.NoError(t, mgr.RollbackService(context.Background(), "web"))
}

func TestRollbackService_RunsCommand(t *testing.T) {
	mgr, cfg := testManager(t)
	marker := filepath.Join(t.TempDir(), "reverted")
	cfg.Set("services.web."+ParamRollbackCmd, "touch "+marker)

	require.NoError(t, mgr.RollbackService(context.Background(), "web"))
	assert.FileExists(t, marker)
}

// =============================================================================
// Health Probes
// =============================================================================

func TestServiceStatus_HealthyProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mgr, cfg := testManager(t)
	cfg.Set("services.web."+ParamHealthURL, srv.URL)

	status, err := mgr.ServiceStatus(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusHealthy, status.Status)
}

func TestServiceStatus_UnhealthyProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	mgr, cfg := testManager(t)
	cfg.Set("services.web."+ParamHealthURL, srv.URL)

	status, err := mgr.ServiceStatus(context.Background(), "web")
	require.NoError(t, err)
	assert.NotEqual(t, orchestrator.StatusHealthy, status.Status)
}

func TestServiceStatus_ProbeUnreachable(t *testing.T) {
	mgr, cfg := testManager(t)
	cfg.Set("services.web."+ParamHealthURL, "http://127.0.0.1:1/health")

	_, err := mgr.ServiceStatus(context.Background(), "web")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestServiceStatus_NoProbeConfigured(t *testing.T) {
	mgr, cfg := testManager(t)
	cfg.Set("services.web.image", "web:latest")

	status, err := mgr.ServiceStatus(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusHealthy, status.Status)
	assert.Equal(t, "no health probe configured", status.Details["reason"])
}

// =============================================================================
// Cleanup
// =============================================================================

func TestCleanupDeployment_RunsCommandWithID(t *testing.T) {
	mgr, cfg := testManager(t)
	marker := filepath.Join(t.TempDir(), "cleaned")
	cfg.Set("deployment.cleanup_cmd", "printf %s \"$ROLLOUT_DEPLOYMENT_ID\" > "+marker)

	require.NoError(t, mgr.CleanupDeployment(context.Background(), "deploy_test_1234"))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "deploy_test_1234", strings.TrimSpace(string(data)))
}

func TestCleanupDeployment_NoCommand(t *testing.T) {
	mgr, _ := testManager(t)
	assert.NoError(t, mgr.CleanupDeployment(context.Background(), "deploy_test_1234"))
}
