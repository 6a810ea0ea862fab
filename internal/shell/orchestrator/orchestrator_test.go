package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/shell/config"
)

// =============================================================================
// Stub Ports
// =============================================================================

type stubManager struct {
	mu sync.Mutex

	deployCalls   []string
	failDeploys   int // fail this many DeployService calls, -1 for always
	deployErr     error
	rollbackCalls []string
	rollbackErr   error
	statusCalls   []string
	statuses      map[string]ServiceStatus
	statusErr     error
	cleanupIDs    []string
	cleanupErr    error
}

func (m *stubManager) DeployService(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployCalls = append(m.deployCalls, name)
	if m.failDeploys == -1 || len(m.deployCalls) <= m.failDeploys {
		if m.deployErr != nil {
			return m.deployErr
		}
		return errors.New("deploy exploded")
	}
	return nil
}

func (m *stubManager) RollbackService(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackCalls = append(m.rollbackCalls, name)
	return m.rollbackErr
}

func (m *stubManager) ServiceStatus(_ context.Context, name string) (ServiceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, name)
	if m.statusErr != nil {
		return ServiceStatus{}, m.statusErr
	}
	if st, ok := m.statuses[name]; ok {
		return st, nil
	}
	return ServiceStatus{Status: StatusHealthy}, nil
}

func (m *stubManager) CleanupDeployment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupIDs = append(m.cleanupIDs, id)
	return m.cleanupErr
}

type stubValidator struct {
	reqOK     bool
	reqErr    error
	compatOK  bool
	compatErr error
}

func (v *stubValidator) ValidateRequirements(context.Context) (bool, error) {
	return v.reqOK, v.reqErr
}

func (v *stubValidator) CheckCompatibility(context.Context) (bool, error) {
	return v.compatOK, v.compatErr
}

type stubMonitor struct {
	mu      sync.Mutex
	metrics []DeploymentMetrics
	alerts  []Alert
}

func (m *stubMonitor) RecordDeploymentMetrics(_ context.Context, dm DeploymentMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, dm)
	return nil
}

func (m *stubMonitor) SendAlert(_ context.Context, a Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func okValidator() *stubValidator {
	return &stubValidator{reqOK: true, compatOK: true}
}

// =============================================================================
// Test Fixtures
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, maxRetries, timeoutSeconds int, rollback bool, services ...string) *config.Store {
	t.Helper()
	st := config.NewStore(nil, config.Options{}, testLogger())
	st.Set("deployment.max_retries", maxRetries)
	st.Set("deployment.timeout", timeoutSeconds)
	st.Set("rollback.enabled", rollback)
	for _, name := range services {
		st.Set("services."+name+".image", name+":latest")
	}
	return st
}

func newTestOrchestrator(t *testing.T, cfg *config.Store, mgr ServiceManager, val EnvironmentValidator, mon Monitor) *Orchestrator {
	t.Helper()
	o, err := New(cfg, mgr, val, mon, testLogger())
	require.NoError(t, err)
	return o
}

// =============================================================================
// Constructor
// =============================================================================

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil, &stubManager{}, okValidator(), &stubMonitor{}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var derr *DeploymentError
	assert.ErrorAs(t, err, &derr)
}

func TestNew_MissingDeploymentSection(t *testing.T) {
	st := config.NewStore(nil, config.Options{}, testLogger())
	st.Set("services.web.image", "web:latest")

	_, err := New(st, &stubManager{}, okValidator(), &stubMonitor{}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_InitialState(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), &stubManager{}, okValidator(), &stubMonitor{})

	assert.Equal(t, domain.StatusInitialized, o.Status())
	assert.Equal(t, 0, o.Attempt())
	assert.Empty(t, o.DeploymentID())
	assert.Nil(t, o.Record())
}

// =============================================================================
// Deploy
// =============================================================================

func TestDeploy_Success(t *testing.T) {
	mgr := &stubManager{}
	mon := &stubMonitor{}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web", "db"), mgr, okValidator(), mon)

	err := o.Deploy(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, o.Status())
	assert.Equal(t, 1, o.Attempt())
	assert.NotEmpty(t, o.DeploymentID())
	assert.Equal(t, []string{"db", "web"}, mgr.deployCalls)
	assert.Empty(t, mgr.cleanupIDs)

	require.Len(t, mon.metrics, 1)
	assert.Equal(t, o.DeploymentID(), mon.metrics[0].DeploymentID)
	assert.Equal(t, string(domain.StatusCompleted), mon.metrics[0].Status)
	assert.Equal(t, 1, mon.metrics[0].Attempts)
	assert.Equal(t, 2, mon.metrics[0].Services)
}

func TestDeploy_DependencyOrder(t *testing.T) {
	mgr := &stubManager{}
	cfg := testConfig(t, 3, 300, true)
	cfg.Set("services.web.image", "web:latest")
	cfg.Set("services.web.depends_on", "db")
	cfg.Set("services.db.image", "db:latest")

	o := newTestOrchestrator(t, cfg, mgr, okValidator(), &stubMonitor{})
	require.NoError(t, o.Deploy(context.Background()))

	assert.Equal(t, []string{"db", "web"}, mgr.deployCalls)
}

func TestDeploy_ExhaustsRetries(t *testing.T) {
	mgr := &stubManager{failDeploys: -1}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), mgr, okValidator(), &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)

	var derr *DeploymentError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, ErrMaxAttempts)
	assert.Contains(t, err.Error(), "maximum deployment attempts exceeded")
	assert.Equal(t, 3, derr.Attempt)
	assert.Equal(t, 3, o.Attempt())
	assert.Equal(t, domain.StatusFailed, o.Status())

	// One cleanup per failed attempt, all addressed to the same deployment.
	require.Len(t, mgr.cleanupIDs, 3)
	for _, id := range mgr.cleanupIDs {
		assert.Equal(t, o.DeploymentID(), id)
	}
}

func TestDeploy_SucceedsOnRetry(t *testing.T) {
	mgr := &stubManager{failDeploys: 1}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), mgr, okValidator(), &stubMonitor{})

	err := o.Deploy(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, o.Status())
	assert.Equal(t, 2, o.Attempt())
	assert.Len(t, mgr.cleanupIDs, 1)

	rec := o.Record()
	require.NotNil(t, rec)
	assert.Empty(t, rec.ErrorMessage)
}

func TestDeploy_ForeignErrorsAreWrapped(t *testing.T) {
	plain := errors.New("disk full")
	mgr := &stubManager{failDeploys: -1, deployErr: plain}
	o := newTestOrchestrator(t, testConfig(t, 2, 300, true, "web"), mgr, okValidator(), &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)

	var derr *DeploymentError
	assert.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, plain)
}

func TestDeploy_TimeoutIsRetried(t *testing.T) {
	mgr := &stubManager{}
	// A zero-second timeout expires before any service deploys.
	o := newTestOrchestrator(t, testConfig(t, 2, 0, true, "web"), mgr, okValidator(), &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxAttempts)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, mgr.cleanupIDs, 2)
}

func TestDeploy_NoManager(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), nil, okValidator(), &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManagerNotConfigured)
}

func TestDeploy_EmptyServiceSet(t *testing.T) {
	mgr := &stubManager{}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true), mgr, okValidator(), &stubMonitor{})

	err := o.Deploy(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mgr.deployCalls)
	assert.Equal(t, domain.StatusCompleted, o.Status())
}

// =============================================================================
// Pre-Deployment Validation
// =============================================================================

func TestDeploy_RequirementsNotMet(t *testing.T) {
	mgr := &stubManager{}
	val := &stubValidator{reqOK: false, compatOK: true}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), mgr, val, &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequirements)

	// Validation failures are terminal: no attempts, no cleanup.
	assert.Empty(t, mgr.deployCalls)
	assert.Empty(t, mgr.cleanupIDs)
	assert.Equal(t, domain.StatusInitialized, o.Status())
}

func TestDeploy_CompatibilityFailed(t *testing.T) {
	val := &stubValidator{reqOK: true, compatOK: false}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), &stubManager{}, val, &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompatibility)
	assert.NotErrorIs(t, err, ErrRequirements)
}

func TestDeploy_ValidatorErrorWrapped(t *testing.T) {
	probeErr := errors.New("probe crashed")
	val := &stubValidator{reqErr: probeErr, compatOK: true}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), &stubManager{}, val, &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequirements)
	assert.ErrorIs(t, err, probeErr)

	var derr *DeploymentError
	assert.ErrorAs(t, err, &derr)
}

func TestDeploy_NoValidator(t *testing.T) {
	mgr := &stubManager{}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), mgr, nil, &stubMonitor{})

	err := o.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidatorNotConfigured)
	assert.Empty(t, mgr.deployCalls)
}

// =============================================================================
// Health Verification
// =============================================================================

func TestCheckHealth_AllHealthy(t *testing.T) {
	mgr := &stubManager{}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web", "db"), mgr, okValidator(), &stubMonitor{})

	require.NoError(t, o.CheckHealth(context.Background()))
	assert.Len(t, mgr.statusCalls, 2)
}

func TestCheckHealth_ShortCircuits(t *testing.T) {
	mgr := &stubManager{statuses: map[string]ServiceStatus{
		"beta": {Status: "degraded"},
	}}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "alpha", "beta", "gamma"), mgr, okValidator(), &stubMonitor{})

	err := o.CheckHealth(context.Background())
	require.Error(t, err)

	var herr *HealthCheckError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "beta", herr.Service)
	assert.ErrorIs(t, err, ErrUnhealthy)

	// gamma is never queried once beta fails.
	assert.Equal(t, []string{"alpha", "beta"}, mgr.statusCalls)
}

func TestCheckHealth_StatusQueryError(t *testing.T) {
	probeErr := errors.New("socket refused")
	mgr := &stubManager{statusErr: probeErr}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), mgr, okValidator(), &stubMonitor{})

	err := o.CheckHealth(context.Background())
	require.Error(t, err)

	var herr *HealthCheckError
	require.ErrorAs(t, err, &herr)
	assert.ErrorIs(t, err, probeErr)
}

func TestCheckHealth_NoManager(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), nil, okValidator(), &stubMonitor{})

	err := o.CheckHealth(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManagerNotConfigured)
}

// =============================================================================
// Rollback
// =============================================================================

func TestRollback_Disabled(t *testing.T) {
	mgr := &stubManager{failDeploys: -1}
	mon := &stubMonitor{}
	o := newTestOrchestrator(t, testConfig(t, 1, 300, false, "web"), mgr, okValidator(), mon)

	require.Error(t, o.Deploy(context.Background()))

	err := o.Rollback(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRollbackDisabled)
	assert.Empty(t, mgr.rollbackCalls)
	assert.Empty(t, mon.alerts)
}

func TestRollback_NoDeployment(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), &stubManager{}, okValidator(), &stubMonitor{})

	err := o.Rollback(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDeployment)
}

func TestRollback_NoManager(t *testing.T) {
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), nil, okValidator(), &stubMonitor{})

	err := o.Rollback(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManagerNotConfigured)

	var rerr *RollbackError
	assert.ErrorAs(t, err, &rerr)
}

func TestRollback_SuccessAlertsOnce(t *testing.T) {
	mgr := &stubManager{failDeploys: -1}
	mon := &stubMonitor{}
	o := newTestOrchestrator(t, testConfig(t, 1, 300, true, "web", "db"), mgr, okValidator(), mon)

	require.Error(t, o.Deploy(context.Background()))
	require.NoError(t, o.Rollback(context.Background()))

	assert.Equal(t, []string{"db", "web"}, mgr.rollbackCalls)
	assert.Equal(t, domain.StatusStopped, o.Status())

	require.Len(t, mon.alerts, 1)
	assert.Equal(t, SeverityInfo, mon.alerts[0].Severity)
	assert.Equal(t, o.DeploymentID(), mon.alerts[0].DeploymentID)
}

func TestRollback_FailureAlertsOnce(t *testing.T) {
	revertErr := errors.New("revert refused")
	mgr := &stubManager{failDeploys: -1, rollbackErr: revertErr}
	mon := &stubMonitor{}
	o := newTestOrchestrator(t, testConfig(t, 1, 300, true, "web"), mgr, okValidator(), mon)

	require.Error(t, o.Deploy(context.Background()))

	err := o.Rollback(context.Background())
	require.Error(t, err)

	var rerr *RollbackError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, revertErr)

	require.Len(t, mon.alerts, 1)
	assert.Equal(t, SeverityCritical, mon.alerts[0].Severity)
	assert.Equal(t, domain.StatusFailed, o.Status())
}

// =============================================================================
// Deploy Reuse
// =============================================================================

func TestDeploy_FreshIDPerCall(t *testing.T) {
	mgr := &stubManager{}
	o := newTestOrchestrator(t, testConfig(t, 3, 300, true, "web"), mgr, okValidator(), &stubMonitor{})

	require.NoError(t, o.Deploy(context.Background()))
	first := o.DeploymentID()

	require.NoError(t, o.Deploy(context.Background()))
	second := o.DeploymentID()

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, o.Attempt())
}
