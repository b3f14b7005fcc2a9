package service

import (
	"context"
	"os"
	"testing"
	"time"

	"PolicyLane/internal/biz"
	"PolicyLane/internal/data"
	"PolicyLane/pkg/health"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockAudit records audit calls without a database.
type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) LogCircuitOpened(ctx context.Context, function string, failureCount int, openedAt time.Time) {
	m.Called(ctx, function, failureCount, openedAt)
}

func (m *mockAudit) LogCircuitRecovered(ctx context.Context, function string, recoverTime time.Duration, probeCount int) {
	m.Called(ctx, function, recoverTime, probeCount)
}

func (m *mockAudit) LogCircuitReset(ctx context.Context, function string, operator string) {
	m.Called(ctx, function, operator)
}

func (m *mockAudit) LogConfigOverridden(ctx context.Context, function string, operator string) {
	m.Called(ctx, function, operator)
}

func (m *mockAudit) LogInvocation(ctx context.Context, function string, success bool, statusCode int, duration time.Duration) {
	m.Called(ctx, function, success, statusCode, duration)
}

// setupService wires a PolicyService on in-memory infrastructure. The
// rate and sample repos run without Redis: both degrade gracefully, which
// is exactly what the admin surface sees when Redis is down.
func setupService(t *testing.T) (*PolicyService, *mockAudit) {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)

	circuits, err := data.NewMemoryCircuitStore(logger)
	require.NoError(t, err)

	d := &data.Data{}
	registry := biz.NewRegistry(nil, logger)
	audit := new(mockAudit)
	governor := biz.NewGovernorUseCase(registry, circuits, data.NewRateWindowRepo(d, logger), audit, logger)
	monitor := biz.NewHealthMonitorUseCase(data.NewSampleRepo(d, logger), time.Minute, "wifi", logger)

	return NewPolicyService(governor, registry, monitor, audit, logger), audit
}

func TestGetCircuitStateRequiresFunction(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.GetCircuitState(context.Background(), "")
	se := kerrors.FromError(err)
	assert.Equal(t, int32(400), se.Code)
}

func TestGetCircuitStateFreshFunction(t *testing.T) {
	svc, _ := setupService(t)

	reply, err := svc.GetCircuitState(context.Background(), "get_feed")
	require.NoError(t, err)
	assert.Equal(t, "get_feed", reply.Function)
	assert.Equal(t, "closed", string(reply.State))
	assert.Zero(t, reply.FailureCount)
	assert.Nil(t, reply.OpenedAt)
}

func TestResetCircuit(t *testing.T) {
	svc, audit := setupService(t)
	ctx := context.Background()

	audit.On("LogCircuitReset", ctx, "get_feed", "ops").Return()

	assert.NoError(t, svc.ResetCircuit(ctx, "get_feed", "ops"))
	audit.AssertExpectations(t)
}

func TestGetHealthWithoutSamples(t *testing.T) {
	svc, _ := setupService(t)

	// No Redis, no samples: the monitor reports its last snapshot, which
	// defaults to healthy.
	result := svc.GetHealth(context.Background())
	assert.Equal(t, health.StatusHealthy, result.Status)
	assert.True(t, result.ShouldProceed)
}

func TestGetConfigFallsBackToNormal(t *testing.T) {
	svc, _ := setupService(t)

	reply, err := svc.GetConfig(context.Background(), "unknown_fn")
	require.NoError(t, err)
	assert.Equal(t, biz.Preset(biz.PresetNormal), reply.Config)
}

func TestOverrideConfigWithPreset(t *testing.T) {
	svc, audit := setupService(t)
	ctx := context.Background()

	audit.On("LogConfigOverridden", ctx, "get_feed", "ops").Return()

	reply, err := svc.OverrideConfig(ctx, "get_feed", &OverrideConfigRequest{
		Preset:   biz.PresetStrict,
		Operator: "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, biz.Preset(biz.PresetStrict), reply.Config)

	// The override is visible on subsequent reads.
	got, err := svc.GetConfig(ctx, "get_feed")
	require.NoError(t, err)
	assert.Equal(t, biz.Preset(biz.PresetStrict), got.Config)
	audit.AssertExpectations(t)
}

func TestOverrideConfigValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.OverrideConfig(ctx, "get_feed", nil)
	assert.Equal(t, int32(400), kerrors.FromError(err).Code)

	_, err = svc.OverrideConfig(ctx, "get_feed", &OverrideConfigRequest{Preset: "warp-speed"})
	assert.Equal(t, int32(400), kerrors.FromError(err).Code)

	bad := biz.Preset(biz.PresetNormal)
	bad.CircuitFailureThreshold = 0
	_, err = svc.OverrideConfig(ctx, "get_feed", &OverrideConfigRequest{Config: &bad})
	assert.Equal(t, int32(400), kerrors.FromError(err).Code)
}
