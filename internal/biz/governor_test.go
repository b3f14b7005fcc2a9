package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PolicyLane/pkg/circuit"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// fakeCircuitRepo is an in-memory CircuitStateRepo. The governor's
// read-modify-write cycle needs functional Load/Store, so a stateful fake
// beats a call-recording mock here.
type fakeCircuitRepo struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	loadErr  error
	storeErr error
}

func newFakeCircuitRepo() *fakeCircuitRepo {
	return &fakeCircuitRepo{blobs: make(map[string][]byte)}
}

func (f *fakeCircuitRepo) Load(_ context.Context, key string) ([]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.blobs[key], nil
}

func (f *fakeCircuitRepo) Store(_ context.Context, key string, state []byte) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.blobs[key] = state
	return nil
}

func (f *fakeCircuitRepo) Delete(_ context.Context, key string) error {
	delete(f.blobs, key)
	return nil
}

func (f *fakeCircuitRepo) Keys(_ context.Context) ([]string, error) {
	keys := make([]string, 0, len(f.blobs))
	for k := range f.blobs {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeCircuitRepo) WithLock(_ string, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn()
}

// MockRateWindowRepo is a mock implementation of RateWindowRepo.
type MockRateWindowRepo struct {
	mock.Mock
}

func (m *MockRateWindowRepo) IncrementWindow(ctx context.Context, function string, windowSeconds int) (int, error) {
	args := m.Called(ctx, function, windowSeconds)
	return args.Int(0), args.Error(1)
}

func (m *MockRateWindowRepo) WindowCount(ctx context.Context, function string) (int, error) {
	args := m.Called(ctx, function)
	return args.Int(0), args.Error(1)
}

// MockAuditLogger is a mock implementation of AuditLogger.
type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogCircuitOpened(ctx context.Context, function string, failureCount int, openedAt time.Time) {
	m.Called(ctx, function, failureCount, openedAt)
}

func (m *MockAuditLogger) LogCircuitRecovered(ctx context.Context, function string, recoverTime time.Duration, probeCount int) {
	m.Called(ctx, function, recoverTime, probeCount)
}

func (m *MockAuditLogger) LogCircuitReset(ctx context.Context, function string, operator string) {
	m.Called(ctx, function, operator)
}

func (m *MockAuditLogger) LogConfigOverridden(ctx context.Context, function string, operator string) {
	m.Called(ctx, function, operator)
}

func (m *MockAuditLogger) LogInvocation(ctx context.Context, function string, success bool, statusCode int, duration time.Duration) {
	m.Called(ctx, function, success, statusCode, duration)
}

// setupGovernor builds a governor on fakes/mocks with a controllable clock.
func setupGovernor(t *testing.T) (*GovernorUseCase, *fakeCircuitRepo, *MockRateWindowRepo, *MockAuditLogger, *time.Time) {
	t.Helper()

	circuits := newFakeCircuitRepo()
	rate := new(MockRateWindowRepo)
	audit := new(MockAuditLogger)
	registry := NewRegistry(nil, log.DefaultLogger)

	uc := NewGovernorUseCase(registry, circuits, rate, audit, log.DefaultLogger)

	now := time.UnixMilli(1_700_000_000_000)
	uc.now = func() time.Time { return now }

	return uc, circuits, rate, audit, &now
}

func TestAdmitAllowsUnderLimits(t *testing.T) {
	uc, _, rate, _, _ := setupGovernor(t)
	ctx := context.Background()

	rate.On("IncrementWindow", ctx, "get_feed", 60).Return(1, nil)

	adm, err := uc.Admit(ctx, "get_feed")
	assert.NoError(t, err)
	assert.True(t, adm.Allowed)
	assert.Equal(t, circuit.StateClosed, adm.CircuitState)
	rate.AssertExpectations(t)
}

func TestAdmitDeniesOverRateWindow(t *testing.T) {
	uc, _, rate, _, _ := setupGovernor(t)
	ctx := context.Background()

	// bulk preset allows 30 per window
	rate.On("IncrementWindow", ctx, "get_feed", 60).Return(31, nil)

	adm, err := uc.Admit(ctx, "get_feed")
	assert.Error(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "rate limit exceeded", adm.Reason)
	assert.Equal(t, 60*time.Second, adm.RetryAfter)

	se := kerrors.FromError(err)
	assert.Equal(t, int32(429), se.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", se.Reason)
}

func TestAdmitAllowsWhenRateWindowUnavailable(t *testing.T) {
	uc, _, rate, _, _ := setupGovernor(t)
	ctx := context.Background()

	rate.On("IncrementWindow", ctx, "get_feed", 60).Return(0, errors.New("redis down"))

	adm, err := uc.Admit(ctx, "get_feed")
	assert.NoError(t, err)
	assert.True(t, adm.Allowed)
}

func TestAdmitAllowsWhenCircuitStoreFails(t *testing.T) {
	uc, circuits, rate, _, _ := setupGovernor(t)
	ctx := context.Background()

	rate.On("IncrementWindow", ctx, "get_feed", 60).Return(1, nil)
	circuits.storeErr = errors.New("store down")

	adm, err := uc.Admit(ctx, "get_feed")
	assert.NoError(t, err)
	assert.True(t, adm.Allowed)
	assert.Equal(t, "circuit state unavailable", adm.Reason)
}

func TestCircuitOpensAfterThresholdFailures(t *testing.T) {
	uc, _, rate, audit, _ := setupGovernor(t)
	ctx := context.Background()

	// sign_in uses strict: threshold 3, reset 60s, audited invocations
	audit.On("LogInvocation", ctx, "sign_in", false, 503, mock.Anything).Return()
	audit.On("LogCircuitOpened", ctx, "sign_in", 3, mock.Anything).Return()

	for i := 0; i < 3; i++ {
		err := uc.RecordResult(ctx, "sign_in", false, 503, 100*time.Millisecond)
		assert.NoError(t, err)
	}

	audit.AssertNumberOfCalls(t, "LogCircuitOpened", 1)
	audit.AssertNumberOfCalls(t, "LogInvocation", 3)

	state, err := uc.CircuitState(ctx, "sign_in")
	assert.NoError(t, err)
	assert.Equal(t, circuit.StateOpen, state.Kind)

	// Pre-flight now denies with a 503.
	rate.On("IncrementWindow", ctx, "sign_in", 60).Return(1, nil)
	adm, err := uc.Admit(ctx, "sign_in")
	assert.Error(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, circuit.StateOpen, adm.CircuitState)
	assert.True(t, adm.RetryAfter > 0)

	se := kerrors.FromError(err)
	assert.Equal(t, int32(503), se.Code)
	assert.Equal(t, "CIRCUIT_OPEN", se.Reason)
}

func TestCircuitRecoveryCycle(t *testing.T) {
	uc, _, rate, audit, now := setupGovernor(t)
	ctx := context.Background()

	audit.On("LogInvocation", mock.Anything, "sign_in", mock.Anything, mock.Anything, mock.Anything).Return()
	audit.On("LogCircuitOpened", mock.Anything, "sign_in", 3, mock.Anything).Return()
	audit.On("LogCircuitRecovered", mock.Anything, "sign_in", mock.Anything, mock.Anything).Return()

	for i := 0; i < 3; i++ {
		assert.NoError(t, uc.RecordResult(ctx, "sign_in", false, 503, time.Millisecond))
	}

	// Past the reset timeout the circuit probes again.
	*now = now.Add(61 * time.Second)
	rate.On("IncrementWindow", mock.Anything, "sign_in", 60).Return(1, nil)

	adm, err := uc.Admit(ctx, "sign_in")
	assert.NoError(t, err)
	assert.True(t, adm.Allowed)
	assert.Equal(t, circuit.StateHalfOpen, adm.CircuitState)

	// Default breaker preset closes after 2 half-open successes.
	assert.NoError(t, uc.RecordResult(ctx, "sign_in", true, 200, time.Millisecond))
	assert.NoError(t, uc.RecordResult(ctx, "sign_in", true, 200, time.Millisecond))

	state, err := uc.CircuitState(ctx, "sign_in")
	assert.NoError(t, err)
	assert.Equal(t, circuit.StateClosed, state.Kind)
	audit.AssertNumberOfCalls(t, "LogCircuitRecovered", 1)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	uc, _, rate, audit, now := setupGovernor(t)
	ctx := context.Background()

	audit.On("LogInvocation", mock.Anything, "sign_in", mock.Anything, mock.Anything, mock.Anything).Return()
	audit.On("LogCircuitOpened", mock.Anything, "sign_in", 3, mock.Anything).Return()

	for i := 0; i < 3; i++ {
		assert.NoError(t, uc.RecordResult(ctx, "sign_in", false, 503, time.Millisecond))
	}

	*now = now.Add(61 * time.Second)
	rate.On("IncrementWindow", mock.Anything, "sign_in", 60).Return(1, nil)

	adm, err := uc.Admit(ctx, "sign_in")
	assert.NoError(t, err)
	assert.Equal(t, circuit.StateHalfOpen, adm.CircuitState)

	// A failed probe snaps straight back to open.
	assert.NoError(t, uc.RecordResult(ctx, "sign_in", false, 503, time.Millisecond))

	state, err := uc.CircuitState(ctx, "sign_in")
	assert.NoError(t, err)
	assert.Equal(t, circuit.StateOpen, state.Kind)
}

func TestRecordResultSkipsAuditForUnauditedFunctions(t *testing.T) {
	uc, _, _, audit, _ := setupGovernor(t)
	ctx := context.Background()

	// get_feed (bulk) does not require the audit trail.
	assert.NoError(t, uc.RecordResult(ctx, "get_feed", true, 200, time.Millisecond))
	audit.AssertNotCalled(t, "LogInvocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNextRetry(t *testing.T) {
	uc, _, _, _, _ := setupGovernor(t)

	// get_feed (bulk): 2 retries, so 3 attempts total.
	d := uc.NextRetry("get_feed", 503, 0)
	assert.True(t, d.ShouldRetry)
	assert.True(t, d.Delay > 0)

	d = uc.NextRetry("get_feed", 503, 2)
	assert.False(t, d.ShouldRetry)
	assert.Contains(t, d.Reason, "max attempts exceeded")

	// Client errors never retry.
	d = uc.NextRetry("get_feed", 404, 0)
	assert.False(t, d.ShouldRetry)
}

func TestResetCircuit(t *testing.T) {
	uc, circuits, _, audit, _ := setupGovernor(t)
	ctx := context.Background()

	audit.On("LogInvocation", mock.Anything, "sign_in", mock.Anything, mock.Anything, mock.Anything).Return()
	audit.On("LogCircuitOpened", mock.Anything, "sign_in", 3, mock.Anything).Return()
	audit.On("LogCircuitReset", ctx, "sign_in", "ops-oncall").Return()

	for i := 0; i < 3; i++ {
		assert.NoError(t, uc.RecordResult(ctx, "sign_in", false, 503, time.Millisecond))
	}

	assert.NoError(t, uc.ResetCircuit(ctx, "sign_in", "ops-oncall"))
	assert.Empty(t, circuits.blobs)

	state, err := uc.CircuitState(ctx, "sign_in")
	assert.NoError(t, err)
	assert.Equal(t, circuit.StateClosed, state.Kind)
	audit.AssertExpectations(t)
}
