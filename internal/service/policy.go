// Package service exposes the policy engine's operational surface:
// circuit inspection and reset, connection health, and per-function
// configuration.
package service

import (
	"context"
	"time"

	"PolicyLane/internal/biz"
	"PolicyLane/pkg/circuit"
	"PolicyLane/pkg/health"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewPolicyService)

// PolicyService implements the admin HTTP surface.
type PolicyService struct {
	governor *biz.GovernorUseCase
	registry *biz.RegistryUseCase
	monitor  *biz.HealthMonitorUseCase
	audit    biz.AuditLogger
	logger   *log.Helper
}

// NewPolicyService creates a new PolicyService instance.
func NewPolicyService(governor *biz.GovernorUseCase, registry *biz.RegistryUseCase, monitor *biz.HealthMonitorUseCase, audit biz.AuditLogger, logger log.Logger) *PolicyService {
	return &PolicyService{
		governor: governor,
		registry: registry,
		monitor:  monitor,
		audit:    audit,
		logger:   log.NewHelper(logger),
	}
}

// CircuitStateReply describes one function's circuit for the admin surface.
type CircuitStateReply struct {
	Function     string            `json:"function"`
	State        circuit.StateKind `json:"state"`
	FailureCount int               `json:"failure_count"`
	SuccessCount int               `json:"success_count"`
	OpenedAt     *time.Time        `json:"opened_at,omitempty"`
}

// GetCircuitState returns the circuit state for a function.
func (s *PolicyService) GetCircuitState(ctx context.Context, function string) (*CircuitStateReply, error) {
	if function == "" {
		return nil, errors.New(400, "MISSING_FUNCTION", "function name is required")
	}

	state, err := s.governor.CircuitState(ctx, function)
	if err != nil {
		s.logger.Errorw("msg", "failed to load circuit state", "function", function, "error", err)
		return nil, errors.New(500, "CIRCUIT_STATE_UNAVAILABLE", "failed to load circuit state")
	}

	reply := &CircuitStateReply{
		Function:     function,
		State:        state.Kind,
		FailureCount: len(state.FailureTimes),
		SuccessCount: state.SuccessCount,
	}
	if state.OpenedAt > 0 {
		t := time.UnixMilli(state.OpenedAt)
		reply.OpenedAt = &t
	}
	return reply, nil
}

// ListCircuits returns the circuit state of every tracked function.
func (s *PolicyService) ListCircuits(ctx context.Context) ([]*CircuitStateReply, error) {
	functions, err := s.governor.TrackedFunctions(ctx)
	if err != nil {
		s.logger.Errorw("msg", "failed to list circuits", "error", err)
		return nil, errors.New(500, "CIRCUIT_STATE_UNAVAILABLE", "failed to list circuits")
	}

	replies := make([]*CircuitStateReply, 0, len(functions))
	for _, fn := range functions {
		reply, err := s.GetCircuitState(ctx, fn)
		if err != nil {
			continue
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// ResetCircuit forces a function's circuit closed.
func (s *PolicyService) ResetCircuit(ctx context.Context, function, operator string) error {
	if function == "" {
		return errors.New(400, "MISSING_FUNCTION", "function name is required")
	}
	if operator == "" {
		operator = "admin"
	}

	if err := s.governor.ResetCircuit(ctx, function, operator); err != nil {
		s.logger.Errorw("msg", "failed to reset circuit", "function", function, "error", err)
		return errors.New(500, "CIRCUIT_RESET_FAILED", "failed to reset circuit")
	}

	s.logger.Infow("msg", "circuit reset via admin surface",
		"function", function,
		"operator", operator)
	return nil
}

// GetHealth returns the latest connection-health snapshot, recomputed on
// demand.
func (s *PolicyService) GetHealth(ctx context.Context) health.Result {
	return s.monitor.Evaluate(ctx)
}

// ConfigReply wraps an RPCConfig with its function name.
type ConfigReply struct {
	Function string        `json:"function"`
	Config   biz.RPCConfig `json:"config"`
}

// GetConfig returns the effective RPCConfig for a function.
// Unknown functions report the normal preset, same as the engine behaves.
func (s *PolicyService) GetConfig(_ context.Context, function string) (*ConfigReply, error) {
	if function == "" {
		return nil, errors.New(400, "MISSING_FUNCTION", "function name is required")
	}
	return &ConfigReply{
		Function: function,
		Config:   s.registry.GetConfig(function),
	}, nil
}

// OverrideConfigRequest is the payload for a runtime config override.
// Either a preset name or a full config must be supplied.
type OverrideConfigRequest struct {
	Preset   string         `json:"preset,omitempty"`
	Config   *biz.RPCConfig `json:"config,omitempty"`
	Operator string         `json:"operator,omitempty"`
}

// OverrideConfig registers a runtime override for a function and records
// it in the audit trail.
func (s *PolicyService) OverrideConfig(ctx context.Context, function string, req *OverrideConfigRequest) (*ConfigReply, error) {
	if function == "" {
		return nil, errors.New(400, "MISSING_FUNCTION", "function name is required")
	}
	if req == nil || (req.Preset == "" && req.Config == nil) {
		return nil, errors.New(400, "MISSING_CONFIG", "preset or config is required")
	}

	var cfg biz.RPCConfig
	switch {
	case req.Config != nil:
		cfg = *req.Config
	case biz.IsPresetName(req.Preset):
		cfg = biz.Preset(req.Preset)
	default:
		return nil, errors.New(400, "UNKNOWN_PRESET", "unknown preset name: "+req.Preset)
	}

	if err := s.registry.Register(function, cfg); err != nil {
		return nil, errors.New(400, "INVALID_CONFIG", err.Error())
	}

	operator := req.Operator
	if operator == "" {
		operator = "admin"
	}
	s.audit.LogConfigOverridden(ctx, function, operator)

	return &ConfigReply{Function: function, Config: cfg}, nil
}
