// Package biz contains business logic layer implementations.
// This layer holds the policy-engine rules and domain models.
package biz

import (
	"PolicyLane/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewGovernorUseCase,
	// Import data layer providers
	data.NewRateWindowRepo,
	data.NewSampleRepo,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(RateWindowRepo), new(*data.RateWindowRepo)),
	wire.Bind(new(SampleRepo), new(*data.SampleRepo)),
	wire.Bind(new(CircuitStateRepo), new(data.CircuitStateStore)),
	wire.Bind(new(AuditLogger), new(data.AuditSink)),
)
