package main

import (
	"time"

	"PolicyLane/internal/biz"
	"PolicyLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultSampleWindow   = 60 * time.Second
	defaultConnectionType = "wifi"
)

// newRegistry builds the function registry, applying config-file preset
// overrides on top of the built-in function table.
func newRegistry(rc *conf.Resilience, logger log.Logger) *biz.RegistryUseCase {
	var overrides map[string]string
	if rc != nil {
		overrides = rc.Functions
	}
	return biz.NewRegistry(overrides, logger)
}

// newHealthMonitor builds the health monitor from the configured sample
// window and connection type.
func newHealthMonitor(samples biz.SampleRepo, rc *conf.Resilience, logger log.Logger) *biz.HealthMonitorUseCase {
	window := defaultSampleWindow
	connType := defaultConnectionType
	if rc != nil {
		if rc.SampleWindow != nil {
			window = rc.SampleWindow.AsDuration()
		}
		if rc.ConnectionType != "" {
			connType = rc.ConnectionType
		}
	}
	return biz.NewHealthMonitorUseCase(samples, window, connType, logger)
}
