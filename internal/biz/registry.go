package biz

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// RPCConfig is the immutable tuning bundle for one logical RPC function.
// Instances are constructed as named presets and never mutated after
// registration.
type RPCConfig struct {
	// Rate-limit envelope: MaxRequests allowed per rolling Window.
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`

	// Circuit breaker tuning.
	CircuitFailureThreshold int           `json:"circuit_failure_threshold"`
	CircuitResetTimeout     time.Duration `json:"circuit_reset_timeout"`

	// Retry envelope.
	MaxRetries        int           `json:"max_retries"`
	InitialRetryDelay time.Duration `json:"initial_retry_delay"`
	MaxRetryDelay     time.Duration `json:"max_retry_delay"`

	// Per-request timeout.
	Timeout time.Duration `json:"timeout"`

	// RequiresAuditLog marks invocations that must land in the compliance
	// audit trail.
	RequiresAuditLog bool `json:"requires_audit_log"`
}

// Validate checks the RPCConfig invariants. Presets always pass; this
// guards runtime-registered overrides.
func (c RPCConfig) Validate() error {
	if c.InitialRetryDelay > c.MaxRetryDelay {
		return fmt.Errorf("rpc config: initial retry delay %s exceeds max %s", c.InitialRetryDelay, c.MaxRetryDelay)
	}
	if c.CircuitFailureThreshold < 1 {
		return fmt.Errorf("rpc config: circuit failure threshold must be >= 1, got %d", c.CircuitFailureThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("rpc config: max retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

// Preset names. These values are a versioned contract shared with the
// mobile clients; changing a number here changes user-visible reliability
// behavior on both platforms at once.
const (
	PresetStrict   = "strict"
	PresetNormal   = "normal"
	PresetBulk     = "bulk"
	PresetRealtime = "realtime"
	PresetSync     = "sync"
	PresetRelaxed  = "relaxed"
)

// presets holds the six named RPCConfig bundles.
var presets = map[string]RPCConfig{
	PresetStrict: {
		MaxRequests:             10,
		Window:                  60 * time.Second,
		CircuitFailureThreshold: 3,
		CircuitResetTimeout:     60 * time.Second,
		MaxRetries:              2,
		InitialRetryDelay:       time.Second,
		MaxRetryDelay:           5 * time.Second,
		Timeout:                 10 * time.Second,
		RequiresAuditLog:        true,
	},
	PresetNormal: {
		MaxRequests:             60,
		Window:                  60 * time.Second,
		CircuitFailureThreshold: 5,
		CircuitResetTimeout:     30 * time.Second,
		MaxRetries:              3,
		InitialRetryDelay:       500 * time.Millisecond,
		MaxRetryDelay:           10 * time.Second,
		Timeout:                 15 * time.Second,
		RequiresAuditLog:        false,
	},
	PresetBulk: {
		MaxRequests:             30,
		Window:                  60 * time.Second,
		CircuitFailureThreshold: 8,
		CircuitResetTimeout:     20 * time.Second,
		MaxRetries:              2,
		InitialRetryDelay:       time.Second,
		MaxRetryDelay:           15 * time.Second,
		Timeout:                 30 * time.Second,
		RequiresAuditLog:        false,
	},
	PresetRealtime: {
		MaxRequests:             120,
		Window:                  60 * time.Second,
		CircuitFailureThreshold: 10,
		CircuitResetTimeout:     10 * time.Second,
		MaxRetries:              1,
		InitialRetryDelay:       250 * time.Millisecond,
		MaxRetryDelay:           time.Second,
		Timeout:                 5 * time.Second,
		RequiresAuditLog:        false,
	},
	PresetSync: {
		MaxRequests:             20,
		Window:                  60 * time.Second,
		CircuitFailureThreshold: 5,
		CircuitResetTimeout:     30 * time.Second,
		MaxRetries:              5,
		InitialRetryDelay:       2 * time.Second,
		MaxRetryDelay:           60 * time.Second,
		Timeout:                 60 * time.Second,
		RequiresAuditLog:        false,
	},
	PresetRelaxed: {
		MaxRequests:             100,
		Window:                  60 * time.Second,
		CircuitFailureThreshold: 10,
		CircuitResetTimeout:     15 * time.Second,
		MaxRetries:              3,
		InitialRetryDelay:       500 * time.Millisecond,
		MaxRetryDelay:           10 * time.Second,
		Timeout:                 20 * time.Second,
		RequiresAuditLog:        false,
	},
}

// Preset returns a named RPCConfig preset. Unknown names fall back to
// normal.
func Preset(name string) RPCConfig {
	if cfg, ok := presets[name]; ok {
		return cfg
	}
	return presets[PresetNormal]
}

// IsPresetName reports whether name is one of the six preset names.
func IsPresetName(name string) bool {
	_, ok := presets[name]
	return ok
}

// functionPresets maps every known RPC function name to its preset.
// Mutations that touch user data force the audit flag on at registration.
var functionPresets = map[string]struct {
	preset     string
	forceAudit bool
}{
	// Authentication endpoints
	"sign_in":        {preset: PresetStrict},
	"sign_up":        {preset: PresetStrict},
	"sign_out":       {preset: PresetStrict},
	"refresh_token":  {preset: PresetStrict},
	"reset_password": {preset: PresetStrict},

	// Profile and listing mutations: audited
	"update_profile":  {preset: PresetNormal, forceAudit: true},
	"delete_profile":  {preset: PresetNormal, forceAudit: true},
	"create_post":     {preset: PresetNormal, forceAudit: true},
	"update_post":     {preset: PresetNormal, forceAudit: true},
	"delete_post":     {preset: PresetNormal, forceAudit: true},
	"reserve_pickup":  {preset: PresetNormal, forceAudit: true},
	"complete_pickup": {preset: PresetNormal, forceAudit: true},

	// Bulk reads
	"get_nearby_posts": {preset: PresetBulk},
	"search_posts":     {preset: PresetBulk},
	"get_feed":         {preset: PresetBulk},

	// Sync
	"delta_sync": {preset: PresetSync},
	"full_sync":  {preset: PresetSync},

	// Realtime channel operations
	"subscribe_channel":   {preset: PresetRealtime},
	"unsubscribe_channel": {preset: PresetRealtime},
	"send_message":        {preset: PresetRealtime},

	// Aggregated BFF endpoints
	"get_home_screen":    {preset: PresetRelaxed},
	"get_profile_screen": {preset: PresetRelaxed},
}

// RegistryUseCase is the process-wide RPC function name → RPCConfig map.
// Lookups vastly outnumber registrations, so a read-write lock guards the
// map. Constructed once by the composition root and injected everywhere a
// config is needed.
type RegistryUseCase struct {
	mu      sync.RWMutex
	configs map[string]RPCConfig
	logger  *log.Helper
}

// NewRegistry creates a registry pre-populated with the known function
// table, then applies per-function preset overrides from configuration.
// Override entries naming an unknown preset are skipped with a warning
// rather than failing startup.
func NewRegistry(overrides map[string]string, logger log.Logger) *RegistryUseCase {
	r := &RegistryUseCase{
		configs: make(map[string]RPCConfig, len(functionPresets)),
		logger:  log.NewHelper(logger),
	}

	for name, entry := range functionPresets {
		cfg := Preset(entry.preset)
		if entry.forceAudit {
			cfg.RequiresAuditLog = true
		}
		r.configs[name] = cfg
	}

	for name, presetName := range overrides {
		if !IsPresetName(presetName) {
			r.logger.Warnw("msg", "ignoring config override with unknown preset",
				"function", name,
				"preset", presetName)
			continue
		}
		cfg := Preset(presetName)
		// Audited mutations stay audited no matter what preset the
		// operator picked for them.
		if entry, ok := functionPresets[name]; ok && entry.forceAudit {
			cfg.RequiresAuditLog = true
		}
		r.configs[name] = cfg
	}

	return r
}

// GetConfig returns the config for a function name, falling back to the
// normal preset for unregistered names. Never errors: an unknown function
// must still get sane governance.
func (r *RegistryUseCase) GetConfig(name string) RPCConfig {
	r.mu.RLock()
	cfg, ok := r.configs[name]
	r.mu.RUnlock()
	if !ok {
		return Preset(PresetNormal)
	}
	return cfg
}

// Register overrides or extends the registry at runtime. Used by tests and
// feature flags. Invalid configs are rejected.
func (r *RegistryUseCase) Register(name string, cfg RPCConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.configs[name] = cfg
	r.mu.Unlock()

	r.logger.Infow("msg", "rpc config registered",
		"function", name,
		"max_retries", cfg.MaxRetries,
		"requires_audit", cfg.RequiresAuditLog)
	return nil
}

// RequiresAuditLog reports whether invocations of name must be audited.
func (r *RegistryUseCase) RequiresAuditLog(name string) bool {
	return r.GetConfig(name).RequiresAuditLog
}

// Functions returns the currently registered function names.
func (r *RegistryUseCase) Functions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}
