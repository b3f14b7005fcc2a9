package biz

import (
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

func TestPresetLookup(t *testing.T) {
	strict := Preset(PresetStrict)
	assert.Equal(t, 10, strict.MaxRequests)
	assert.Equal(t, 3, strict.CircuitFailureThreshold)
	assert.Equal(t, 60*time.Second, strict.CircuitResetTimeout)
	assert.True(t, strict.RequiresAuditLog)

	realtime := Preset(PresetRealtime)
	assert.Equal(t, 120, realtime.MaxRequests)
	assert.Equal(t, 1, realtime.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, realtime.InitialRetryDelay)
	assert.False(t, realtime.RequiresAuditLog)
}

func TestPresetUnknownNameFallsBackToNormal(t *testing.T) {
	cfg := Preset("no-such-preset")
	assert.Equal(t, Preset(PresetNormal), cfg)
}

func TestIsPresetName(t *testing.T) {
	for _, name := range []string{PresetStrict, PresetNormal, PresetBulk, PresetRealtime, PresetSync, PresetRelaxed} {
		assert.True(t, IsPresetName(name), name)
	}
	assert.False(t, IsPresetName("turbo"))
	assert.False(t, IsPresetName(""))
}

func TestRegistryFunctionTable(t *testing.T) {
	r := NewRegistry(nil, log.DefaultLogger)

	// Auth endpoints get the strict preset.
	assert.Equal(t, Preset(PresetStrict), r.GetConfig("sign_in"))

	// Mutations carry the audit flag even though normal itself does not.
	updateProfile := r.GetConfig("update_profile")
	assert.True(t, updateProfile.RequiresAuditLog)
	assert.Equal(t, Preset(PresetNormal).MaxRequests, updateProfile.MaxRequests)

	assert.Equal(t, Preset(PresetBulk), r.GetConfig("get_nearby_posts"))
	assert.Equal(t, Preset(PresetSync), r.GetConfig("delta_sync"))
	assert.Equal(t, Preset(PresetRealtime), r.GetConfig("send_message"))
	assert.Equal(t, Preset(PresetRelaxed), r.GetConfig("get_home_screen"))
}

func TestRegistryUnknownFunctionFallsBackToNormal(t *testing.T) {
	r := NewRegistry(nil, log.DefaultLogger)

	cfg := r.GetConfig("some_future_endpoint")
	assert.Equal(t, Preset(PresetNormal), cfg)
	assert.False(t, r.RequiresAuditLog("some_future_endpoint"))
}

func TestRegistryOverrides(t *testing.T) {
	r := NewRegistry(map[string]string{
		"get_nearby_posts": "relaxed",
		"brand_new_fn":     "strict",
		"send_message":     "warp-speed", // unknown preset, skipped
	}, log.DefaultLogger)

	assert.Equal(t, Preset(PresetRelaxed), r.GetConfig("get_nearby_posts"))
	assert.Equal(t, Preset(PresetStrict), r.GetConfig("brand_new_fn"))
	// The bad override left the built-in entry untouched.
	assert.Equal(t, Preset(PresetRealtime), r.GetConfig("send_message"))
}

func TestRegistryOverrideKeepsForcedAudit(t *testing.T) {
	r := NewRegistry(map[string]string{
		"update_profile": "bulk",
	}, log.DefaultLogger)

	cfg := r.GetConfig("update_profile")
	assert.Equal(t, Preset(PresetBulk).MaxRetries, cfg.MaxRetries)
	// Mutations on the built-in audit list stay audited across overrides.
	assert.True(t, cfg.RequiresAuditLog)
	assert.True(t, r.RequiresAuditLog("update_profile"))
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(nil, log.DefaultLogger)

	custom := Preset(PresetNormal)
	custom.MaxRetries = 7
	custom.RequiresAuditLog = true

	err := r.Register("custom_fn", custom)
	assert.NoError(t, err)
	assert.Equal(t, custom, r.GetConfig("custom_fn"))
	assert.True(t, r.RequiresAuditLog("custom_fn"))
}

func TestRegistryRegisterRejectsInvalidConfig(t *testing.T) {
	r := NewRegistry(nil, log.DefaultLogger)

	bad := Preset(PresetNormal)
	bad.InitialRetryDelay = 10 * time.Second
	bad.MaxRetryDelay = time.Second
	assert.Error(t, r.Register("bad_fn", bad))

	bad = Preset(PresetNormal)
	bad.CircuitFailureThreshold = 0
	assert.Error(t, r.Register("bad_fn", bad))

	bad = Preset(PresetNormal)
	bad.MaxRetries = -1
	assert.Error(t, r.Register("bad_fn", bad))

	// Nothing was registered.
	assert.Equal(t, Preset(PresetNormal), r.GetConfig("bad_fn"))
}

func TestRegistryFunctions(t *testing.T) {
	r := NewRegistry(nil, log.DefaultLogger)

	names := r.Functions()
	assert.Contains(t, names, "sign_in")
	assert.Contains(t, names, "full_sync")
	assert.Len(t, names, len(functionPresets))
}
