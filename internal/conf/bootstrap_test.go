package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewBootstrapDefaults(t *testing.T) {
	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout.AsDuration())
	assert.Equal(t, "memory", bc.Data.CircuitStore)
	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)
	assert.Equal(t, 60*time.Second, bc.Resilience.SampleWindow.AsDuration())
	assert.Equal(t, "wifi", bc.Resilience.ConnectionType)
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrapFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http:
    addr: 0.0.0.0:9090
    timeout: 10s
data:
  circuit_store: redis
  redis:
    addr: redis.internal:6379
resilience:
  sample_window: 120s
  connection_type: cellular
  functions:
    get_feed: relaxed
log:
  level: debug
  format: console
`)

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", bc.Server.Http.Addr)
	assert.Equal(t, 10*time.Second, bc.Server.Http.Timeout.AsDuration())
	assert.Equal(t, "redis", bc.Data.CircuitStore)
	assert.Equal(t, "redis.internal:6379", bc.Data.Redis.Addr)
	assert.Equal(t, 120*time.Second, bc.Resilience.SampleWindow.AsDuration())
	assert.Equal(t, "cellular", bc.Resilience.ConnectionType)
	assert.Equal(t, map[string]string{"get_feed": "relaxed"}, bc.Resilience.Functions)
	assert.Equal(t, "debug", bc.Log.Level)
}

func TestNewBootstrapMissingFile(t *testing.T) {
	_, err := NewBootstrap("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestNewBootstrapEnvOverride(t *testing.T) {
	t.Setenv("REDIS_ADDR", "10.0.0.5:6379")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(db:3306)/audit")

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:6379", bc.Data.Redis.Addr)
	assert.Equal(t, "user:pass@tcp(db:3306)/audit", bc.Data.Database.Source)
}

func TestValidateRejectsUnknownCircuitStore(t *testing.T) {
	path := writeConfigFile(t, `
data:
  circuit_store: etcd
`)
	_, err := NewBootstrap(path)
	assert.ErrorContains(t, err, "circuit_store")
}

func TestValidateRejectsRedisStoreWithoutAddr(t *testing.T) {
	err := Validate(&Bootstrap{
		Data: &Data{
			CircuitStore: "redis",
			Redis:        &Redis{},
		},
	})
	assert.ErrorContains(t, err, "data.redis.addr")
}

func TestValidateRejectsNonPositiveSampleWindow(t *testing.T) {
	err := Validate(&Bootstrap{
		Data: &Data{CircuitStore: "memory"},
		Resilience: &Resilience{
			SampleWindow: durationpb.New(0),
		},
	})
	assert.ErrorContains(t, err, "sample_window")
}
