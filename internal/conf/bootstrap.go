// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment
// variables, with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies
// defaults, and allows overrides from environment variables prefixed with
// POLICYLANE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Optional environment variables:
//   - REDIS_ADDR or POLICYLANE_DATA_REDIS_ADDR: Redis address
//   - MYSQL_DSN or POLICYLANE_DATA_DATABASE_SOURCE: audit database DSN
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with POLICYLANE_ prefix
	v.SetEnvPrefix("POLICYLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without POLICYLANE_ prefix)
	// for compatibility with deployment templates
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "POLICYLANE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "POLICYLANE_DATA_REDIS_ADDR")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &ServerHTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
			CircuitStore: v.GetString("data.circuit_store"),
		},
		Resilience: &Resilience{
			Functions:      v.GetStringMapString("resilience.functions"),
			SampleWindow:   durationpb.New(v.GetDuration("resilience.sample_window")),
			ConnectionType: v.GetString("resilience.connection_type"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate configuration values
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is optional; without it the
	// audit trail degrades to log-only

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)
	v.SetDefault("data.circuit_store", "memory")

	// Resilience defaults
	v.SetDefault("resilience.sample_window", 60*time.Second)
	v.SetDefault("resilience.connection_type", "wifi")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that configuration values are consistent.
// It returns an error listing every invalid field.
func Validate(bc *Bootstrap) error {
	var invalid []string

	if bc.Data != nil {
		switch bc.Data.CircuitStore {
		case "", "memory", "redis":
		default:
			invalid = append(invalid, fmt.Sprintf("data.circuit_store (%q, want memory or redis)", bc.Data.CircuitStore))
		}
		if bc.Data.CircuitStore == "redis" && (bc.Data.Redis == nil || bc.Data.Redis.Addr == "") {
			invalid = append(invalid, "data.redis.addr (required when data.circuit_store is redis)")
		}
	}

	if bc.Resilience != nil && bc.Resilience.SampleWindow != nil {
		if bc.Resilience.SampleWindow.AsDuration() <= 0 {
			invalid = append(invalid, "resilience.sample_window (must be positive)")
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration fields: %s", strings.Join(invalid, ", "))
	}

	return nil
}
