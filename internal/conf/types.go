package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration of the service.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Resilience *Resilience
	Log        *Log
}

// Server holds transport configuration.
type Server struct {
	Http *ServerHTTP
}

// ServerHTTP configures the admin HTTP server.
type ServerHTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data-layer configuration.
type Data struct {
	Database *Database
	Redis    *Redis
	// CircuitStore selects where per-key circuit state lives:
	// "memory" (bounded in-process LRU) or "redis".
	CircuitStore string
}

// Database configures the audit-trail database. The source DSN is
// optional: without it audit events are logged but not persisted.
type Database struct {
	Driver string
	Source string
}

// Redis configures the shared Redis client.
type Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Resilience tunes the policy engine.
type Resilience struct {
	// Functions maps RPC function names to preset names, overriding the
	// built-in function table at startup.
	Functions map[string]string
	// SampleWindow is the rolling window connectivity samples are kept for.
	SampleWindow *durationpb.Duration
	// ConnectionType reported to the health evaluator by the sidecar
	// (a server deployment has no radio to introspect).
	ConnectionType string
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
