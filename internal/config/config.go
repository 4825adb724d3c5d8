package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are resolved in order: built-in defaults, config file,
// .env file, KEYGATE_* environment variables, runtime overrides.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Session   SessionConfig   `mapstructure:"session"`
	APIKey    APIKeyConfig    `mapstructure:"apikey"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AdminToken enables the bearer-protected POST /admin/signal endpoint.
	AdminToken string `mapstructure:"admin_token"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RateLimitConfig configures the in-process fixed-window limiter guarding
// the key endpoints.
type RateLimitConfig struct {
	// WindowMs is the window length in milliseconds.
	WindowMs int `mapstructure:"window_ms"`

	// MaxRequests is the number of requests admitted per identity per window.
	MaxRequests int `mapstructure:"max_requests"`

	// IdentityHeader names the request header carrying the client identity.
	// The first comma-separated hop is used.
	IdentityHeader string `mapstructure:"identity_header"`

	// SweepMode is "periodic" (background sweeper) or "inline" (sweep on every check).
	SweepMode string `mapstructure:"sweep_mode"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Shards        int           `mapstructure:"shards"`
}

// Window returns WindowMs as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// SessionConfig selects and configures the session provider.
type SessionConfig struct {
	// Provider is "jwt" or "redis".
	Provider   string      `mapstructure:"provider"`
	CookieName string      `mapstructure:"cookie_name"`
	JWT        JWTConfig   `mapstructure:"jwt"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// JWTConfig configures HS256 session token validation.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

// RedisConfig configures the Redis-backed session lookup.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// APIKeyConfig controls key issuance.
type APIKeyConfig struct {
	// Prefix is prepended to every generated secret.
	Prefix string `mapstructure:"prefix"`

	// Pepper keys the HMAC used to hash secrets at rest.
	Pepper string `mapstructure:"pepper"`

	MaxNameLength int `mapstructure:"max_name_length"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	// Enabled mounts the pprof handlers under /debug.
	Enabled bool `mapstructure:"enabled"`
}
