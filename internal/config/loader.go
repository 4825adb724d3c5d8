// Package config provides centralized configuration management for keygate.
// Layers, lowest precedence first:
// Layer 1: Built-in defaults (SetDefaults)
// Layer 2: Config file (--config or $XDG_CONFIG_HOME/keygate/config.yaml)
// Layer 3: .env file, KEYGATE_* environment variables and runtime overrides
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName is used for XDG path discovery.
	AppName = "keygate"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "KEYGATE_"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// LoadOptions controls where Load looks for its file layers.
type LoadOptions struct {
	// ConfigFile is an explicit YAML config path. When empty the XDG config
	// directory and ./config are searched for config.yaml.
	ConfigFile string

	// EnvFile is a dotenv file loaded before env overrides are read.
	// Defaults to ".env"; a missing file is ignored.
	EnvFile string
}

// Load resolves the layered configuration and decodes it into a Config.
// This function is safe to call multiple times (e.g., for config reload).
func Load(opts LoadOptions, runtimeOverrides ...map[string]any) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	rl := c.RateLimit
	switch {
	case rl.WindowMs <= 0:
		return fmt.Errorf("ratelimit.window_ms must be positive, got %d", rl.WindowMs)
	case rl.MaxRequests <= 0:
		return fmt.Errorf("ratelimit.max_requests must be positive, got %d", rl.MaxRequests)
	case rl.Shards <= 0:
		return fmt.Errorf("ratelimit.shards must be positive, got %d", rl.Shards)
	}

	switch strings.ToLower(strings.TrimSpace(rl.SweepMode)) {
	case "", "periodic", "inline":
	default:
		return fmt.Errorf("ratelimit.sweep_mode must be periodic or inline, got %q", rl.SweepMode)
	}

	switch strings.ToLower(strings.TrimSpace(c.Session.Provider)) {
	case "jwt", "redis":
	default:
		return fmt.Errorf("session.provider must be jwt or redis, got %q", c.Session.Provider)
	}

	if c.APIKey.MaxNameLength <= 0 {
		return fmt.Errorf("apikey.max_name_length must be positive, got %d", c.APIKey.MaxNameLength)
	}

	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Rate limiter defaults
	v.SetDefault("ratelimit.window_ms", 60000)
	v.SetDefault("ratelimit.max_requests", 100)
	v.SetDefault("ratelimit.identity_header", "X-Forwarded-For")
	v.SetDefault("ratelimit.sweep_mode", "periodic")
	v.SetDefault("ratelimit.sweep_interval", "30s")
	v.SetDefault("ratelimit.shards", 32)

	// Session defaults
	v.SetDefault("session.provider", "jwt")
	v.SetDefault("session.cookie_name", "keygate_session")
	v.SetDefault("session.jwt.secret", "")
	v.SetDefault("session.jwt.issuer", "")
	v.SetDefault("session.jwt.audience", "")
	v.SetDefault("session.jwt.leeway", "30s")
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.key_prefix", "keygate:session")

	// API key defaults
	v.SetDefault("apikey.prefix", "kg_")
	v.SetDefault("apikey.pepper", "")
	v.SetDefault("apikey.max_name_length", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

func readConfigFile(v *viper.Viper, configFile string) error {
	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		return nil
	}

	if dir := gfconfig.GetAppConfigDir(AppName); strings.TrimSpace(dir) != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps KEYGATE_{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},
		{Name: prefix + "ADMIN_TOKEN", Path: []string{"server", "admin_token"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Rate limiter config
		{Name: prefix + "RATELIMIT_WINDOW_MS", Path: []string{"ratelimit", "window_ms"}, Type: EnvInt},
		{Name: prefix + "RATELIMIT_MAX_REQUESTS", Path: []string{"ratelimit", "max_requests"}, Type: EnvInt},
		{Name: prefix + "RATELIMIT_IDENTITY_HEADER", Path: []string{"ratelimit", "identity_header"}, Type: EnvString},
		{Name: prefix + "RATELIMIT_SWEEP_MODE", Path: []string{"ratelimit", "sweep_mode"}, Type: EnvString},
		{Name: prefix + "RATELIMIT_SWEEP_INTERVAL", Path: []string{"ratelimit", "sweep_interval"}, Type: EnvString},
		{Name: prefix + "RATELIMIT_SHARDS", Path: []string{"ratelimit", "shards"}, Type: EnvInt},

		// Session config
		{Name: prefix + "SESSION_PROVIDER", Path: []string{"session", "provider"}, Type: EnvString},
		{Name: prefix + "SESSION_COOKIE_NAME", Path: []string{"session", "cookie_name"}, Type: EnvString},
		{Name: prefix + "SESSION_JWT_SECRET", Path: []string{"session", "jwt", "secret"}, Type: EnvString},
		{Name: prefix + "SESSION_JWT_ISSUER", Path: []string{"session", "jwt", "issuer"}, Type: EnvString},
		{Name: prefix + "SESSION_JWT_AUDIENCE", Path: []string{"session", "jwt", "audience"}, Type: EnvString},
		{Name: prefix + "SESSION_REDIS_ADDR", Path: []string{"session", "redis", "addr"}, Type: EnvString},
		{Name: prefix + "SESSION_REDIS_PASSWORD", Path: []string{"session", "redis", "password"}, Type: EnvString},
		{Name: prefix + "SESSION_REDIS_DB", Path: []string{"session", "redis", "db"}, Type: EnvInt},
		{Name: prefix + "SESSION_REDIS_KEY_PREFIX", Path: []string{"session", "redis", "key_prefix"}, Type: EnvString},

		// API key config
		{Name: prefix + "APIKEY_PREFIX", Path: []string{"apikey", "prefix"}, Type: EnvString},
		{Name: prefix + "APIKEY_PEPPER", Path: []string{"apikey", "pepper"}, Type: EnvString},
		{Name: prefix + "APIKEY_MAX_NAME_LENGTH", Path: []string{"apikey", "max_name_length"}, Type: EnvInt},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

