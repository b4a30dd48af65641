package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
	Redis       RedisConfig       `yaml:"redis"`
	Hierarchy   HierarchyConfig   `yaml:"hierarchy"`
	Events      EventsConfig      `yaml:"events"`
	Performance PerformanceConfig `yaml:"performance"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	// Connection pool settings
	MaxConns int `yaml:"max_conns"`
	MinConns int `yaml:"min_conns"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig holds hierarchy cache configuration
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Backend         string        `yaml:"backend"` // "memory" or "redis"
	MaxSize         int           `yaml:"max_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
}

// RedisConfig is shared by the Redis cache and the Redis event publisher.
type RedisConfig struct {
	Addr             string        `yaml:"addr"`
	Password         string        `yaml:"password"`
	DB               int           `yaml:"db"`
	KeyPrefix        string        `yaml:"key_prefix"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// HierarchyConfig controls the tree store and mutation limits.
type HierarchyConfig struct {
	Store           string        `yaml:"store"` // "memory" or "postgres"
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	MutationTimeout time.Duration `yaml:"mutation_timeout"`
	MaxDepth        int           `yaml:"max_depth"` // 0 disables the guard
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// EventsConfig selects where hierarchy events go.
type EventsConfig struct {
	Backend    string `yaml:"backend"` // "none", "log" or "redis"
	BufferSize int    `yaml:"buffer_size"`
	Channel    string `yaml:"channel"`
}

// PerformanceConfig holds performance monitoring configuration
type PerformanceConfig struct {
	MetricsEnabled     bool          `yaml:"metrics_enabled"`
	MetricsEndpoint    string        `yaml:"metrics_endpoint"`
	MonitoringEnabled  bool          `yaml:"monitoring_enabled"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
	MaxSlowQueries     int           `yaml:"max_slow_queries"`
}

// RateLimitConfig throttles mutating HTTP routes.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "catalog",
			User:     "postgres",
			SSLMode:  "prefer",
			MaxConns: 10,
			MinConns: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Enabled:         true,
			Backend:         "memory",
			MaxSize:         1000,
			CleanupInterval: 5 * time.Minute,
			DefaultTTL:      30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			KeyPrefix:        "catalog:hierarchy:",
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Hierarchy: HierarchyConfig{
			Store:           "memory",
			LockTimeout:     2 * time.Second,
			MutationTimeout: 10 * time.Second,
			MaxDepth:        0,
			AutoMigrate:     true,
		},
		Events: EventsConfig{
			Backend:    "log",
			BufferSize: 256,
			Channel:    "catalog.hierarchy.events",
		},
		Performance: PerformanceConfig{
			MetricsEnabled:     true,
			MetricsEndpoint:    "/metrics",
			MonitoringEnabled:  true,
			SlowQueryThreshold: 500 * time.Millisecond,
			MaxSlowQueries:     100,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// LoadConfig loads configuration from environment variables on top of the defaults
func LoadConfig() *Config {
	cfg := Defaults()
	cfg.ApplyEnv()
	return cfg
}

// Load reads .env when present, overlays CONFIG_FILE when set, applies the
// environment on top and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML document. Keys missing from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields whose environment variable is set.
func (c *Config) ApplyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getDurationEnv("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getIntEnv("DB_PORT", c.Database.Port)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxConns = getIntEnv("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getIntEnv("DB_MIN_CONNS", c.Database.MinConns)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Cache.Enabled = getBoolEnv("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.Backend = getEnv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.MaxSize = getIntEnv("CACHE_MAX_SIZE", c.Cache.MaxSize)
	c.Cache.CleanupInterval = getDurationEnv("CACHE_CLEANUP_INTERVAL", c.Cache.CleanupInterval)
	c.Cache.DefaultTTL = getDurationEnv("CACHE_DEFAULT_TTL", c.Cache.DefaultTTL)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)
	c.Redis.FailureThreshold = getIntEnv("REDIS_FAILURE_THRESHOLD", c.Redis.FailureThreshold)
	c.Redis.OpenTimeout = getDurationEnv("REDIS_OPEN_TIMEOUT", c.Redis.OpenTimeout)

	c.Hierarchy.Store = getEnv("HIERARCHY_STORE", c.Hierarchy.Store)
	c.Hierarchy.LockTimeout = getDurationEnv("HIERARCHY_LOCK_TIMEOUT", c.Hierarchy.LockTimeout)
	c.Hierarchy.MutationTimeout = getDurationEnv("HIERARCHY_MUTATION_TIMEOUT", c.Hierarchy.MutationTimeout)
	c.Hierarchy.MaxDepth = getIntEnv("HIERARCHY_MAX_DEPTH", c.Hierarchy.MaxDepth)
	c.Hierarchy.AutoMigrate = getBoolEnv("HIERARCHY_AUTO_MIGRATE", c.Hierarchy.AutoMigrate)

	c.Events.Backend = getEnv("EVENTS_BACKEND", c.Events.Backend)
	c.Events.BufferSize = getIntEnv("EVENTS_BUFFER_SIZE", c.Events.BufferSize)
	c.Events.Channel = getEnv("EVENTS_CHANNEL", c.Events.Channel)

	c.Performance.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Performance.MetricsEnabled)
	c.Performance.MetricsEndpoint = getEnv("METRICS_ENDPOINT", c.Performance.MetricsEndpoint)
	c.Performance.MonitoringEnabled = getBoolEnv("MONITORING_ENABLED", c.Performance.MonitoringEnabled)
	c.Performance.SlowQueryThreshold = getDurationEnv("SLOW_QUERY_THRESHOLD", c.Performance.SlowQueryThreshold)
	c.Performance.MaxSlowQueries = getIntEnv("MAX_SLOW_QUERIES", c.Performance.MaxSlowQueries)

	c.RateLimit.Enabled = getBoolEnv("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerSecond = getFloatEnv("RATE_LIMIT_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = getIntEnv("RATE_LIMIT_BURST", c.RateLimit.Burst)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets duration from environment variable with default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets integer from environment variable with default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getBoolEnv gets boolean from environment variable with default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "LOG_LEVEL", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return &ConfigError{Field: "LOG_FORMAT", Message: "must be json or text"}
	}

	switch c.Hierarchy.Store {
	case "memory":
	case "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			return &ConfigError{Field: "DB_HOST", Message: "postgres store requires DB_HOST and DB_NAME"}
		}
	default:
		return &ConfigError{Field: "HIERARCHY_STORE", Message: "must be memory or postgres"}
	}
	if c.Hierarchy.LockTimeout <= 0 {
		return &ConfigError{Field: "HIERARCHY_LOCK_TIMEOUT", Message: "must be positive"}
	}
	if c.Hierarchy.MaxDepth < 0 {
		return &ConfigError{Field: "HIERARCHY_MAX_DEPTH", Message: "must not be negative"}
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory":
			if c.Cache.MaxSize <= 0 {
				return &ConfigError{Field: "CACHE_MAX_SIZE", Message: "must be positive"}
			}
		case "redis":
			if c.Redis.Addr == "" {
				return &ConfigError{Field: "REDIS_ADDR", Message: "redis cache requires an address"}
			}
		default:
			return &ConfigError{Field: "CACHE_BACKEND", Message: "must be memory or redis"}
		}
	}

	switch c.Events.Backend {
	case "none", "log":
	case "redis":
		if c.Redis.Addr == "" {
			return &ConfigError{Field: "REDIS_ADDR", Message: "redis events require an address"}
		}
	default:
		return &ConfigError{Field: "EVENTS_BACKEND", Message: "must be none, log or redis"}
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return &ConfigError{Field: "RATE_LIMIT_RPS", Message: "rate and burst must be positive when enabled"}
	}
	return nil
}

// ConfigError represents configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
