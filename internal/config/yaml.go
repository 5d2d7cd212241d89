package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reelvault/reelvault/internal/model"
)

// AppConfig represents the top-level reelvault configuration file. The same
// keys are reachable through REELVAULT_* environment variables.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Usage   UsageConfig   `yaml:"usage" mapstructure:"usage"`
	Public  PublicConfig  `yaml:"public" mapstructure:"public"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string `yaml:"host" mapstructure:"host"`
	Port            int    `yaml:"port" mapstructure:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the database holding keys, users, and movies.
type StoreConfig struct {
	Driver  string           `yaml:"driver" mapstructure:"driver"`
	DSN     string           `yaml:"dsn" mapstructure:"dsn"`
	DataDir string           `yaml:"data_dir" mapstructure:"data_dir"`
	Pool    model.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AuthConfig controls admin sessions and API key hashing.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTExpiry    string `yaml:"jwt_expiry" mapstructure:"jwt_expiry"`
	APIKeyHeader string `yaml:"api_key_header" mapstructure:"api_key_header"`
	KeyHashCost  int    `yaml:"key_hash_cost" mapstructure:"key_hash_cost"`
}

// CacheConfig controls the admin key-list cache. An empty RedisURL keeps
// the cache in process memory.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTL      string `yaml:"ttl" mapstructure:"ttl"`
}

// UsageConfig sizes the background usage recorder.
type UsageConfig struct {
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// PublicConfig controls the key-gated public API.
type PublicConfig struct {
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LoadAppConfig reads and parses a YAML configuration file on top of the
// defaults. Environment variables referenced as ${VAR_NAME} in the file are
// expanded before parsing.
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := DefaultAppConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultAppConfig returns an AppConfig pre-filled with sensible defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Pool:   model.DefaultPoolConfig(),
		},
		Auth: AuthConfig{
			JWTExpiry:    "24h",
			APIKeyHeader: "X-API-Key",
			KeyHashCost:  10,
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
		Usage: UsageConfig{
			Workers:   4,
			QueueSize: 1024,
		},
		Public: PublicConfig{
			RateLimitPerMinute: 0,
			CORSOrigins:        []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c *AppConfig) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres, DriverMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be one of sqlite, postgres, mysql (got %q)", c.Store.Driver)
	}
	for name, val := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.jwt_expiry":         c.Auth.JWTExpiry,
		"cache.ttl":               c.Cache.TTL,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Auth.APIKeyHeader == "" {
		return fmt.Errorf("auth.api_key_header must not be empty")
	}
	if c.Usage.Workers < 1 {
		return fmt.Errorf("usage.workers must be at least 1")
	}
	return nil
}

// Duration parses a duration string from the config, falling back to def
// when the value is empty or malformed.
func Duration(val string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
