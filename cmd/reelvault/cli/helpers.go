package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/reelvault/reelvault/internal/cache"
	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/metrics"
	"github.com/reelvault/reelvault/internal/service"
)

// devJWTSecret signs sessions when auth.jwt_secret is unset. Fine for a
// laptop, never for a shared deployment.
const devJWTSecret = "reelvault-dev-secret-change-me"

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// loadAppConfig resolves the effective configuration from defaults, the
// config file, and REELVAULT_* environment variables, in that order.
func loadAppConfig() (*config.AppConfig, error) {
	cfg := config.DefaultAppConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveDataDir returns the SQLite data directory from --data-dir,
// store.data_dir, or ~/.reelvault as fallback.
func resolveDataDir(cfg *config.AppConfig) string {
	if dataDir != "" {
		return dataDir
	}
	if cfg.Store.DataDir != "" {
		return cfg.Store.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".reelvault")
}

// openStore opens the configured store. SQLite is file-backed under the
// data directory unless a DSN is given.
func openStore(cfg *config.AppConfig) (*config.Store, error) {
	opts := config.Options{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
		Pool:   cfg.Store.Pool,
	}
	if opts.Driver == config.DriverSQLite && opts.DSN == "" {
		opts.DataDir = resolveDataDir(cfg)
	}
	return config.Open(opts)
}

// newLogger builds the process logger from logging.level and logging.format.
// dev forces debug level.
func newLogger(cfg *config.AppConfig, w io.Writer, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// keyCache is the key-list cache plus whatever must be released with it.
type keyCache struct {
	list  cache.KeyList
	redis *cache.Redis // nil when the cache is in memory
}

func (c keyCache) Close() {
	if c.redis != nil {
		c.redis.Close()
	}
}

// openKeyCache connects to redis when cache.redis_url is set and falls back
// to an in-process cache otherwise. Only redis is shared with other
// processes: with the in-process cache a running server picks up changes
// made by the key CLI once its cache.ttl expires.
func openKeyCache(ctx context.Context, cfg *config.AppConfig) (keyCache, error) {
	if cfg.Cache.RedisURL == "" {
		return keyCache{list: cache.NewMemory(config.Duration(cfg.Cache.TTL, cache.DefaultTTL))}, nil
	}
	return dialKeyCache(ctx, cfg)
}

// openSharedKeyCache is openKeyCache for one-shot CLI commands. Without redis
// there is no cache another process could observe, so it returns none and
// the command reads and writes the store directly.
func openSharedKeyCache(ctx context.Context, cfg *config.AppConfig) (keyCache, error) {
	if cfg.Cache.RedisURL == "" {
		return keyCache{}, nil
	}
	return dialKeyCache(ctx, cfg)
}

func dialKeyCache(ctx context.Context, cfg *config.AppConfig) (keyCache, error) {
	ttl := config.Duration(cfg.Cache.TTL, cache.DefaultTTL)
	r, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, ttl)
	if err != nil {
		return keyCache{}, fmt.Errorf("connect cache: %w", err)
	}
	return keyCache{list: r, redis: r}, nil
}

// newKeyService wires a KeyService with the configured hash cost.
func newKeyService(store *config.Store, cfg *config.AppConfig, kc keyCache, m *metrics.Metrics, logger *slog.Logger) *service.KeyService {
	return service.NewKeyService(store,
		service.WithHashCost(cfg.Auth.KeyHashCost),
		service.WithKeyCache(kc.list),
		service.WithMetrics(m),
		service.WithLogger(logger),
	)
}

// newAuthService wires an AuthService, falling back to the development
// secret with a warning when none is configured.
func newAuthService(store *config.Store, cfg *config.AppConfig, logger *slog.Logger) *service.AuthService {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("auth.jwt_secret is not set, using the development secret; set REELVAULT_AUTH_JWT_SECRET in production")
		secret = devJWTSecret
	}
	return service.NewAuthService(store, secret, config.Duration(cfg.Auth.JWTExpiry, 0))
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
