package cli

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelvault/reelvault/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and the OpenAPI doc
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reelvault",
		Short: "Movie catalog API behind managed API keys",
		Long: `ReelVault serves a movie catalog over a read-only REST API gated by API keys.

Admins issue, label, deactivate, and delete keys through the system API or this CLI.
Each key is shown once at creation, stored only as a bcrypt hash, and every
successful request is counted against it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./reelvault.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.reelvault)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newMovieCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	// A .env next to the binary is optional.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("reelvault")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.reelvault")
	}

	setDefaults(config.DefaultAppConfig())

	viper.SetEnvPrefix("REELVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

// setDefaults registers every config key with viper so AutomaticEnv can
// resolve REELVAULT_* variables during Unmarshal.
func setDefaults(d *config.AppConfig) {
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	viper.SetDefault("store.driver", d.Store.Driver)
	viper.SetDefault("store.dsn", d.Store.DSN)
	viper.SetDefault("store.data_dir", d.Store.DataDir)
	viper.SetDefault("store.pool.max_open_conns", d.Store.Pool.MaxOpenConns)
	viper.SetDefault("store.pool.max_idle_conns", d.Store.Pool.MaxIdleConns)
	viper.SetDefault("store.pool.conn_max_lifetime", d.Store.Pool.ConnMaxLifetime)
	viper.SetDefault("store.pool.conn_max_idle_time", d.Store.Pool.ConnMaxIdleTime)

	viper.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	viper.SetDefault("auth.jwt_expiry", d.Auth.JWTExpiry)
	viper.SetDefault("auth.api_key_header", d.Auth.APIKeyHeader)
	viper.SetDefault("auth.key_hash_cost", d.Auth.KeyHashCost)

	viper.SetDefault("cache.redis_url", d.Cache.RedisURL)
	viper.SetDefault("cache.ttl", d.Cache.TTL)

	viper.SetDefault("usage.workers", d.Usage.Workers)
	viper.SetDefault("usage.queue_size", d.Usage.QueueSize)

	viper.SetDefault("public.rate_limit_per_minute", d.Public.RateLimitPerMinute)
	viper.SetDefault("public.cors_origins", d.Public.CORSOrigins)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
}
