package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/reelvault/reelvault/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ReelVault configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default reelvault.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit("reelvault.yaml", force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

const defaultConfig = `# ReelVault Configuration
# Every key can be overridden with a REELVAULT_ environment variable,
# e.g. REELVAULT_AUTH_JWT_SECRET or REELVAULT_STORE_DSN.

server:
  host: 0.0.0.0
  port: 8080
  shutdown_timeout: 30s

# Where keys, users, and movies live.
store:
  driver: sqlite   # sqlite, postgres, or mysql
  dsn: ""          # required for postgres/mysql; mysql needs parseTime=true&clientFoundRows=true
  data_dir: ""     # sqlite only, default ~/.reelvault
  pool:            # postgres/mysql only
    max_open_conns: 25
    max_idle_conns: 5
    conn_max_lifetime: 5m
    conn_max_idle_time: 1m

auth:
  jwt_secret: ""   # Set via REELVAULT_AUTH_JWT_SECRET env var
  jwt_expiry: 24h
  api_key_header: X-API-Key
  key_hash_cost: 10

# Admin key-list cache. Leave redis_url empty for an in-process cache.
cache:
  redis_url: ""    # e.g. redis://localhost:6379/0
  ttl: 5m

# Background usage counting
usage:
  workers: 4
  queue_size: 1024

# Key-gated public API
public:
  rate_limit_per_minute: 0   # per key, 0 disables
  cors_origins:
    - "*"

# Logging
logging:
  level: info    # debug, info, warn, error
  format: text   # text or json
`

func runConfigInit(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Set auth.jwt_secret, then run 'reelvault serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = "********"
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// ---------- config validate ----------

func newConfigValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file without starting the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "reelvault.yaml"
			if len(args) == 1 {
				path = args[0]
			} else if used := viper.ConfigFileUsed(); used != "" {
				path = used
			}
			if _, err := config.LoadAppConfig(path); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	}

	return cmd
}
