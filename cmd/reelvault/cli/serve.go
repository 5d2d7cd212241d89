package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/metrics"
	"github.com/reelvault/reelvault/internal/server"
	"github.com/reelvault/reelvault/internal/service"
)

const banner = `
 ___          _ __   __         _ _
| _ \___ ___ | |\ \ / /_ _ _  _| | |_
|   / -_) -_)| | \ V / _' | || | |  _|
|_|_\___\___||_|  \_/\__,_|\_,_|_|\__|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ReelVault API server",
		Long:  "Start the HTTP server that exposes the key-gated movie API and the admin system API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(cfg, os.Stderr, dev)
	ctx := context.Background()

	// 1. Open the store (SQLite, Postgres, or MySQL)
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()
	logger.Info("store initialized", "driver", store.Driver())

	// 2. Key-list cache (redis when configured)
	kc, err := openKeyCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer kc.Close()
	var cachePinger server.Pinger
	if kc.redis != nil {
		cachePinger = kc.redis
		logger.Info("key cache connected", "backend", "redis")
	}

	// 3. Services
	m := metrics.New("reelvault")
	keySvc := newKeyService(store, cfg, kc, m, logger)
	authSvc := newAuthService(store, cfg, logger)
	usage := service.NewUsageRecorder(store, service.UsageOptions{
		Workers:   cfg.Usage.Workers,
		QueueSize: cfg.Usage.QueueSize,
		Logger:    logger,
		Metrics:   m,
	})

	// 4. First run: no accounts yet
	count, err := store.CountUsers(ctx)
	if err != nil {
		logger.Warn("failed to count users", "error", err)
	}
	if count == 0 {
		logger.Warn("no admin account found - register via POST /api/v1/system/register or run: reelvault admin create")
	}

	// 5. Build and start HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.ShutdownTimeout = config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second)
	srvCfg.CORSOrigins = cfg.Public.CORSOrigins
	srvCfg.APIKeyHeader = cfg.Auth.APIKeyHeader
	srvCfg.PublicRateLimit = cfg.Public.RateLimitPerMinute
	srvCfg.Version = versionString()

	srv := server.New(srvCfg, server.Deps{
		Store:   store,
		Auth:    authSvc,
		Keys:    keySvc,
		Usage:   usage,
		Metrics: m,
		Cache:   cachePinger,
	}, logger)

	fmt.Printf("→ ReelVault %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Movies API: http://%s:%d/api/movies  (header %s)\n", cfg.Server.Host, cfg.Server.Port, cfg.Auth.APIKeyHeader)
	fmt.Printf("→ OpenAPI:    http://%s:%d/api/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
