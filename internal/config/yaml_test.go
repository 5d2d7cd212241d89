package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reelvault.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigMergesDefaults(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "from-env")
	path := writeConfig(t, `
server:
  port: 9090
auth:
  jwt_secret: ${TEST_JWT_SECRET}
usage:
  workers: 8
`)

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host default lost: %q", cfg.Server.Host)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.APIKeyHeader != "X-API-Key" {
		t.Errorf("api_key_header default lost: %q", cfg.Auth.APIKeyHeader)
	}
	if cfg.Usage.Workers != 8 || cfg.Usage.QueueSize != 1024 {
		t.Errorf("usage = %+v", cfg.Usage)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"defaults", func(*AppConfig) {}, ""},
		{"postgres without dsn", func(c *AppConfig) { c.Store.Driver = DriverPostgres }, "store.dsn"},
		{"unknown driver", func(c *AppConfig) { c.Store.Driver = "oracle" }, "store.driver"},
		{"bad duration", func(c *AppConfig) { c.Cache.TTL = "soon" }, "cache.ttl"},
		{"empty header", func(c *AppConfig) { c.Auth.APIKeyHeader = "" }, "api_key_header"},
		{"no workers", func(c *AppConfig) { c.Usage.Workers = 0 }, "usage.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("90s", time.Second); got != 90*time.Second {
		t.Errorf("Duration(90s) = %v", got)
	}
	if got := Duration("", 5*time.Minute); got != 5*time.Minute {
		t.Errorf("Duration(empty) = %v", got)
	}
	if got := Duration("nope", time.Minute); got != time.Minute {
		t.Errorf("Duration(nope) = %v", got)
	}
}
