package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("expected max_conns 15, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Auth.AccessTokenExpiry != 15*time.Minute {
		t.Errorf("expected access token expiry 15m, got %v", cfg.Auth.AccessTokenExpiry)
	}
	if cfg.Apply.MaxRetries != 3 {
		t.Errorf("expected apply retries 3, got %d", cfg.Apply.MaxRetries)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
postgres:
  max_conns: 20
logging:
  level: "debug"
apply:
  max_retries: 5
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("expected max_conns 20, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Apply.MaxRetries != 5 {
		t.Errorf("expected apply retries 5, got %d", cfg.Apply.MaxRetries)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissingFileIsOK(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("METRICBOARD_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("METRICBOARD_RATE_RPS", "2.5")
	t.Setenv("METRICBOARD_AUTH_ENABLED", "false")
	t.Setenv("METRICBOARD_CACHE_TTL", "30s")

	cfg := Defaults()
	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://env/db" {
		t.Errorf("expected env DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Rate.RequestsPerSecond != 2.5 {
		t.Errorf("expected rps 2.5, got %v", cfg.Rate.RequestsPerSecond)
	}
	if cfg.Auth.Enabled {
		t.Error("expected auth disabled")
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("expected cache ttl 30s, got %v", cfg.Cache.TTL)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.Enabled = false
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults with auth disabled should validate: %v", err)
	}

	cfg = Defaults()
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error: auth enabled without jwt_secret")
	}

	cfg = Defaults()
	cfg.Auth.JWTSecret = "s"
	cfg.Server.Port = ""
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for empty port")
	}

	cfg = Defaults()
	cfg.Auth.JWTSecret = "s"
	cfg.Apply.MaxRetries = 0
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for zero apply retries")
	}
}
