package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "metricboard.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "METRICBOARD_PORT")
	setString(&cfg.Server.CORSOrigin, "METRICBOARD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "METRICBOARD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "METRICBOARD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "METRICBOARD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "METRICBOARD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "METRICBOARD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.Auth.Enabled, "METRICBOARD_AUTH_ENABLED")
	setString(&cfg.Auth.JWTSecret, "METRICBOARD_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenExpiry, "METRICBOARD_ACCESS_TOKEN_EXPIRY")
	setDuration(&cfg.Auth.RefreshTokenExpiry, "METRICBOARD_REFRESH_TOKEN_EXPIRY")
	setInt(&cfg.Auth.BcryptCost, "METRICBOARD_BCRYPT_COST")
	setString(&cfg.Logging.Level, "METRICBOARD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "METRICBOARD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "METRICBOARD_LOG_ASYNC")
	setFloat64(&cfg.Rate.RequestsPerSecond, "METRICBOARD_RATE_RPS")
	setInt(&cfg.Rate.Burst, "METRICBOARD_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "METRICBOARD_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "METRICBOARD_RATE_MAX_IDLE_TIME")
	setInt64(&cfg.Cache.MaxSizeMB, "METRICBOARD_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "METRICBOARD_CACHE_TTL")
	setInt(&cfg.Apply.MaxRetries, "METRICBOARD_APPLY_MAX_RETRIES")
	setString(&cfg.Otel.Endpoint, "METRICBOARD_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Apply.MaxRetries < 1 {
		return errors.New("apply.max_retries must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
