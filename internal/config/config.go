package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	StorageSQLite   = "sqlite"

	StrategyNormalized = "normalized"
	StrategyLegacy     = "legacy"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	// allowed browser origins of the presentation layer
	AllowedOrigins []string `toml:"allowed_origins"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// sync
	OwnerID            string `toml:"owner_id"`
	SyncStrategy       string `toml:"sync_strategy"`
	RemoteBackend      string `toml:"remote_backend"`
	LocalStorage       string `toml:"local_storage"`
	SQLitePath         string `toml:"sqlite_path"`
	RemoteTimeoutMs    int    `toml:"remote_timeout_ms"`
	ReconcileEveryMs   int    `toml:"reconcile_every_ms"`
	MaxPendingAgeHours int    `toml:"max_pending_age_hours"`
	HydrateOnStart     bool   `toml:"hydrate_on_start"`

	// analytics
	TimesPerWeek    int     `toml:"times_per_week"`
	DailyBudget     float64 `toml:"daily_budget"`
	DefinitionsPath string  `toml:"definitions_path"`
	Timezone        string  `toml:"timezone"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	PostgresUser   string `toml:"postgres_user"`
	PostgresConns  int32  `toml:"postgres_max_conns"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	MutationsRateLimitPerMin int `toml:"mutations_rate_limit_per_min"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML file at path and returns the validated config of env.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config [%s]: %w", path, err)
	}
	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no [%s] section in %s", env, path)
	}
	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SyncStrategy == "" {
		c.SyncStrategy = StrategyNormalized
	}
	if c.RemoteBackend == "" {
		c.RemoteBackend = BackendMemory
	}
	if c.LocalStorage == "" {
		c.LocalStorage = BackendMemory
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return errors.New("owner_id is required")
	}
	switch c.SyncStrategy {
	case StrategyNormalized, StrategyLegacy:
	default:
		return fmt.Errorf("unknown sync_strategy: %s", c.SyncStrategy)
	}
	switch c.RemoteBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown remote_backend: %s", c.RemoteBackend)
	}
	switch c.LocalStorage {
	case StorageSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required with sqlite local storage")
		}
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown local_storage: %s", c.LocalStorage)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMs) * time.Millisecond
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileEveryMs) * time.Millisecond
}

func (c *Config) MaxPendingAge() time.Duration {
	return time.Duration(c.MaxPendingAgeHours) * time.Hour
}

// Location is the timezone date keys are computed in; the host's by default.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
