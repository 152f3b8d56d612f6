// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure for the pipeline.
type Config struct {
	App         AppConfig         `koanf:"app"`
	Log         LogConfig         `koanf:"log"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Tracing     TracingConfig     `koanf:"tracing"`
	Warehouse   DatabaseConfig    `koanf:"warehouse"`
	Cache       CacheConfig       `koanf:"cache"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Audit       AuditConfig       `koanf:"audit"`
	Retry       RetryConfig       `koanf:"retry"`
	ObjectStore ObjectStoreConfig `koanf:"object_store"`
	Graph       GraphConfig       `koanf:"graph"`
	Harvester   HarvesterConfig   `koanf:"harvester"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
}

// AppConfig holds general process identification.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
	// Timezone is the zone schedules and "yesterday" partition derivation use.
	Timezone string `koanf:"timezone"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"` // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig is the Silver warehouse connection (Postgres + TimescaleDB/PostGIS).
type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	BatchSize       int           `koanf:"batch_size"`
}

// ConnString returns a libpq-style connection string, preferring an explicit DSN.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// CacheConfig controls the sensor-cursor cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	URI        string        `koanf:"uri"`
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// Address returns the cache server address, preferring an explicit URI.
func (c CacheConfig) Address() string {
	if c.URI != "" {
		return c.URI
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig controls the harvester's per-endpoint rate limiter.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig controls the run-history audit logger.
type AuditConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Backend     string        `koanf:"backend"` // stdout, file
	FilePath    string        `koanf:"file_path"`
	BufferSize  int           `koanf:"buffer_size"`
	FlushPeriod time.Duration `koanf:"flush_period"`
}

// RetryConfig is the default HTTP/store retry envelope.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	RateLimitBackoff  float64       `koanf:"rate_limit_backoff_multiplier"`
}

// ObjectStoreConfig is the Bronze S3-compatible object store.
type ObjectStoreConfig struct {
	Endpoint  string   `koanf:"endpoint"`
	AccessKey string   `koanf:"access_key"`
	SecretKey string   `koanf:"secret_key"`
	Region    string   `koanf:"region"`
	Buckets   []string `koanf:"buckets"`
	UsePathStyle bool  `koanf:"use_path_style"`
}

// GraphConfig is the Gold property-graph store (Neo4j).
type GraphConfig struct {
	URI      string `koanf:"uri"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// HarvesterConfig holds pipeline-wide HTTP harvester defaults.
type HarvesterConfig struct {
	DefaultTimeout       time.Duration `koanf:"default_timeout"`
	DefaultRetryBudget   int           `koanf:"default_retry_budget"`
	DefaultRateLimitWait time.Duration `koanf:"default_rate_limit_wait"`
	DefaultPageSize      int           `koanf:"default_page_size"`
	MaxPages             int           `koanf:"max_pages"`
	EndpointConcurrency  int           `koanf:"endpoint_concurrency"`
}

// SchedulerConfig holds asset/partition scheduler tuning.
type SchedulerConfig struct {
	MaxConcurrent     int           `koanf:"max_concurrent"`
	DefaultDeadline   time.Duration `koanf:"default_deadline"`
	SensorPollPeriod  time.Duration `koanf:"sensor_poll_period"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Scheduler.MaxConcurrent <= 0 {
		errs = append(errs, "scheduler.max_concurrent must be positive")
	}

	if c.Harvester.EndpointConcurrency <= 0 {
		errs = append(errs, "harvester.endpoint_concurrency must be positive")
	}

	if c.App.Timezone == "" {
		c.App.Timezone = "Europe/Paris"
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("app.timezone is invalid: %s", c.App.Timezone))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the process is running in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the process is running in a production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
