// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "HYDRO_"
	configEnvVar = "CONFIG_PATH"
)

// domainEnvVars maps the externally-documented environment variables onto
// their koanf key paths. These take priority over the generic HYDRO_ prefix
// form so that deployments can set a single WAREHOUSE_DSN etc. without
// knowing the internal config tree shape.
var domainEnvVars = map[string]string{
	"WAREHOUSE_DSN":  "warehouse.dsn",
	"GRAPH_URI":      "graph.uri",
	"GRAPH_USER":     "graph.user",
	"GRAPH_PASS":     "graph.password",
	"CACHE_URI":      "cache.uri",
	"OBJECT_ENDPOINT": "object_store.endpoint",
	"OBJECT_USER":    "object_store.access_key",
	"OBJECT_PASS":    "object_store.secret_key",
	"OBJECT_BUCKETS": "object_store.buckets",
	"RUN_TIMEZONE":   "app.timezone",
}

// Loader assembles a Config from layered sources: built-in defaults, an
// optional YAML file, and environment variables.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader constructs a Loader with the default search paths and env prefix.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/hydropipe/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithConfigPaths overrides the YAML file search paths.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load builds a Config with priority, lowest to highest:
//  1. built-in defaults
//  2. YAML config file
//  3. HYDRO_-prefixed environment variables
//  4. the documented single-purpose environment variables (WAREHOUSE_DSN, ...)
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	if err := l.loadDomainEnv(); err != nil {
		return nil, fmt.Errorf("failed to load domain env vars: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults seeds built-in defaults for every configuration key.
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "hydropipe",
		"app.version":     "0.1.0",
		"app.environment": "development",
		"app.debug":       false,
		"app.timezone":    "Europe/Paris",

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "hydropipe",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "hydropipe",
		"tracing.sample_rate":  0.1,

		// Warehouse (Silver)
		"warehouse.dsn":               "",
		"warehouse.driver":            "postgres",
		"warehouse.host":              "localhost",
		"warehouse.port":              5432,
		"warehouse.database":          "hydropipe",
		"warehouse.username":          "postgres",
		"warehouse.password":          "",
		"warehouse.ssl_mode":          "disable",
		"warehouse.max_open_conns":    25,
		"warehouse.max_idle_conns":    5,
		"warehouse.conn_max_lifetime": 5 * time.Minute,
		"warehouse.conn_max_idle_time": 5 * time.Minute,
		"warehouse.auto_migrate":      true,
		"warehouse.batch_size":        500,

		// Cache (sensor cursors)
		"cache.enabled":     true,
		"cache.driver":      "memory",
		"cache.uri":         "",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 15 * time.Minute,
		"cache.max_entries": 10000,

		// Rate limit (harvester, per-endpoint)
		"rate_limit.enabled":          true,
		"rate_limit.requests":         10,
		"rate_limit.window":           time.Second,
		"rate_limit.strategy":         "sliding_window",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       5,
		"rate_limit.cleanup_interval": 5 * time.Minute,

		// Audit (run-history)
		"audit.enabled":      true,
		"audit.backend":      "stdout",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		// Retry
		"retry.max_attempts":                 5,
		"retry.initial_backoff":              500 * time.Millisecond,
		"retry.max_backoff":                  30 * time.Second,
		"retry.backoff_multiplier":           2.0,
		"retry.rate_limit_backoff_multiplier": 1.5,

		// Object store (Bronze)
		"object_store.endpoint":       "localhost:9000",
		"object_store.access_key":     "",
		"object_store.secret_key":     "",
		"object_store.region":         "us-east-1",
		"object_store.buckets":        []string{"bronze"},
		"object_store.use_path_style": true,

		// Graph (Gold)
		"graph.uri":      "bolt://localhost:7687",
		"graph.user":     "neo4j",
		"graph.password": "",

		// Harvester
		"harvester.default_timeout":         30 * time.Second,
		"harvester.default_retry_budget":    5,
		"harvester.default_rate_limit_wait":  time.Second,
		"harvester.default_page_size":       1000,
		"harvester.max_pages":               10000,
		"harvester.endpoint_concurrency":    4,

		// Scheduler
		"scheduler.max_concurrent":      4,
		"scheduler.default_deadline":    15 * time.Minute,
		"scheduler.sensor_poll_period":  30 * time.Second,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile loads optional YAML overrides.
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv loads HYDRO_-prefixed environment variables, e.g.
// HYDRO_SCHEDULER_MAX_CONCURRENT -> scheduler.max_concurrent.
func (l *Loader) loadEnv() error {
	// Map every already-loaded key, with its underscores read as dots, back
	// to the key itself so multi-word leaves like max_concurrent resolve.
	known := make(map[string]string)
	for _, key := range l.k.Keys() {
		known[strings.ReplaceAll(key, "_", ".")] = key
	}
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		key := strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
		if original, ok := known[key]; ok {
			return original
		}
		return key
	}), nil)
}

// loadDomainEnv loads the documented single-purpose environment variables
// (WAREHOUSE_DSN, GRAPH_URI, ...) directly onto their koanf key paths. These
// take priority over the generic HYDRO_ prefix form.
func (l *Loader) loadDomainEnv() error {
	overrides := map[string]any{}
	for envVar, key := range domainEnvVars {
		val, ok := os.LookupEnv(envVar)
		if !ok {
			continue
		}
		if envVar == "OBJECT_BUCKETS" {
			overrides[key] = strings.Split(val, ",")
			continue
		}
		overrides[key] = val
	}

	if len(overrides) == 0 {
		return nil
	}

	return l.k.Load(confmap.Provider(overrides, "."), nil)
}

// MustLoad loads configuration or panics.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load is a convenience function using default search paths and env prefix.
func Load() (*Config, error) {
	return NewLoader().Load()
}
