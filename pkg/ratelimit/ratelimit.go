package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Стандартные ошибки
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Limiter интерфейс ограничителя запросов
type Limiter interface {
	// Allow проверяет, разрешён ли запрос
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN проверяет, разрешены ли n запросов
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Wait блокирует до получения разрешения
	Wait(ctx context.Context, key string) error

	// Reset сбрасывает лимит для ключа
	Reset(ctx context.Context, key string) error

	// GetInfo возвращает информацию о текущем состоянии
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	// Close закрывает лимитер
	Close() error
}

// LimitInfo информация о состоянии лимита
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config конфигурация rate limiter
type Config struct {
	// Requests количество запросов
	Requests int `koanf:"requests"`

	// Window временное окно
	Window time.Duration `koanf:"window"`

	// Strategy стратегия (sliding_window, token_bucket; любое другое значение — sliding_window)
	Strategy string `koanf:"strategy"`

	// KeyFunc функция извлечения ключа (ip, user, method)
	KeyFunc string `koanf:"key_func"`

	// Backend хранилище (memory, redis)
	Backend string `koanf:"backend"`

	// BurstSize размер burst для token bucket
	BurstSize int `koanf:"burst_size"`

	// CleanupInterval интервал очистки для in-memory
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// Redis настройки Redis
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Requests:        100,
		Window:          time.Minute,
		Strategy:        "sliding_window",
		KeyFunc:         "ip",
		Backend:         "memory",
		BurstSize:       10,
		CleanupInterval: 5 * time.Minute,
	}
}

// New создаёт лимитер на основе конфигурации
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "redis":
		return NewRedisLimiter(cfg)
	case "memory", "":
		return NewMemoryLimiter(cfg), nil
	default:
		return NewMemoryLimiter(cfg), nil
	}
}

// KeyExtractor extracts the limiter key for one harvester call. endpoint is
// the registry endpoint name being fetched; metadata carries ancillary
// context such as the partition key.
type KeyExtractor func(ctx context.Context, endpoint string, metadata map[string]string) string

// EndpointKeyExtractor scopes the limiter budget to the endpoint name alone,
// matching the one-bucket-per-endpoint default described for the harvester.
func EndpointKeyExtractor(_ context.Context, endpoint string, _ map[string]string) string {
	return endpoint
}

// PartitionKeyExtractor scopes the limiter to one (endpoint, partition)
// pair, useful when a source throttles per reporting day rather than
// globally per endpoint.
func PartitionKeyExtractor(_ context.Context, endpoint string, metadata map[string]string) string {
	if partitionKey, ok := metadata["partition_key"]; ok && partitionKey != "" {
		return endpoint + ":" + partitionKey
	}
	return endpoint
}

// CompositeKeyExtractor chains multiple extractors into one colon-joined key.
func CompositeKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(ctx context.Context, endpoint string, metadata map[string]string) string {
		var key string
		for _, ext := range extractors {
			key += ext(ctx, endpoint, metadata) + ":"
		}
		return key
	}
}

// RateLimitedEndpoints holds a per-endpoint rate limit Config, falling back
// to a shared default for endpoints with no override.
type RateLimitedEndpoints struct {
	mu            sync.RWMutex
	endpoints     map[string]*Config
	defaultConfig *Config
}

// NewRateLimitedEndpoints creates an endpoint config registry.
func NewRateLimitedEndpoints(defaultCfg *Config) *RateLimitedEndpoints {
	if defaultCfg == nil {
		defaultCfg = DefaultConfig()
	}
	return &RateLimitedEndpoints{
		endpoints:     make(map[string]*Config),
		defaultConfig: defaultCfg,
	}
}

// Set installs a rate limit override for one endpoint.
func (r *RateLimitedEndpoints) Set(endpoint string, cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[endpoint] = cfg
}

// Get returns the endpoint's override, or the shared default if none is set.
func (r *RateLimitedEndpoints) Get(endpoint string) *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.endpoints[endpoint]; ok {
		return cfg
	}
	return r.defaultConfig
}
