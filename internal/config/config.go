package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Reindexer   ReindexerConfig   `mapstructure:"reindexer"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Payments    PaymentsConfig    `mapstructure:"payments"`
	TwoFactor   TwoFactorConfig   `mapstructure:"two_factor"`
	Health      HealthConfig      `mapstructure:"health"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host" validate:"required"`
	Port           int      `mapstructure:"port" validate:"required,min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// ReindexerConfig contains Reindexer database configuration
type ReindexerConfig struct {
	DSN            string `mapstructure:"dsn" validate:"required"`
	MaxConnections int    `mapstructure:"max_connections" validate:"min=1"`
}

// RedisConfig contains the analytics cache store connection settings
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" validate:"required"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db" validate:"min=0,max=15"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	PoolSize    int           `mapstructure:"pool_size" validate:"min=1"`
}

// CacheConfig contains cache configuration
type CacheConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	DefaultFreshnessHours float64       `mapstructure:"default_freshness_hours" validate:"gt=0"`
	SlowQueryThreshold    time.Duration `mapstructure:"slow_query_threshold" validate:"gt=0"`
	FeatureCacheTTL       time.Duration `mapstructure:"feature_cache_ttl" validate:"gt=0"`
}

// AuthConfig configures bearer token validation
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=16"`
	Issuer    string `mapstructure:"issuer" validate:"required"`
}

// PaymentsConfig configures the payment processor client
type PaymentsConfig struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required,url"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	BreakerThreshold float64       `mapstructure:"breaker_threshold" validate:"gt=0,lte=1"`
}

// TwoFactorConfig configures TOTP enrolment
type TwoFactorConfig struct {
	Issuer          string `mapstructure:"issuer" validate:"required"`
	BackupCodeCount int    `mapstructure:"backup_code_count" validate:"min=1,max=20"`
}

// HealthConfig contains health evaluation thresholds
type HealthConfig struct {
	ViewStaleAfter time.Duration `mapstructure:"view_stale_after" validate:"gt=0"`
	CheckInterval  time.Duration `mapstructure:"check_interval" validate:"gt=0"`
}

// ConcurrencyConfig contains concurrency settings
type ConcurrencyConfig struct {
	HTTPMaxWorkers   int `mapstructure:"http_max_workers" validate:"min=1"`
	EventWorkers     int `mapstructure:"event_workers" validate:"min=1"`
	EventQueueSize   int `mapstructure:"event_queue_size" validate:"min=1"`
	DBMaxConnections int `mapstructure:"db_max_connections" validate:"min=1"`
}

// Get returns the singleton configuration instance
func Get() *Config {
	once.Do(func() {
		if instance == nil {
			instance = &Config{}
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Load initializes and loads configuration from file and environment variables
func Load(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	cfg, err := read(configPath)
	if err != nil {
		return err
	}

	instance = cfg
	return nil
}

func read(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	setDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)

	viper.SetDefault("reindexer.dsn", "cproto://localhost:6534/lovedcrm")
	viper.SetDefault("reindexer.max_connections", 10)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.dial_timeout", 2*time.Second)
	viper.SetDefault("redis.pool_size", 20)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.default_freshness_hours", 1.0)
	viper.SetDefault("cache.slow_query_threshold", 500*time.Millisecond)
	viper.SetDefault("cache.feature_cache_ttl", time.Minute)

	viper.SetDefault("auth.jwt_secret", "change-me-in-production-please")
	viper.SetDefault("auth.issuer", "lovedcrm")

	viper.SetDefault("payments.base_url", "http://localhost:12111")
	viper.SetDefault("payments.timeout", 10*time.Second)
	viper.SetDefault("payments.breaker_threshold", 0.6)

	viper.SetDefault("two_factor.issuer", "LovedCRM")
	viper.SetDefault("two_factor.backup_code_count", 10)

	viper.SetDefault("health.view_stale_after", 2*time.Hour)
	viper.SetDefault("health.check_interval", 30*time.Second)

	viper.SetDefault("concurrency.http_max_workers", 100)
	viper.SetDefault("concurrency.event_workers", 2)
	viper.SetDefault("concurrency.event_queue_size", 256)
	viper.SetDefault("concurrency.db_max_connections", 10)
}

// bindEnvVars binds environment variables to viper keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.host", "APP_SERVER_HOST")
	viper.BindEnv("server.port", "APP_SERVER_PORT")

	viper.BindEnv("log.level", "APP_LOG_LEVEL")

	// Reindexer
	viper.BindEnv("reindexer.dsn", "APP_REINDEXER_DSN")
	viper.BindEnv("reindexer.max_connections", "APP_REINDEXER_MAX_CONNECTIONS")

	// Redis
	viper.BindEnv("redis.addr", "APP_REDIS_ADDR")
	viper.BindEnv("redis.password", "APP_REDIS_PASSWORD")
	viper.BindEnv("redis.db", "APP_REDIS_DB")

	// Cache
	viper.BindEnv("cache.enabled", "APP_CACHE_ENABLED")
	viper.BindEnv("cache.default_freshness_hours", "APP_CACHE_DEFAULT_FRESHNESS_HOURS")
	viper.BindEnv("cache.slow_query_threshold", "APP_CACHE_SLOW_QUERY_THRESHOLD")

	// Secrets
	viper.BindEnv("auth.jwt_secret", "APP_AUTH_JWT_SECRET")
	viper.BindEnv("payments.base_url", "APP_PAYMENTS_BASE_URL")
	viper.BindEnv("payments.api_key", "APP_PAYMENTS_API_KEY")

	// Concurrency
	viper.BindEnv("concurrency.http_max_workers", "APP_CONCURRENCY_HTTP_MAX_WORKERS")
	viper.BindEnv("concurrency.event_workers", "APP_CONCURRENCY_EVENT_WORKERS")
	viper.BindEnv("concurrency.db_max_connections", "APP_CONCURRENCY_DB_MAX_CONNECTIONS")
}

// validate runs the struct tag rules and the cross-field checks tags cannot express
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	if cfg.Concurrency.EventQueueSize < cfg.Concurrency.EventWorkers {
		return fmt.Errorf("concurrency.event_queue_size must be at least concurrency.event_workers")
	}

	return nil
}

// Reload reloads the configuration (thread-safe)
func Reload(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Reset instance to allow reload
	instance = nil
	once = sync.Once{}

	cfg, err := read(configPath)
	if err != nil {
		return err
	}
	instance = cfg
	return nil
}

// Watch re-reads the config file whenever it changes on disk. A reload that fails
// validation keeps the previous configuration and is reported through onChange.
func Watch(configPath string, onChange func(cfg *Config, err error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		mu.Lock()
		cfg, err := read(configPath)
		if err == nil {
			instance = cfg
		}
		current := instance
		mu.Unlock()

		if onChange != nil {
			onChange(current, err)
		}
	})
	viper.WatchConfig()
}
