// Package config loads the process-wide configuration: defaults, an
// optional yaml file, and AGENT_ROUTER_ environment overrides. It is
// loaded once at startup; Reload re-reads on explicit signal.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RoutingConfig holds scoring and circuit breaker knobs
type RoutingConfig struct {
	CapacityDefault int           `mapstructure:"capacity_default"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds the per-agent circuit breaker parameters
type BreakerConfig struct {
	FailureThreshold        int `mapstructure:"failure_threshold"`
	RecoveryTimeoutMs       int `mapstructure:"recovery_timeout_ms"`
	HalfOpenSuccessRequired int `mapstructure:"half_open_success_required"`
}

// LearningConfig holds the learning engine parameters
type LearningConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	LearningRate        float64 `mapstructure:"learning_rate"`
	ExplorationRate     float64 `mapstructure:"exploration_rate"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MinimumSampleSize   int     `mapstructure:"minimum_sample_size"`
	PredictionThreshold float64 `mapstructure:"prediction_threshold"`
}

// LoopsConfig holds the background loop cadences, in seconds
type LoopsConfig struct {
	PerformanceRefreshSeconds int `mapstructure:"performance_refresh_seconds"`
	BreakerTransitionsSeconds int `mapstructure:"breaker_transitions_seconds"`
	SnapshotsSeconds          int `mapstructure:"snapshots_seconds"`
	SpecializationSeconds     int `mapstructure:"specialization_seconds"`
}

// DatabaseConfig holds the Postgres connection parameters
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Schema          string        `mapstructure:"schema"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the Postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// CacheConfig holds the Redis connection parameters
type CacheConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// APIConfig holds the HTTP server parameters
type APIConfig struct {
	ListenAddress  string        `mapstructure:"listen_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EnableCORS     bool          `mapstructure:"enable_cors"`
}

// ObservabilityConfig holds logging and tracing parameters
type ObservabilityConfig struct {
	LogLevel        string `mapstructure:"log_level"`
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	Environment     string `mapstructure:"environment"`
}

// Config holds the complete application configuration
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Routing       RoutingConfig       `mapstructure:"routing"`
	Learning      LearningConfig      `mapstructure:"learning"`
	Loops         LoopsConfig         `mapstructure:"loops"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// deprecatedKeys maps removed configuration keys to the replacement
// hint logged when they are still present.
var deprecatedKeys = map[string]string{
	"routing.load_capacity":        "routing.capacity_default",
	"learning.min_samples":         "learning.minimum_sample_size",
	"learning.success_probability": "learning.prediction_threshold",
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("AGENT_ROUTER_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("AGENT_ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is not required if environment variables are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	for key, replacement := range deprecatedKeys {
		if v.IsSet(key) {
			fmt.Fprintf(os.Stderr, "warning: config key %q is deprecated and ignored, use %q\n", key, replacement)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks configuration invariants that would otherwise surface
// as runtime misbehavior.
func (c *Config) Validate() error {
	if c.Routing.CapacityDefault <= 0 {
		return fmt.Errorf("routing.capacity_default must be positive, got %d", c.Routing.CapacityDefault)
	}
	if c.Routing.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("routing.breaker.failure_threshold must be positive, got %d", c.Routing.Breaker.FailureThreshold)
	}
	if c.Learning.LearningRate <= 0 || c.Learning.LearningRate > 1 {
		return fmt.Errorf("learning.learning_rate must be in (0,1], got %f", c.Learning.LearningRate)
	}
	if c.Learning.PredictionThreshold < 0 || c.Learning.PredictionThreshold > 1 {
		return fmt.Errorf("learning.prediction_threshold must be in [0,1], got %f", c.Learning.PredictionThreshold)
	}
	if c.Learning.MinimumSampleSize <= 0 {
		return fmt.Errorf("learning.minimum_sample_size must be positive, got %d", c.Learning.MinimumSampleSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.request_timeout", 30*time.Second)
	v.SetDefault("api.enable_cors", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "agent_router")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.schema", "router")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.database", 0)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 10)

	v.SetDefault("routing.capacity_default", 10)
	v.SetDefault("routing.breaker.failure_threshold", 5)
	v.SetDefault("routing.breaker.recovery_timeout_ms", 60_000)
	v.SetDefault("routing.breaker.half_open_success_required", 3)

	v.SetDefault("learning.enabled", true)
	v.SetDefault("learning.learning_rate", 0.01)
	v.SetDefault("learning.exploration_rate", 0.1)
	v.SetDefault("learning.confidence_threshold", 0.8)
	v.SetDefault("learning.minimum_sample_size", 20)
	v.SetDefault("learning.prediction_threshold", 0.6)

	v.SetDefault("loops.performance_refresh_seconds", 300)
	v.SetDefault("loops.breaker_transitions_seconds", 30)
	v.SetDefault("loops.snapshots_seconds", 600)
	v.SetDefault("loops.specialization_seconds", 1800)

	v.SetDefault("observability.log_level", "INFO")
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.environment", "development")
}
