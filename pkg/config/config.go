package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/digiklausur/data-gateway/pkg/auth"
	"github.com/digiklausur/data-gateway/pkg/observability"
	"github.com/digiklausur/data-gateway/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Gateway behavior
	Gateway GatewayConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps the accepted request body size.
	MaxBodyBytes int64
}

// GatewayConfig holds the request pipeline settings
type GatewayConfig struct {
	// PolicyFile is the path of the permission policy file. Empty means
	// the built-in default policy.
	PolicyFile string

	// WatchPolicy reloads the policy file on change.
	WatchPolicy bool

	// LegacyCredentials decides how user records without stored
	// credentials authenticate: "adopt" or "reject".
	LegacyCredentials auth.LegacyCredentialPolicy

	// Feature flags of the request pipeline.
	CourseScoping     bool
	AnswerAggregation bool
}

// RateLimitConfig holds the distributed rate limiter settings
type RateLimitConfig struct {
	Enabled       bool
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Limit requests per client per Window.
	Limit  int
	Window time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Gateway:       loadGatewayConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEWAY_HOST", "0.0.0.0"),
		Port:            getEnv("GATEWAY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEWAY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEWAY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEWAY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEWAY_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("GATEWAY_MAX_BODY_BYTES", 1<<20),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("GATEWAY_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}
	if mongoURI := getEnv("GATEWAY_MONGO_URI", ""); mongoURI != "" {
		cfg.MongoURI = mongoURI
	}
	if mongoDB := getEnv("GATEWAY_MONGO_DATABASE", ""); mongoDB != "" {
		cfg.MongoDatabase = mongoDB
	}
	if timeout := getEnvDuration("GATEWAY_MONGO_TIMEOUT", 0); timeout > 0 {
		cfg.MongoTimeout = timeout
	}

	return cfg
}

func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		PolicyFile:        getEnv("GATEWAY_POLICY_FILE", ""),
		WatchPolicy:       getEnvBool("GATEWAY_POLICY_WATCH", true),
		LegacyCredentials: auth.LegacyCredentialPolicy(getEnv("GATEWAY_LEGACY_CREDENTIALS", "adopt")),
		CourseScoping:     getEnvBool("GATEWAY_COURSE_SCOPING", true),
		AnswerAggregation: getEnvBool("GATEWAY_ANSWER_AGGREGATION", true),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       getEnvBool("GATEWAY_RATELIMIT_ENABLED", false),
		RedisURL:      getEnv("GATEWAY_REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("GATEWAY_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("GATEWAY_REDIS_DB", 0),
		Limit:         getEnvInt("GATEWAY_RATELIMIT_LIMIT", 120),
		Window:        getEnvDuration("GATEWAY_RATELIMIT_WINDOW", time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("GATEWAY_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GATEWAY_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body size must be positive")
	}

	switch c.Storage.Type {
	case "memory":
	case "mongo":
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for mongo storage")
		}
		if c.Storage.MongoDatabase == "" {
			return fmt.Errorf("mongo database is required for mongo storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or mongo)", c.Storage.Type)
	}

	switch c.Gateway.LegacyCredentials {
	case auth.LegacyAdopt, auth.LegacyReject:
	default:
		return fmt.Errorf("invalid legacy credential policy: %s (must be adopt or reject)", c.Gateway.LegacyCredentials)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RedisURL == "" {
			return fmt.Errorf("redis URL is required when rate limiting is enabled")
		}
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("rate limit must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
