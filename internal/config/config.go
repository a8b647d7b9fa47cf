package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/salon-voice-booking/internal/tzbridge"
)

// Config holds application configuration
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// Storage
	DatabaseURL      string
	UseMemoryStore   bool
	SeedFile         string
	DatabaseMaxConns int
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	BusinessCacheTTL time.Duration

	// Booking
	DefaultTimezone      string
	DefaultBusinessPhone string

	// Rate limiting on /voice/tools
	RateLimitRPS   float64
	RateLimitBurst int

	// CORSAllowedOrigins enables CORS for browser test consoles; "*" allows any origin.
	CORSAllowedOrigins []string

	// Booking events relay
	EventsQueueURL      string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		UseMemoryStore:   getEnvAsBool("USE_MEMORY_STORE", false),
		SeedFile:         getEnv("SEED_FILE", ""),
		DatabaseMaxConns: getEnvAsInt("DATABASE_MAX_CONNS", 10),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		BusinessCacheTTL: getEnvAsDuration("BUSINESS_CACHE_TTL", 5*time.Minute),

		DefaultTimezone:      getEnv("DEFAULT_TIMEZONE", "America/Los_Angeles"),
		DefaultBusinessPhone: strings.TrimSpace(getEnv("DEFAULT_BUSINESS_PHONE", "")),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:     getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := tzbridge.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE: %w", err))
	}
	if !c.UseMemoryStore && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required unless USE_MEMORY_STORE=true"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
