package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Scheduling engine
	IdempotencyBackend     string
	IdempotencyTTL         time.Duration
	IDMaxAttempts          int
	OverlapClusterMode     string
	MaxAppointmentsPerSlot int
	SeedSampleData         bool

	// Opt-in engine interceptors
	FaultInjectionRate float64
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration

	// HTTP
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// AWS collaborators
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventsQueueURL      string
	SnapshotBucket      string
	SnapshotInterval    time.Duration

	AuditEnabled bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		IdempotencyBackend:     strings.ToLower(strings.TrimSpace(getEnv("IDEMPOTENCY_BACKEND", "memory"))),
		IdempotencyTTL:         getEnvAsDuration("IDEMPOTENCY_TTL", 0),
		IDMaxAttempts:          getEnvAsInt("ID_MAX_ATTEMPTS", 10),
		OverlapClusterMode:     strings.ToLower(strings.TrimSpace(getEnv("OVERLAP_CLUSTER_MODE", "pairwise"))),
		MaxAppointmentsPerSlot: getEnvAsInt("MAX_APPOINTMENTS_PER_SLOT", 3),
		SeedSampleData:         getEnvAsBool("SEED_SAMPLE_DATA", false),

		FaultInjectionRate: getEnvAsFloat("FAULT_INJECTION_RATE", 0),
		RetryMaxAttempts:   getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     getEnvAsDuration("RETRY_BASE_DELAY", 100*time.Millisecond),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		SnapshotBucket:      getEnv("SNAPSHOT_BUCKET", ""),
		SnapshotInterval:    getEnvAsDuration("SNAPSHOT_INTERVAL", 5*time.Minute),

		AuditEnabled: getEnvAsBool("AUDIT_ENABLED", true),
	}
}

// UsesAWS reports whether any AWS-backed collaborator is configured.
func (c *Config) UsesAWS() bool {
	return c != nil && (c.EventsQueueURL != "" || c.SnapshotBucket != "")
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
