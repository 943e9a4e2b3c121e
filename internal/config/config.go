package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Presence broadcast policies
const (
	PresencePolicyFriends = "friends"
	PresencePolicyGlobal  = "global"
)

// Config holds all runtime configuration for the API server
type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret []byte
	TokenTTL  time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Redis (relay + rate limiting)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Real-time
	PresencePolicy         string
	NotifyWorkers          int
	NotifyQueueSize        int
	WSMaxMessagesPerSecond int
	WSBurst                int
	AllowedOrigins         []string

	// NotificationRetention is how long read notifications are kept; 0 keeps them forever
	NotificationRetention time.Duration

	// Tracing
	OTELEnabled      bool
	OTELEndpoint     string
	OTELSamplingRate float64

	// Offline email notifications (SES)
	SESRegion     string
	EmailFrom     string
	EmailFromName string
	AppBaseURL    string
}

// Load reads configuration from environment variables.
// JWT_SECRET is required; everything else has a development default.
func Load() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	policy := strings.ToLower(getEnvOrDefault("PRESENCE_POLICY", PresencePolicyFriends))
	if policy != PresencePolicyFriends && policy != PresencePolicyGlobal {
		return nil, fmt.Errorf("PRESENCE_POLICY must be %q or %q, got %q", PresencePolicyFriends, PresencePolicyGlobal, policy)
	}

	ttl, err := time.ParseDuration(getEnvOrDefault("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	retention, err := time.ParseDuration(getEnvOrDefault("NOTIFICATION_RETENTION", "2160h"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_RETENTION: %w", err)
	}

	cfg := &Config{
		Port:                   getEnvOrDefault("PORT", "8787"),
		Environment:            getEnvOrDefault("ENVIRONMENT", "development"),
		DatabaseURL:            DatabaseURL(),
		JWTSecret:              []byte(secret),
		TokenTTL:               ttl,
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:                getEnvOrDefault("LOG_FILE", "server.log"),
		RedisEnabled:           getEnvBool("REDIS_ENABLED", false),
		RedisHost:              getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:              getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		PresencePolicy:         policy,
		NotifyWorkers:          getEnvInt("NOTIFY_WORKERS", 4),
		NotifyQueueSize:        getEnvInt("NOTIFY_QUEUE_SIZE", 1024),
		WSMaxMessagesPerSecond: getEnvInt("WS_MAX_MESSAGES_PER_SECOND", 10),
		WSBurst:                getEnvInt("WS_BURST", 20),
		AllowedOrigins:         splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
		NotificationRetention:  retention,
		OTELEnabled:            getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:           getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELSamplingRate:       getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		SESRegion:              os.Getenv("SES_REGION"),
		EmailFrom:              os.Getenv("EMAIL_FROM"),
		EmailFromName:          getEnvOrDefault("EMAIL_FROM_NAME", "Kinfolk"),
		AppBaseURL:             getEnvOrDefault("APP_BASE_URL", "http://localhost:3000"),
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// EmailEnabled reports whether offline email notifications are configured
func (c *Config) EmailEnabled() bool {
	return c.SESRegion != "" && c.EmailFrom != ""
}

// DatabaseURL builds the DSN from DATABASE_URL or the individual DB_* variables
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "kinfolk")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
