// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/benvon/logstream/internal/validation"
)

// Event source kinds.
const (
	EventSourceNone     = "none"
	EventSourceRedis    = "redis"
	EventSourceRabbitMQ = "rabbitmq"
)

// Config holds application configuration
type Config struct {
	ServerPort         string `validate:"required,numeric"`
	ServerDebugMode    bool
	WebConfigFile      string
	EventSource        string `validate:"oneof=none redis rabbitmq"`
	RedisURL           string `validate:"required_if=EventSource redis,omitempty,url"`
	RedisChannelPrefix string
	RabbitMQURL        string `validate:"required_if=EventSource rabbitmq,omitempty,url"`
	RabbitMQExchange   string `validate:"required"`
	SSEHeartbeatSecs   int    `validate:"gt=0"`
	SSEBufferSize      int    `validate:"gt=0"`
	RateLimit          string `validate:"required"`
	MaxRequestBytes    int64  `validate:"gt=0"`
	EnableHSTS         bool
	OTELEnabled        bool
	OTELEndpoint       string `validate:"required_if=OTELEnabled true"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerDebugMode:    getEnvBool("SERVER_DEBUG_MODE", false),
		WebConfigFile:      getEnv("WEB_CONFIG_FILE", ""),
		EventSource:        getEnv("EVENT_SOURCE", EventSourceNone),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "logstream:"),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "logstream"),
		SSEHeartbeatSecs:   getEnvInt("SSE_HEARTBEAT_SECONDS", 30),
		SSEBufferSize:      getEnvInt("SSE_BUFFER_SIZE", 64),
		RateLimit:          getEnv("RATE_LIMIT", "100-S"),
		MaxRequestBytes:    int64(getEnvInt("MAX_REQUEST_BYTES", 1<<20)),
		EnableHSTS:         getEnvBool("ENABLE_HSTS", false),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := validation.Validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.ServerPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
