// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config carries every tunable the core and its entrypoints read. All values
// come from CPC_* environment variables with local-development defaults.
type Config struct {
	DataDir     string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers string
	KafkaTopic   string
	KafkaAcks    string

	HTTPAddr string
	LogLevel string

	TimelineCacheTTLSeconds int
	TimelineCacheHead       int

	ThumbnailWorkers   int
	ThumbnailQueueSize int
}

// LoadConfig reads the environment.
func LoadConfig() *Config {
	return &Config{
		DataDir:     getEnv("CPC_DATA_DIR", "./data"),
		DatabaseURL: getEnv("CPC_DATABASE_URL", ""),

		RedisAddr:     getEnv("CPC_REDIS_ADDR", ""),
		RedisPassword: getEnv("CPC_REDIS_PASSWORD", ""),

		KafkaBrokers: getEnv("CPC_KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("CPC_KAFKA_TOPIC", "social-events"),
		KafkaAcks:    getEnv("CPC_KAFKA_ACKS", "all"),

		HTTPAddr: getEnv("CPC_HTTP_ADDR", "localhost:8090"),
		LogLevel: getEnv("CPC_LOG_LEVEL", "INFO"),

		TimelineCacheTTLSeconds: getEnvInt("CPC_TIMELINE_CACHE_TTL", 300),
		TimelineCacheHead:       getEnvInt("CPC_TIMELINE_CACHE_HEAD", 500),

		ThumbnailWorkers:   getEnvInt("CPC_THUMBNAIL_WORKERS", 2),
		ThumbnailQueueSize: getEnvInt("CPC_THUMBNAIL_QUEUE_SIZE", 64),
	}
}

// Brokers splits the comma-separated broker list.
func (c *Config) Brokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

// UsePostgres reports whether the Postgres store backend is configured.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// UseRedis reports whether the Redis feed cache is configured.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}

// UseKafka reports whether the Kafka event publisher is configured.
func (c *Config) UseKafka() bool {
	return c.KafkaBrokers != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
