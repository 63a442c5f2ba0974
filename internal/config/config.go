// Package config loads the cache engine's construction options from
// environment variables with sensible defaults.
//
// Environment Variables:
//
// Tier 1 (local):
//   - L1_MAX_SIZE: maximum number of Tier 1 entries (default: 1000)
//   - L1_MAX_MEMORY_BYTES: Tier 1 memory gauge total (default: 67108864)
//
// Tier 2 (networked cache):
//   - REDIS_ADDRESS: server address (default: localhost:6379)
//   - REDIS_PASSWORD: password
//   - REDIS_DB: database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: connection pool size (default: 10)
//   - L2_DEFAULT_TTL: default TTL for Tier 2 writes (default: 1h)
//
// Tier 3 (durable store):
//   - DURABLE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DURABLE_SQLITE_PATH: sqlite file path (default: ./tiercache.db)
//   - DURABLE_POSTGRES_DSN: postgres DSN (required for postgres)
//   - L3_DEFAULT_TTL: default TTL for Tier 3 writes (default: 24h)
//
// Resilience:
//   - BREAKER_FAILURE_THRESHOLD: consecutive failures before opening (default: 5)
//   - BREAKER_COOLDOWN: open-state cooldown (default: 30s)
//   - TIER_CALL_TIMEOUT: per-call timeout for Tier 2/3 (default: 2s)
//
// Payload handling:
//   - KEY_PREFIX: namespace prefix for Tier 2 keys (default: "tc:")
//   - COMPRESSION_MIN_SIZE: bytes above which values are compressed (default: 1024)
//   - MAX_VALUE_BYTES: reject values larger than this (default: 1048576)
//
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all construction options for the cache engine
type Config struct {
	// Tier 1
	L1MaxSize   int
	L1MaxMemory int64

	// Tier 2
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	L2DefaultTTL  time.Duration

	// Tier 3
	DurableType        string
	DurableSQLitePath  string
	DurablePostgresDSN string
	L3DefaultTTL       time.Duration

	// Resilience
	FailureThreshold int
	BreakerCooldown  time.Duration
	CallTimeout      time.Duration

	// Payload handling
	KeyPrefix          string
	CompressionMinSize int
	MaxValueBytes      int
}

// Load creates a Config with values from environment variables, falling
// back to defaults. Call Validate before use.
func Load() *Config {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	return &Config{
		L1MaxSize:   getEnvInt("L1_MAX_SIZE", 1000),
		L1MaxMemory: getEnvInt64("L1_MAX_MEMORY_BYTES", 64<<20),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		L2DefaultTTL:  getEnvDuration("L2_DEFAULT_TTL", time.Hour),

		DurableType:        getEnv("DURABLE_TYPE", "sqlite"),
		DurableSQLitePath:  getEnv("DURABLE_SQLITE_PATH", "./tiercache.db"),
		DurablePostgresDSN: getEnv("DURABLE_POSTGRES_DSN", ""),
		L3DefaultTTL:       getEnvDuration("L3_DEFAULT_TTL", 24*time.Hour),

		FailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCooldown:  getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),
		CallTimeout:      getEnvDuration("TIER_CALL_TIMEOUT", 2*time.Second),

		KeyPrefix:          getEnv("KEY_PREFIX", "tc:"),
		CompressionMinSize: getEnvInt("COMPRESSION_MIN_SIZE", 1024),
		MaxValueBytes:      getEnvInt("MAX_VALUE_BYTES", 1<<20),
	}
}

// Validate ensures the configuration can safely construct the engine
func (c *Config) Validate() error {
	if c.L1MaxSize <= 0 {
		return fmt.Errorf("L1_MAX_SIZE must be positive, got %d", c.L1MaxSize)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive, got %d", c.FailureThreshold)
	}
	if c.BreakerCooldown <= 0 {
		return fmt.Errorf("BREAKER_COOLDOWN must be positive, got %v", c.BreakerCooldown)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("TIER_CALL_TIMEOUT must be positive, got %v", c.CallTimeout)
	}
	if c.MaxValueBytes <= 0 {
		return fmt.Errorf("MAX_VALUE_BYTES must be positive, got %d", c.MaxValueBytes)
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.RedisDB)
	}

	switch c.DurableType {
	case "sqlite":
		if c.DurableSQLitePath == "" {
			return fmt.Errorf("DURABLE_SQLITE_PATH is required for the sqlite backend")
		}
	case "postgres":
		if c.DurablePostgresDSN == "" {
			return fmt.Errorf("DURABLE_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported DURABLE_TYPE: %s", c.DurableType)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
