package cache

import (
	"tiercache/internal/common/errors"
	"tiercache/internal/config"
	"tiercache/internal/store"
	"tiercache/internal/store/postgres"
	"tiercache/internal/store/redis"
	"tiercache/internal/store/sqlite"
)

// NewFromConfig wires a full three-tier coordinator from environment
// configuration: a redis Tier 2 and the configured durable backend.
func NewFromConfig(cfg *config.Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError(err.Error())
	}

	l2, err := redis.New(&redis.Config{
		Address:    cfg.RedisAddress,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		PoolSize:   cfg.RedisPoolSize,
		KeyPrefix:  cfg.KeyPrefix,
		DefaultTTL: cfg.L2DefaultTTL,
	})
	if err != nil {
		return nil, errors.ConnectionError("failed to connect networked tier", err)
	}

	l3, err := store.Create(cfg.DurableType, durableConfig(cfg))
	if err != nil {
		return nil, errors.ConfigError("failed to create durable tier: " + err.Error())
	}

	return New(l2, l3, Options{
		L1MaxSize:          cfg.L1MaxSize,
		L1MaxMemory:        cfg.L1MaxMemory,
		FailureThreshold:   cfg.FailureThreshold,
		BreakerCooldown:    cfg.BreakerCooldown,
		CallTimeout:        cfg.CallTimeout,
		CompressionMinSize: cfg.CompressionMinSize,
		MaxValueBytes:      cfg.MaxValueBytes,
	})
}

func durableConfig(cfg *config.Config) store.BackendConfig {
	switch cfg.DurableType {
	case "postgres":
		return &postgres.Config{
			DSN:        cfg.DurablePostgresDSN,
			DefaultTTL: cfg.L3DefaultTTL,
		}
	default:
		return &sqlite.Config{
			Path:       cfg.DurableSQLitePath,
			DefaultTTL: cfg.L3DefaultTTL,
		}
	}
}
