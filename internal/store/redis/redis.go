// Package redis implements the Tier 2 adapter on top of a networked
// redis-compatible cache. Entries are stored as JSON blobs under a key
// prefix, with a tag index kept in redis sets so tag invalidation works
// server-side.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tiercache/internal/entry"
	"tiercache/internal/store"
)

// Config holds the connection settings for the networked tier
type Config struct {
	Address    string        `json:"address"`
	Password   string        `json:"password"`
	DB         int           `json:"db"`
	PoolSize   int           `json:"pool_size"`
	KeyPrefix  string        `json:"key_prefix"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// Store is the Tier 2 adapter
type Store struct {
	rdb    *redis.Client
	config *Config
}

// New connects to the networked cache and returns the Tier 2 adapter
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{rdb: rdb, config: config}, nil
}

// NewWithClient wraps an existing client, mainly for tests
func NewWithClient(rdb *redis.Client, config *Config) *Store {
	if config == nil {
		config = &Config{}
	}
	return &Store{rdb: rdb, config: config}
}

// Name identifies the backend
func (s *Store) Name() string { return "redis" }

func (s *Store) dataKey(key string) string {
	return s.config.KeyPrefix + key
}

func (s *Store) tagKey(tag string) string {
	return s.config.KeyPrefix + "tag:" + tag
}

func (s *Store) ttlFor(e *entry.Entry) time.Duration {
	if ttl := e.TTL(); ttl > 0 {
		return ttl
	}
	return s.config.DefaultTTL
}

// Get returns the entry for key. Entries whose recorded expiration has
// passed are deleted and reported as misses even if redis still holds them.
func (s *Store) Get(ctx context.Context, key string) (*entry.Entry, bool, error) {
	data, err := s.rdb.Get(ctx, s.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	e, err := decodeEntry(data)
	if err != nil {
		return nil, false, fmt.Errorf("redis entry for %q is corrupt: %w", key, err)
	}

	if e.IsExpired() {
		_ = s.rdb.Del(ctx, s.dataKey(key)).Err()
		return nil, false, nil
	}

	return e, true, nil
}

// Set stores the entry under its TTL and indexes its tags
func (s *Store) Set(ctx context.Context, e *entry.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.dataKey(e.Key), data, s.ttlFor(e))
	for _, tag := range e.Tags {
		pipe.SAdd(ctx, s.tagKey(tag), e.Key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes key; deleting an absent key is a no-op
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.dataKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// MGet fetches all keys in one round-trip, preserving input order
func (s *Store) MGet(ctx context.Context, keys []string) ([]store.Result, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	dataKeys := make([]string, len(keys))
	for i, key := range keys {
		dataKeys[i] = s.dataKey(key)
	}

	values, err := s.rdb.MGet(ctx, dataKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	results := make([]store.Result, len(keys))
	for i, raw := range values {
		if raw == nil {
			continue
		}

		str, ok := raw.(string)
		if !ok {
			results[i].Err = fmt.Errorf("unexpected redis value type %T", raw)
			continue
		}

		e, decErr := decodeEntry([]byte(str))
		if decErr != nil {
			results[i].Err = decErr
			continue
		}
		if e.IsExpired() {
			_ = s.rdb.Del(ctx, dataKeys[i]).Err()
			continue
		}

		results[i] = store.Result{Entry: e, Found: true}
	}

	return results, nil
}

// MSet stores entries through one pipeline, best-effort per key
func (s *Store) MSet(ctx context.Context, entries []*entry.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		pipe.Set(ctx, s.dataKey(e.Key), data, s.ttlFor(e))
		for _, tag := range e.Tags {
			pipe.SAdd(ctx, s.tagKey(tag), e.Key)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mset failed: %w", err)
	}
	return nil
}

// DeleteByPattern removes every key matching the glob pattern via SCAN
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := s.rdb.Scan(ctx, 0, s.dataKey(pattern), 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}

	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis pattern delete failed: %w", err)
		}
	}
	return nil
}

// DeleteByTags removes every key indexed under any of the tags, then the
// tag sets themselves. Stale index members are harmless: deleting an
// already-gone key is a no-op.
func (s *Store) DeleteByTags(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		members, err := s.rdb.SMembers(ctx, s.tagKey(tag)).Result()
		if err != nil {
			return fmt.Errorf("redis tag lookup failed: %w", err)
		}

		if len(members) > 0 {
			dataKeys := make([]string, len(members))
			for i, member := range members {
				dataKeys[i] = s.dataKey(member)
			}
			if err := s.rdb.Del(ctx, dataKeys...).Err(); err != nil {
				return fmt.Errorf("redis tag delete failed: %w", err)
			}
		}

		if err := s.rdb.Del(ctx, s.tagKey(tag)).Err(); err != nil {
			return fmt.Errorf("redis tag index delete failed: %w", err)
		}
	}
	return nil
}

// Health reports whether the networked cache is reachable
func (s *Store) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the client's connection pool
func (s *Store) Close() error {
	return s.rdb.Close()
}

func decodeEntry(data []byte) (*entry.Entry, error) {
	var e entry.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
