// Package sqlite implements the Tier 3 durable adapter on a SQLite table.
// The store is a plain table, not a cache-native engine: the adapter owns
// expiration, filtering out and deleting rows whose expires_at has passed.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tiercache/internal/entry"
	"tiercache/internal/store"
)

// Config holds the SQLite backend settings
type Config struct {
	Path       string        `json:"path"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// Validate checks the config
func (c *Config) Validate() error {
	if c == nil || c.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// Store is the SQLite-backed Tier 3 adapter
type Store struct {
	db     *sql.DB
	config *Config
}

func init() {
	store.Register("sqlite", func(config store.BackendConfig) (store.DurableStore, error) {
		sqliteConfig, ok := config.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for sqlite backend")
		}
		return New(sqliteConfig)
	})
}

// New opens the database and ensures the cache table exists
func New(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sqlite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, config: config}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			expires_at INTEGER,
			access_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_access_count ON cache_entries(access_count)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Name identifies the backend
func (s *Store) Name() string { return "sqlite" }

func (s *Store) expiresAtFor(e *entry.Entry) *int64 {
	if e.ExpiresAt != nil {
		ns := e.ExpiresAt.UnixNano()
		return &ns
	}
	if s.config.DefaultTTL > 0 {
		ns := time.Now().Add(s.config.DefaultTTL).UnixNano()
		return &ns
	}
	return nil
}

// Get returns the entry for key, deleting the row and reporting a miss when
// it is logically expired. Hits bump the access counter used by warming.
func (s *Store) Get(ctx context.Context, key string) (*entry.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, tags, created_at, expires_at FROM cache_entries WHERE key = ?`, key)

	e, expired, err := scanEntry(row, key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get failed: %w", err)
	}

	if expired {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		return nil, false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET access_count = access_count + 1 WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("sqlite access count update failed: %w", err)
	}

	return e, true, nil
}

// Set upserts the entry, preserving its historical access count
func (s *Store) Set(ctx context.Context, e *entry.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, tags, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			tags = excluded.tags,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		e.Key, e.Value, store.EncodeTags(e.Tags), e.CreatedAt.UnixNano(), s.expiresAtFor(e))
	if err != nil {
		return fmt.Errorf("sqlite set failed: %w", err)
	}
	return nil
}

// Delete removes key; deleting an absent key is a no-op
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete failed: %w", err)
	}
	return nil
}

// MGet fetches all keys in one query, preserving input order
func (s *Store) MGet(ctx context.Context, keys []string) ([]store.Result, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, tags, created_at, expires_at FROM cache_entries
		 WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite mget failed: %w", err)
	}
	defer rows.Close()

	byKey := make(map[string]*entry.Entry, len(keys))
	var expiredKeys []string
	now := time.Now().UnixNano()

	for rows.Next() {
		var (
			key       string
			value     []byte
			tags      string
			createdAt int64
			expiresAt sql.NullInt64
		)
		if err := rows.Scan(&key, &value, &tags, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("sqlite mget scan failed: %w", err)
		}

		if expiresAt.Valid && expiresAt.Int64 <= now {
			expiredKeys = append(expiredKeys, key)
			continue
		}
		byKey[key] = buildEntry(key, value, tags, createdAt, expiresAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite mget rows failed: %w", err)
	}

	for _, key := range expiredKeys {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	}

	results := make([]store.Result, len(keys))
	for i, key := range keys {
		if e, ok := byKey[key]; ok {
			results[i] = store.Result{Entry: e, Found: true}
		}
	}
	return results, nil
}

// MSet upserts entries inside one transaction, best-effort per key
func (s *Store) MSet(ctx context.Context, entries []*entry.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite mset begin failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (key, value, tags, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			tags = excluded.tags,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`)
	if err != nil {
		return fmt.Errorf("sqlite mset prepare failed: %w", err)
	}
	defer stmt.Close()

	var firstErr error
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.Key, e.Value, store.EncodeTags(e.Tags), e.CreatedAt.UnixNano(), s.expiresAtFor(e)); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite mset commit failed: %w", err)
	}
	if firstErr != nil {
		return fmt.Errorf("sqlite mset partial failure: %w", firstErr)
	}
	return nil
}

// DeleteByPattern removes every key matching the glob pattern
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key GLOB ?`, pattern); err != nil {
		return fmt.Errorf("sqlite pattern delete failed: %w", err)
	}
	return nil
}

// DeleteByTags removes every entry carrying at least one of the tags
func (s *Store) DeleteByTags(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE tags LIKE ?`, "%,"+tag+",%"); err != nil {
			return fmt.Errorf("sqlite tag delete failed: %w", err)
		}
	}
	return nil
}

// WarmCandidates returns unexpired entries matching any of the tags,
// hottest (highest access count) first
func (s *Store) WarmCandidates(ctx context.Context, tags []string, limit int) ([]*entry.Entry, error) {
	query := `SELECT key, value, tags, created_at, expires_at FROM cache_entries
		 WHERE (expires_at IS NULL OR expires_at > ?)`
	args := []interface{}{time.Now().UnixNano()}

	if len(tags) > 0 {
		conds := make([]string, len(tags))
		for i, tag := range tags {
			conds[i] = "tags LIKE ?"
			args = append(args, "%,"+tag+",%")
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}

	query += " ORDER BY access_count DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite warm query failed: %w", err)
	}
	defer rows.Close()

	var candidates []*entry.Entry
	for rows.Next() {
		var (
			key       string
			value     []byte
			tagsCol   string
			createdAt int64
			expiresAt sql.NullInt64
		)
		if err := rows.Scan(&key, &value, &tagsCol, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("sqlite warm scan failed: %w", err)
		}
		candidates = append(candidates, buildEntry(key, value, tagsCol, createdAt, expiresAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite warm rows failed: %w", err)
	}

	return candidates, nil
}

// Health reports whether the database is reachable
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEntry(row *sql.Row, key string) (*entry.Entry, bool, error) {
	var (
		value     []byte
		tags      string
		createdAt int64
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&value, &tags, &createdAt, &expiresAt); err != nil {
		return nil, false, err
	}

	if expiresAt.Valid && expiresAt.Int64 <= time.Now().UnixNano() {
		return nil, true, nil
	}

	return buildEntry(key, value, tags, createdAt, expiresAt), false, nil
}

func buildEntry(key string, value []byte, tags string, createdAt int64, expiresAt sql.NullInt64) *entry.Entry {
	e := &entry.Entry{
		Key:       key,
		Value:     value,
		Tags:      store.DecodeTags(tags),
		CreatedAt: time.Unix(0, createdAt),
		SizeBytes: len(value),
	}
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64)
		e.ExpiresAt = &t
	}
	return e
}
