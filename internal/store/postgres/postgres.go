// Package postgres implements the Tier 3 durable adapter on a PostgreSQL
// table, mirroring the sqlite backend's contract for deployments that
// already run postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tiercache/internal/entry"
	"tiercache/internal/store"
)

// Config holds the PostgreSQL backend settings
type Config struct {
	DSN        string        `json:"dsn"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// Validate checks the config
func (c *Config) Validate() error {
	if c == nil || c.DSN == "" {
		return fmt.Errorf("postgres DSN is required")
	}
	return nil
}

// Store is the PostgreSQL-backed Tier 3 adapter
type Store struct {
	db     *sql.DB
	config *Config
}

func init() {
	store.Register("postgres", func(config store.BackendConfig) (store.DurableStore, error) {
		pgConfig, ok := config.(*Config)
		if !ok {
			return nil, fmt.Errorf("invalid config type for postgres backend")
		}
		return New(pgConfig)
	})
}

// New connects to the database and ensures the cache table exists
func New(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	db, err := sql.Open("pgx", config.DSN)
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
			value BYTEA NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			expires_at BIGINT,
			access_count BIGINT NOT NULL DEFAULT 0
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
func (s *Store) Name() string { return "postgres" }

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
// it is logically expired
func (s *Store) Get(ctx context.Context, key string) (*entry.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, tags, created_at, expires_at FROM cache_entries WHERE key = $1`, key)

	var (
		value     []byte
		tags      string
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := row.Scan(&value, &tags, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres get failed: %w", err)
	}

	if expiresAt.Valid && expiresAt.Int64 <= time.Now().UnixNano() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
		return nil, false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET access_count = access_count + 1 WHERE key = $1`, key); err != nil {
		return nil, false, fmt.Errorf("postgres access count update failed: %w", err)
	}

	return buildEntry(key, value, tags, createdAt, expiresAt), true, nil
}

// Set upserts the entry, preserving its historical access count
func (s *Store) Set(ctx context.Context, e *entry.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, tags, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			tags = excluded.tags,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		e.Key, e.Value, store.EncodeTags(e.Tags), e.CreatedAt.UnixNano(), s.expiresAtFor(e))
	if err != nil {
		return fmt.Errorf("postgres set failed: %w", err)
	}
	return nil
}

// Delete removes key; deleting an absent key is a no-op
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres delete failed: %w", err)
	}
	return nil
}

// MGet fetches all keys in one query, preserving input order
func (s *Store) MGet(ctx context.Context, keys []string) ([]store.Result, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = key
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, tags, created_at, expires_at FROM cache_entries
		 WHERE key IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres mget failed: %w", err)
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
			return nil, fmt.Errorf("postgres mget scan failed: %w", err)
		}

		if expiresAt.Valid && expiresAt.Int64 <= now {
			expiredKeys = append(expiredKeys, key)
			continue
		}
		byKey[key] = buildEntry(key, value, tags, createdAt, expiresAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres mget rows failed: %w", err)
	}

	for _, key := range expiredKeys {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
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
		return fmt.Errorf("postgres mset begin failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (key, value, tags, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			tags = excluded.tags,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`)
	if err != nil {
		return fmt.Errorf("postgres mset prepare failed: %w", err)
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
		return fmt.Errorf("postgres mset commit failed: %w", err)
	}
	if firstErr != nil {
		return fmt.Errorf("postgres mset partial failure: %w", firstErr)
	}
	return nil
}

// DeleteByPattern removes every key matching the glob pattern
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE $1 ESCAPE '\'`, store.GlobToLike(pattern)); err != nil {
		return fmt.Errorf("postgres pattern delete failed: %w", err)
	}
	return nil
}

// DeleteByTags removes every entry carrying at least one of the tags
func (s *Store) DeleteByTags(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE tags LIKE $1`, "%,"+tag+",%"); err != nil {
			return fmt.Errorf("postgres tag delete failed: %w", err)
		}
	}
	return nil
}

// WarmCandidates returns unexpired entries matching any of the tags,
// hottest first
func (s *Store) WarmCandidates(ctx context.Context, tags []string, limit int) ([]*entry.Entry, error) {
	query := `SELECT key, value, tags, created_at, expires_at FROM cache_entries
		 WHERE (expires_at IS NULL OR expires_at > $1)`
	args := []interface{}{time.Now().UnixNano()}

	for _, tag := range tags {
		args = append(args, "%,"+tag+",%")
	}
	if len(tags) > 0 {
		conds := make([]string, len(tags))
		for i := range tags {
			conds[i] = fmt.Sprintf("tags LIKE $%d", i+2)
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}

	query += fmt.Sprintf(" ORDER BY access_count DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres warm query failed: %w", err)
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
			return nil, fmt.Errorf("postgres warm scan failed: %w", err)
		}
		candidates = append(candidates, buildEntry(key, value, tagsCol, createdAt, expiresAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres warm rows failed: %w", err)
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
