// Package store defines the adapter contract shared by the networked
// (Tier 2) and durable (Tier 3) cache backends, plus the registry through
// which durable backends are selected at construction time.
package store

import (
	"context"

	"tiercache/internal/entry"
)

// Result is one positional outcome of a batch get
type Result struct {
	Entry *entry.Entry
	Found bool
	Err   error
}

// Store is the capability set the coordinator requires from a tier backend.
// Implementations never mutate entries; they are pure storage. The
// coordinator never assumes a call succeeds.
type Store interface {
	// Name identifies the backend in logs and breaker names
	Name() string

	// Get returns the entry for key. found=false with a nil error is a
	// plain miss; an error means the backend call itself failed.
	Get(ctx context.Context, key string) (*entry.Entry, bool, error)

	// Set stores the entry. Entries without an ExpiresAt get the
	// backend's configured default TTL.
	Set(ctx context.Context, e *entry.Entry) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// MGet returns one Result per key, in input order
	MGet(ctx context.Context, keys []string) ([]Result, error)

	// MSet stores entries best-effort per key; partial success is allowed
	MSet(ctx context.Context, entries []*entry.Entry) error

	// DeleteByPattern removes every key matching the glob pattern
	DeleteByPattern(ctx context.Context, pattern string) error

	// DeleteByTags removes every entry carrying at least one of the tags
	DeleteByTags(ctx context.Context, tags []string) error

	// Health reports whether the backend is reachable
	Health(ctx context.Context) error

	Close() error
}

// DurableStore is the Tier 3 contract. The durable tier is the source of
// truth for warming and additionally tracks per-entry access counts.
type DurableStore interface {
	Store

	// WarmCandidates returns unexpired entries matching any of the tags
	// (all entries when tags is empty), ordered by historical access
	// count descending, at most limit entries.
	WarmCandidates(ctx context.Context, tags []string, limit int) ([]*entry.Entry, error)
}
