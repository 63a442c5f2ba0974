// Package entry defines the cache entry value object shared by all tiers.
package entry

import (
	"time"
)

// Entry is a single cached value with its metadata. Entries are created and
// mutated only by the coordinator; tier adapters treat them as opaque storage.
type Entry struct {
	Key       string     `json:"key"`
	Value     []byte     `json:"value"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	SizeBytes int        `json:"size_bytes"`
}

// New creates an entry with the given TTL. A non-positive TTL means the
// entry never expires.
func New(key string, value []byte, tags []string, ttl time.Duration) *Entry {
	now := time.Now()
	e := &Entry{
		Key:       key,
		Value:     value,
		Tags:      tags,
		CreatedAt: now,
		SizeBytes: len(value),
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		e.ExpiresAt = &expires
	}
	return e
}

// IsExpired reports whether the entry's expiration time has passed
func (e *Entry) IsExpired() bool {
	return e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt)
}

// TTL returns the remaining time to live, or zero when the entry has no
// expiration or has already expired
func (e *Entry) TTL() time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(*e.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasTag reports whether the entry carries the given tag
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the entry carries at least one of the given tags
func (e *Entry) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if e.HasTag(tag) {
			return true
		}
	}
	return false
}
