package local

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiercache/internal/entry"
)

func newTestCache(t *testing.T, maxEntries int) *Cache {
	t.Helper()
	c, err := New(maxEntries, 1<<20)
	require.NoError(t, err)
	return c
}

func set(c *Cache, key, value string) {
	c.Set(entry.New(key, []byte(value), nil, 0))
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t, 10)

	set(c, "a", "1")
	e, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), e.Value)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCapacityCeiling(t *testing.T) {
	c := newTestCache(t, 3)

	for i := 0; i < 10; i++ {
		set(c, fmt.Sprintf("k%d", i), "v")
	}

	assert.Equal(t, 3, c.Len())
	assert.ElementsMatch(t, []string{"k7", "k8", "k9"}, c.Keys())
	assert.Equal(t, int64(7), c.Stats().Evictions)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := newTestCache(t, 3)
	set(c, "a", "1")
	set(c, "b", "2")
	set(c, "c", "3")

	// Touch "a" so "b" becomes the LRU victim.
	_, ok := c.Get("a")
	require.True(t, ok)

	set(c, "d", "4")

	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
}

func TestReplaceDoesNotEvict(t *testing.T) {
	c := newTestCache(t, 2)
	set(c, "a", "1")
	set(c, "b", "2")

	set(c, "a", "updated")

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(0), c.Stats().Evictions)
	e, _ := c.Get("a")
	assert.Equal(t, []byte("updated"), e.Value)
}

func TestLazyExpiration(t *testing.T) {
	c := newTestCache(t, 10)
	c.Set(entry.New("short", []byte("v"), nil, 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	// The expired entry was removed by the read, not just skipped.
	assert.Equal(t, 0, c.Len())
}

func TestHasDoesNotTouchRecency(t *testing.T) {
	c := newTestCache(t, 2)
	set(c, "a", "1")
	set(c, "b", "2")

	// Peek must leave "a" as the eviction victim.
	require.True(t, c.Has("a"))
	set(c, "c", "3")

	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
}

func TestDelete(t *testing.T) {
	c := newTestCache(t, 10)
	set(c, "a", "1")

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"), "deleting a missing key is a no-op")
	assert.False(t, c.Has("a"))
}

func TestDeleteFunc(t *testing.T) {
	c := newTestCache(t, 10)
	c.Set(entry.New("e1", []byte("v"), []string{"estimates"}, 0))
	c.Set(entry.New("e2", []byte("v"), []string{"estimates", "archived"}, 0))
	c.Set(entry.New("c1", []byte("v"), []string{"customers"}, 0))

	removed := c.DeleteFunc(func(e *entry.Entry) bool {
		return e.HasTag("estimates")
	})

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Has("c1"))
}

func TestClear(t *testing.T) {
	c := newTestCache(t, 10)
	set(c, "a", "1")
	set(c, "b", "2")

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Memory.Used)
}

func TestStats(t *testing.T) {
	c := newTestCache(t, 10)
	set(c, "a", "abc")

	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.GreaterOrEqual(t, stats.HitRate, 0.0)
	assert.LessOrEqual(t, stats.HitRate, 1.0)
	assert.Equal(t, int64(3), stats.Memory.Used)
	assert.Equal(t, int64(1<<20), stats.Memory.Total)
	assert.Equal(t, int64(1<<20)-3, stats.Memory.Available)
}

func TestMemoryGaugeTracksReplaceAndEvict(t *testing.T) {
	c := newTestCache(t, 2)
	set(c, "a", "aaaa")
	set(c, "a", "aa")
	assert.Equal(t, int64(2), c.Stats().Memory.Used)

	set(c, "b", "bbb")
	set(c, "c", "cc") // evicts "a"
	assert.Equal(t, int64(5), c.Stats().Memory.Used)

	c.Delete("b")
	assert.Equal(t, int64(2), c.Stats().Memory.Used)
}

func TestZeroHitRateWithoutTraffic(t *testing.T) {
	c := newTestCache(t, 10)
	assert.Equal(t, 0.0, c.Stats().HitRate)
}
