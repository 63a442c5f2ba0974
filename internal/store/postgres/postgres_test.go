package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiercache/internal/entry"
	"tiercache/internal/store"
)

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{DSN: "postgres://localhost/cache"}).Validate())
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	assert.True(t, store.DefaultRegistry.IsRegistered("postgres"))
}

// setupLiveStore connects to the database named by TIERCACHE_POSTGRES_DSN,
// skipping the test when none is configured.
func setupLiveStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TIERCACHE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TIERCACHE_POSTGRES_DSN not set; skipping live postgres tests")
	}

	s, err := New(&Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.Exec(`DELETE FROM cache_entries WHERE key LIKE 'pgtest:%'`)
		_ = s.Close()
	})

	return s
}

func TestLiveRoundTrip(t *testing.T) {
	s := setupLiveStore(t)
	ctx := context.Background()

	e := entry.New("pgtest:a", []byte(`{"x":1}`), []string{"pgtest"}, time.Minute)
	require.NoError(t, s.Set(ctx, e))

	got, found, err := s.Get(ctx, "pgtest:a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{"x":1}`), got.Value)

	require.NoError(t, s.Delete(ctx, "pgtest:a"))
	_, found, err = s.Get(ctx, "pgtest:a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLiveBatchAndInvalidation(t *testing.T) {
	s := setupLiveStore(t)
	ctx := context.Background()

	require.NoError(t, s.MSet(ctx, []*entry.Entry{
		entry.New("pgtest:b1", []byte("1"), []string{"pgtest"}, time.Minute),
		entry.New("pgtest:b2", []byte("2"), []string{"pgtest"}, time.Minute),
	}))

	results, err := s.MGet(ctx, []string{"pgtest:b1", "pgtest:missing", "pgtest:b2"})
	require.NoError(t, err)
	assert.True(t, results[0].Found)
	assert.False(t, results[1].Found)
	assert.True(t, results[2].Found)

	require.NoError(t, s.DeleteByPattern(ctx, "pgtest:b*"))
	results, err = s.MGet(ctx, []string{"pgtest:b1", "pgtest:b2"})
	require.NoError(t, err)
	assert.False(t, results[0].Found)
	assert.False(t, results[1].Found)
}
