package cache

import (
	"context"
	"path"
	"sync"

	"tiercache/internal/entry"
	"tiercache/internal/store"
)

// mockStore is an in-memory tier adapter with call counting and failure
// injection, used to pin down the coordinator's tier interactions.
type mockStore struct {
	name string

	mu   sync.Mutex
	data map[string]*entry.Entry

	getCalls    int
	setCalls    int
	deleteCalls int

	failNext error // injected into every call while non-nil
}

func newMockStore(name string) *mockStore {
	return &mockStore{
		name: name,
		data: make(map[string]*entry.Entry),
	}
}

func (m *mockStore) fail(err error) { m.mu.Lock(); m.failNext = err; m.mu.Unlock() }
func (m *mockStore) restore()       { m.fail(nil) }

func (m *mockStore) calls() (g, s, d int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls, m.setCalls, m.deleteCalls
}

func (m *mockStore) seed(e *entry.Entry) {
	m.mu.Lock()
	m.data[e.Key] = e
	m.mu.Unlock()
}

func (m *mockStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *mockStore) payload(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[key]; ok {
		return e.Value
	}
	return nil
}

func (m *mockStore) Name() string { return m.name }

func (m *mockStore) Get(ctx context.Context, key string) (*entry.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.failNext != nil {
		return nil, false, m.failNext
	}
	e, ok := m.data[key]
	if !ok || e.IsExpired() {
		return nil, false, nil
	}
	return e, true, nil
}

func (m *mockStore) Set(ctx context.Context, e *entry.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setCalls++
	if m.failNext != nil {
		return m.failNext
	}
	m.data[e.Key] = e
	return nil
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls++
	if m.failNext != nil {
		return m.failNext
	}
	delete(m.data, key)
	return nil
}

func (m *mockStore) MGet(ctx context.Context, keys []string) ([]store.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.failNext != nil {
		return nil, m.failNext
	}
	results := make([]store.Result, len(keys))
	for i, key := range keys {
		if e, ok := m.data[key]; ok && !e.IsExpired() {
			results[i] = store.Result{Entry: e, Found: true}
		}
	}
	return results, nil
}

func (m *mockStore) MSet(ctx context.Context, entries []*entry.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setCalls++
	if m.failNext != nil {
		return m.failNext
	}
	for _, e := range entries {
		m.data[e.Key] = e
	}
	return nil
}

func (m *mockStore) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls++
	if m.failNext != nil {
		return m.failNext
	}
	for key := range m.data {
		if matched, _ := path.Match(pattern, key); matched {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *mockStore) DeleteByTags(ctx context.Context, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls++
	if m.failNext != nil {
		return m.failNext
	}
	for key, e := range m.data {
		if e.HasAnyTag(tags) {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *mockStore) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failNext
}

func (m *mockStore) Close() error { return nil }

// mockDurable adds the warming surface on top of mockStore
type mockDurable struct {
	*mockStore

	warmMu         sync.Mutex
	warmCandidates []*entry.Entry
	lastWarmLimit  int
}

func newMockDurable(name string) *mockDurable {
	return &mockDurable{mockStore: newMockStore(name)}
}

func (m *mockDurable) setWarmCandidates(entries []*entry.Entry) {
	m.warmMu.Lock()
	m.warmCandidates = entries
	m.warmMu.Unlock()
}

// WarmCandidates returns the pre-ordered candidate list filtered by tags
// and capped at limit, mirroring the real adapters' access_count ordering
func (m *mockDurable) WarmCandidates(ctx context.Context, tags []string, limit int) ([]*entry.Entry, error) {
	m.mu.Lock()
	failErr := m.failNext
	m.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}

	m.warmMu.Lock()
	defer m.warmMu.Unlock()

	m.lastWarmLimit = limit

	var out []*entry.Entry
	for _, e := range m.warmCandidates {
		if len(tags) > 0 && !e.HasAnyTag(tags) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var (
	_ store.Store        = (*mockStore)(nil)
	_ store.DurableStore = (*mockDurable)(nil)
)
