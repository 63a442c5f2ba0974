// Package cache implements the multi-tier cache coordinator: read-through
// with promotion across a local LRU (Tier 1), a networked cache (Tier 2)
// and a durable store (Tier 3), write-through with best-effort slower
// tiers, invalidation by key, tag or pattern, batch operations, warming
// and statistics.
//
// The coordinator favors availability over strict consistency: a degraded
// Tier 2 or Tier 3 shows up as increased latency or an error annotation on
// misses, never as a hard failure of the cache operation.
package cache

import (
	"context"
	stderrors "errors"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tiercache/internal/circuitbreaker"
	"tiercache/internal/common/errors"
	"tiercache/internal/common/logging"
	"tiercache/internal/compression"
	"tiercache/internal/entry"
	"tiercache/internal/local"
	"tiercache/internal/store"
)

const (
	// lastWrite records older than this are pruned; async tier writes
	// resolve well within it
	writeGuardRetention = 5 * time.Minute
	writeGuardSweep     = time.Minute
)

// Coordinator orchestrates the three cache tiers
type Coordinator struct {
	opts Options

	l1 *local.Cache
	l2 store.Store
	l3 store.DurableStore

	breakers  *circuitbreaker.Manager
	l2Breaker circuitbreaker.Breaker
	l3Breaker circuitbreaker.Breaker

	compressor compression.Compressor
	logger     logging.Logger

	sf singleflight.Group

	l2Stats tierCounters
	l3Stats tierCounters
	perf    perfCounters

	// lastWrite holds the time of the most recent explicit set/delete per
	// key. Promotion and async write-through compare against it so a
	// late-arriving write never resurrects a deleted or overwritten key.
	lastWriteMu sync.Mutex
	lastWrite   map[string]time.Time

	asyncWg sync.WaitGroup
	stop    chan struct{}

	warmMu sync.Mutex
	warmer *warmScheduler

	closeOnce sync.Once
	closeErr  error
}

// New creates a coordinator over the given tiers. Either remote tier may
// be nil, in which case the coordinator runs degraded on the tiers it has.
func New(l2 store.Store, l3 store.DurableStore, opts Options) (*Coordinator, error) {
	opts.fillDefaults()

	l1, err := local.New(opts.L1MaxSize, opts.L1MaxMemory)
	if err != nil {
		return nil, errors.ConfigError("invalid tier 1 capacity: " + err.Error())
	}

	compressor, err := compression.New(opts.Compression)
	if err != nil {
		return nil, errors.ConfigError("invalid compression config: " + err.Error())
	}

	c := &Coordinator{
		opts:       opts,
		l1:         l1,
		l2:         l2,
		l3:         l3,
		breakers:   circuitbreaker.NewManager(opts.Logger),
		compressor: compressor,
		logger:     opts.Logger,
		lastWrite:  make(map[string]time.Time),
		stop:       make(chan struct{}),
	}

	if l2 != nil {
		c.l2Breaker = c.breakers.GetOrCreate(l2.Name(), opts.breakerConfig())
	}
	if l3 != nil {
		c.l3Breaker = c.breakers.GetOrCreate(l3.Name(), opts.breakerConfig())
	}

	go c.writeGuardJanitor()

	return c, nil
}

// Get reads key through the tiers: Tier 1 first, then Tier 2 and Tier 3
// through their breakers, promoting hits upward. A Tier 3 call failure is
// surfaced on Result.Err so callers can tell a degraded cache from a miss.
func (c *Coordinator) Get(ctx context.Context, key string) Result {
	start := time.Now()
	defer func() { c.perf.recordGet(time.Since(start)) }()

	if err := validateKey(key); err != nil {
		return Result{Key: key, Source: SourceNone, Err: err}
	}

	if e, ok := c.l1.Get(key); ok {
		return Result{Key: key, Value: e.Value, Hit: true, Source: SourceL1}
	}

	readAt := time.Now()

	if c.l2 != nil {
		if res, ok := c.getFromL2(ctx, key, readAt); ok {
			return res
		}
	}

	if c.l3 != nil {
		return c.getFromL3(ctx, key, readAt)
	}

	return Result{Key: key, Source: SourceNone}
}

func (c *Coordinator) getFromL2(ctx context.Context, key string, readAt time.Time) (Result, bool) {
	var (
		e     *entry.Entry
		found bool
	)
	err := c.callTier(ctx, c.l2Breaker, func(ctx context.Context) error {
		var callErr error
		e, found, callErr = c.l2.Get(ctx, key)
		return callErr
	})

	switch {
	case err != nil:
		if !stderrors.Is(err, circuitbreaker.ErrOpen) {
			c.l2Stats.miss()
		}
		c.logger.Warn("tier 2 read failed, falling through",
			logging.String("key", key), logging.Err(err))
	case found:
		c.l2Stats.hit()
		value, decErr := c.decodePayload(e.Value)
		if decErr != nil {
			c.logger.Warn("tier 2 payload corrupt, falling through",
				logging.String("key", key), logging.Err(decErr))
			return Result{}, false
		}
		c.promoteToL1(e, value, readAt)
		return Result{Key: key, Value: value, Hit: true, Source: SourceL2}, true
	default:
		c.l2Stats.miss()
	}

	return Result{}, false
}

func (c *Coordinator) getFromL3(ctx context.Context, key string, readAt time.Time) Result {
	var (
		e     *entry.Entry
		found bool
	)
	err := c.callTier(ctx, c.l3Breaker, func(ctx context.Context) error {
		var callErr error
		e, found, callErr = c.l3.Get(ctx, key)
		return callErr
	})

	switch {
	case err != nil:
		// The durable tier is the source of truth; if its call failed we
		// cannot distinguish a miss from lost data, so annotate the result.
		if !stderrors.Is(err, circuitbreaker.ErrOpen) {
			c.l3Stats.miss()
		}
		c.logger.Warn("tier 3 read failed",
			logging.String("key", key), logging.Err(err))
		return Result{Key: key, Source: SourceNone, Err: tierError("durable tier", err)}
	case found:
		c.l3Stats.hit()
		value, decErr := c.decodePayload(e.Value)
		if decErr != nil {
			c.logger.Warn("tier 3 payload corrupt",
				logging.String("key", key), logging.Err(decErr))
			return Result{Key: key, Source: SourceNone,
				Err: errors.InternalError("durable tier payload corrupt", decErr)}
		}
		c.promoteToL1(e, value, readAt)
		c.promoteToL2Async(e, readAt)
		return Result{Key: key, Value: value, Hit: true, Source: SourceL3}
	default:
		c.l3Stats.miss()
	}

	return Result{Key: key, Source: SourceNone}
}

// Set writes key synchronously into Tier 1 and asynchronously, best
// effort, into Tier 2 and Tier 3. A slower-tier failure never fails the
// set: Tier 1 holds the authoritative value for this process.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	start := time.Now()
	defer func() { c.perf.recordSet(time.Since(start)) }()

	if err := validateKey(key); err != nil {
		return err
	}
	if err := c.opts.validateValue(value); err != nil {
		return err
	}

	writeAt := c.markWrite(key)

	c.l1.Set(entry.New(key, value, opts.Tags, opts.TTL))

	encoded, err := c.encodePayload(value, opts.Compress)
	if err != nil {
		c.logger.Error("failed to encode payload, slower tiers skipped", err,
			logging.String("key", key))
		return nil
	}

	e := entry.New(key, encoded, opts.Tags, opts.TTL)
	c.asyncWg.Add(1)
	go c.writeThrough([]*entry.Entry{e}, map[string]time.Time{key: writeAt})

	return nil
}

// Delete removes key from all three tiers. Slower-tier failures are
// logged, not propagated: Tier 1, the tier this process reads first, is
// guaranteed cleared.
func (c *Coordinator) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	c.markWrite(key)
	c.l1.Delete(key)

	for _, tier := range c.remoteTiers() {
		if err := c.callTier(ctx, tier.breaker, func(ctx context.Context) error {
			return tier.store.Delete(ctx, key)
		}); err != nil {
			c.logger.Warn("tier delete failed",
				logging.String("tier", tier.store.Name()),
				logging.String("key", key), logging.Err(err))
		}
	}

	return nil
}

// DeleteByTags removes every entry carrying at least one of the tags:
// exact scan in Tier 1, adapter-side bulk deletes in Tier 2/3
func (c *Coordinator) DeleteByTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	c.l1.DeleteFunc(func(e *entry.Entry) bool {
		if e.HasAnyTag(tags) {
			c.markWrite(e.Key)
			return true
		}
		return false
	})

	for _, tier := range c.remoteTiers() {
		if err := c.callTier(ctx, tier.breaker, func(ctx context.Context) error {
			return tier.store.DeleteByTags(ctx, tags)
		}); err != nil {
			c.logger.Warn("tier tag invalidation failed",
				logging.String("tier", tier.store.Name()), logging.Err(err))
		}
	}

	return nil
}

// DeleteByPattern removes every entry whose key matches the glob pattern
func (c *Coordinator) DeleteByPattern(ctx context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return errors.ValidationError("invalid glob pattern: " + pattern)
	}

	c.l1.DeleteFunc(func(e *entry.Entry) bool {
		matched, _ := path.Match(pattern, e.Key)
		if matched {
			c.markWrite(e.Key)
		}
		return matched
	})

	for _, tier := range c.remoteTiers() {
		if err := c.callTier(ctx, tier.breaker, func(ctx context.Context) error {
			return tier.store.DeleteByPattern(ctx, pattern)
		}); err != nil {
			c.logger.Warn("tier pattern invalidation failed",
				logging.String("tier", tier.store.Name()), logging.Err(err))
		}
	}

	return nil
}

// MGet reads many keys with the same tiered semantics as Get, batching the
// Tier 2/3 round-trips. Results are positional with the input keys.
func (c *Coordinator) MGet(ctx context.Context, keys []string) []Result {
	start := time.Now()
	defer func() { c.perf.recordGet(time.Since(start)) }()

	results := make([]Result, len(keys))
	var pending []int

	for i, key := range keys {
		results[i] = Result{Key: key, Source: SourceNone}
		if err := validateKey(key); err != nil {
			results[i].Err = err
			continue
		}
		if e, ok := c.l1.Get(key); ok {
			results[i] = Result{Key: key, Value: e.Value, Hit: true, Source: SourceL1}
			continue
		}
		pending = append(pending, i)
	}

	readAt := time.Now()

	if c.l2 != nil && len(pending) > 0 {
		pending = c.batchFromTier(ctx, c.l2, c.l2Breaker, &c.l2Stats, SourceL2, keys, results, pending, readAt, false)
	}

	if c.l3 != nil && len(pending) > 0 {
		pending = c.batchFromTier(ctx, c.l3, c.l3Breaker, &c.l3Stats, SourceL3, keys, results, pending, readAt, true)
	}

	return results
}

// batchFromTier resolves pending indexes against one tier and returns the
// indexes still unresolved
func (c *Coordinator) batchFromTier(
	ctx context.Context,
	tier store.Store,
	breaker circuitbreaker.Breaker,
	counters *tierCounters,
	source Source,
	keys []string,
	results []Result,
	pending []int,
	readAt time.Time,
	annotateFailure bool,
) []int {
	lookup := make([]string, len(pending))
	for i, idx := range pending {
		lookup[i] = keys[idx]
	}

	var batch []store.Result
	err := c.callTier(ctx, breaker, func(ctx context.Context) error {
		var callErr error
		batch, callErr = tier.MGet(ctx, lookup)
		return callErr
	})
	if err != nil {
		c.logger.Warn("tier batch read failed",
			logging.String("tier", tier.Name()), logging.Err(err))
		if annotateFailure {
			for _, idx := range pending {
				results[idx].Err = tierError("durable tier", err)
			}
		}
		return pending
	}

	var still []int
	var promoted []*entry.Entry
	for i, idx := range pending {
		res := batch[i]
		if !res.Found || res.Entry == nil {
			counters.miss()
			still = append(still, idx)
			continue
		}

		counters.hit()
		value, decErr := c.decodePayload(res.Entry.Value)
		if decErr != nil {
			c.logger.Warn("tier payload corrupt",
				logging.String("tier", tier.Name()),
				logging.String("key", keys[idx]), logging.Err(decErr))
			still = append(still, idx)
			continue
		}

		c.promoteToL1(res.Entry, value, readAt)
		if source == SourceL3 {
			promoted = append(promoted, res.Entry)
		}
		results[idx] = Result{Key: keys[idx], Value: value, Hit: true, Source: source}
	}

	if c.l2 != nil && len(promoted) > 0 {
		c.promoteBatchToL2Async(promoted, readAt)
	}

	return still
}

// MSet writes many entries: Tier 1 individually (cheap), Tier 2/3 through
// their batch primitives, asynchronously and best-effort per key
func (c *Coordinator) MSet(ctx context.Context, items []Item, opts SetOptions) error {
	start := time.Now()
	defer func() { c.perf.recordSet(time.Since(start)) }()

	for _, item := range items {
		if err := validateKey(item.Key); err != nil {
			return err
		}
		if err := c.opts.validateValue(item.Value); err != nil {
			return err
		}
	}

	writeAts := make(map[string]time.Time, len(items))
	encoded := make([]*entry.Entry, 0, len(items))

	for _, item := range items {
		tags := item.Tags
		if len(tags) == 0 {
			tags = opts.Tags
		}

		writeAts[item.Key] = c.markWrite(item.Key)
		c.l1.Set(entry.New(item.Key, item.Value, tags, opts.TTL))

		payload, err := c.encodePayload(item.Value, opts.Compress)
		if err != nil {
			c.logger.Error("failed to encode payload, slower tiers skipped", err,
				logging.String("key", item.Key))
			continue
		}
		encoded = append(encoded, entry.New(item.Key, payload, tags, opts.TTL))
	}

	if len(encoded) > 0 {
		c.asyncWg.Add(1)
		go c.writeThrough(encoded, writeAts)
	}

	return nil
}

// GetOrCompute returns the cached value for key, or runs compute on a
// miss and stores its result across all tiers. Concurrent callers for the
// same uncached key share one compute invocation. A computed value is
// returned with Hit=false: it did not come from the cache. Compute errors
// propagate; they mean no value could be produced at all.
func (c *Coordinator) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) ([]byte, error), opts SetOptions) Result {
	if err := validateKey(key); err != nil {
		return Result{Key: key, Source: SourceNone, Err: err}
	}

	res := c.Get(ctx, key)
	if res.Hit {
		return res
	}

	value, err, _ := c.sf.Do(key, func() (interface{}, error) {
		v, computeErr := compute(ctx)
		if computeErr != nil {
			return nil, computeErr
		}
		if setErr := c.Set(ctx, key, v, opts); setErr != nil {
			return nil, setErr
		}
		return v, nil
	})
	if err != nil {
		return Result{Key: key, Source: SourceNone, Err: err}
	}

	return Result{Key: key, Value: value.([]byte), Source: SourceNone}
}

// GetStatistics returns a per-tier snapshot. Counters never go negative
// and hit rates stay within [0,1].
func (c *Coordinator) GetStatistics() Statistics {
	return Statistics{
		L1:       c.l1.Stats(),
		L2:       c.l2Stats.snapshot(),
		L3:       c.l3Stats.snapshot(),
		Breakers: c.breakers.Stats(),
	}
}

// GetPerformanceMetrics returns running latency averages and the total
// operation count
func (c *Coordinator) GetPerformanceMetrics() PerformanceMetrics {
	return c.perf.snapshot()
}

// Health pings each remote tier directly, bypassing the breakers, and
// returns per-tier status keyed by adapter name
func (c *Coordinator) Health(ctx context.Context) map[string]error {
	status := make(map[string]error, 2)
	for _, tier := range c.remoteTiers() {
		tierCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		status[tier.store.Name()] = tier.store.Health(tierCtx)
		cancel()
	}
	return status
}

// Flush waits for in-flight asynchronous tier writes to settle
func (c *Coordinator) Flush() {
	c.asyncWg.Wait()
}

// Close stops background work, flushes pending writes and closes the
// remote tier adapters
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.StopWarming()
		close(c.stop)
		c.asyncWg.Wait()

		for _, tier := range c.remoteTiers() {
			if err := tier.store.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

type remoteTier struct {
	store   store.Store
	breaker circuitbreaker.Breaker
}

func (c *Coordinator) remoteTiers() []remoteTier {
	tiers := make([]remoteTier, 0, 2)
	if c.l2 != nil {
		tiers = append(tiers, remoteTier{c.l2, c.l2Breaker})
	}
	if c.l3 != nil {
		tiers = append(tiers, remoteTier{c.l3, c.l3Breaker})
	}
	return tiers
}

// callTier runs fn against a tier through its breaker under the
// configured timeout. Exceeding the timeout counts as a breaker failure,
// identical to a connection error.
func (c *Coordinator) callTier(ctx context.Context, breaker circuitbreaker.Breaker, fn func(context.Context) error) error {
	tierCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	return breaker.Execute(tierCtx, func() error {
		return fn(tierCtx)
	})
}

// markWrite records an explicit set/delete for key and returns the
// recorded time
func (c *Coordinator) markWrite(key string) time.Time {
	now := time.Now()
	c.lastWriteMu.Lock()
	c.lastWrite[key] = now
	c.lastWriteMu.Unlock()
	return now
}

// shouldApply reports whether a write that started at since may still be
// applied: it must not overtake a set/delete recorded after it
func (c *Coordinator) shouldApply(key string, since time.Time) bool {
	c.lastWriteMu.Lock()
	last, ok := c.lastWrite[key]
	c.lastWriteMu.Unlock()
	return !ok || !last.After(since)
}

// promoteToL1 copies a slower-tier hit into Tier 1 with its raw value,
// unless the key was explicitly written since the read began
func (c *Coordinator) promoteToL1(e *entry.Entry, value []byte, readAt time.Time) {
	if !c.shouldApply(e.Key, readAt) {
		return
	}
	c.l1.Set(rawEntry(e, value))
}

// promoteToL2Async writes a Tier 3 hit back into Tier 2 without blocking
// the caller's read
func (c *Coordinator) promoteToL2Async(e *entry.Entry, readAt time.Time) {
	if c.l2 == nil {
		return
	}
	c.promoteBatchToL2Async([]*entry.Entry{e}, readAt)
}

func (c *Coordinator) promoteBatchToL2Async(entries []*entry.Entry, readAt time.Time) {
	c.asyncWg.Add(1)
	go func() {
		defer c.asyncWg.Done()

		fresh := entries[:0]
		for _, e := range entries {
			if c.shouldApply(e.Key, readAt) {
				fresh = append(fresh, e)
			}
		}
		if len(fresh) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
		defer cancel()

		if err := c.l2Breaker.Execute(ctx, func() error {
			return c.l2.MSet(ctx, fresh)
		}); err != nil {
			c.logger.Debug("tier 2 write-back skipped",
				logging.Int("entries", len(fresh)), logging.Err(err))
		}
	}()
}

// writeThrough pushes encoded entries into Tier 2 and Tier 3, dropping any
// entry whose key saw a newer explicit write
func (c *Coordinator) writeThrough(entries []*entry.Entry, writeAts map[string]time.Time) {
	defer c.asyncWg.Done()

	fresh := entries[:0]
	for _, e := range entries {
		if c.shouldApply(e.Key, writeAts[e.Key]) {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return
	}

	for _, tier := range c.remoteTiers() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)

		err := tier.breaker.Execute(ctx, func() error {
			if len(fresh) == 1 {
				return tier.store.Set(ctx, fresh[0])
			}
			return tier.store.MSet(ctx, fresh)
		})
		cancel()

		if err != nil {
			c.logger.Warn("tier write failed",
				logging.String("tier", tier.store.Name()),
				logging.Int("entries", len(fresh)), logging.Err(err))
		}
	}
}

// writeGuardJanitor prunes stale lastWrite records so the guard map stays
// bounded by recent write traffic
func (c *Coordinator) writeGuardJanitor() {
	ticker := time.NewTicker(writeGuardSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-writeGuardRetention)
			c.lastWriteMu.Lock()
			for key, at := range c.lastWrite {
				if at.Before(cutoff) {
					delete(c.lastWrite, key)
				}
			}
			c.lastWriteMu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// rawEntry clones a slower-tier entry with its decoded value for Tier 1
func rawEntry(e *entry.Entry, value []byte) *entry.Entry {
	clone := entry.New(e.Key, value, e.Tags, 0)
	clone.CreatedAt = e.CreatedAt
	clone.ExpiresAt = e.ExpiresAt
	return clone
}

func tierError(tier string, err error) error {
	switch {
	case stderrors.Is(err, circuitbreaker.ErrOpen):
		return errors.UnavailableError(tier)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.TimeoutError(tier+" call", err)
	default:
		return errors.ConnectionError(tier+" call failed", err)
	}
}
