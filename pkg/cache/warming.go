package cache

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"tiercache/internal/common/errors"
	"tiercache/internal/common/logging"
	"tiercache/internal/entry"
)

// WarmCache pre-loads Tier 1 (and, best effort, Tier 2) from the durable
// tier's most-accessed entries, optionally filtered by tags. Returns the
// number of entries loaded into Tier 1.
func (c *Coordinator) WarmCache(ctx context.Context, opts WarmOptions) (int, error) {
	if c.l3 == nil {
		return 0, errors.ConfigError("warming requires a durable tier")
	}

	limit := opts.MaxEntries
	if limit <= 0 || limit > c.l1.Capacity() {
		limit = c.l1.Capacity()
	}

	readAt := time.Now()

	var candidates []*entry.Entry
	err := c.callTier(ctx, c.l3Breaker, func(ctx context.Context) error {
		var callErr error
		candidates, callErr = c.l3.WarmCandidates(ctx, opts.Tags, limit)
		return callErr
	})
	if err != nil {
		return 0, tierError("durable tier", err)
	}

	loaded := 0
	l2Batch := make([]*entry.Entry, 0, len(candidates))
	for _, e := range candidates {
		value, decErr := c.decodePayload(e.Value)
		if decErr != nil {
			c.logger.Warn("skipping corrupt warm candidate",
				logging.String("key", e.Key), logging.Err(decErr))
			continue
		}
		if !c.shouldApply(e.Key, readAt) {
			continue
		}

		c.l1.Set(rawEntry(e, value))
		l2Batch = append(l2Batch, e)
		loaded++
	}

	if c.l2 != nil && len(l2Batch) > 0 {
		c.promoteBatchToL2Async(l2Batch, readAt)
	}

	c.logger.Info("cache warmed",
		logging.Int("loaded", loaded),
		logging.Int("candidates", len(candidates)))

	return loaded, nil
}

type warmScheduler struct {
	cron *cron.Cron
}

// StartWarming schedules WarmCache on a cron spec (standard five-field
// syntax). Repeated calls add schedules to the same runner; Close stops
// them all.
func (c *Coordinator) StartWarming(spec string, opts WarmOptions) error {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()

	if c.warmer == nil {
		c.warmer = &warmScheduler{cron: cron.New()}
		c.warmer.cron.Start()
	}

	_, err := c.warmer.cron.AddFunc(spec, func() {
		if _, warmErr := c.WarmCache(context.Background(), opts); warmErr != nil {
			c.logger.Warn("scheduled warming failed", logging.Err(warmErr))
		}
	})
	if err != nil {
		return errors.ConfigError("invalid warming schedule: " + err.Error())
	}

	c.logger.Info("warming scheduled", logging.String("schedule", spec))
	return nil
}

// StopWarming halts the warming scheduler if one is running
func (c *Coordinator) StopWarming() {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()

	if c.warmer != nil {
		c.warmer.cron.Stop()
		c.warmer = nil
	}
}
