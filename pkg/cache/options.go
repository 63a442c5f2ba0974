package cache

import (
	"time"

	"tiercache/internal/circuitbreaker"
	"tiercache/internal/common/errors"
	"tiercache/internal/common/logging"
	"tiercache/internal/compression"
)

// Options configures the coordinator at construction time
type Options struct {
	// L1MaxSize is the Tier 1 entry ceiling
	L1MaxSize int
	// L1MaxMemory feeds the Tier 1 memory gauge
	L1MaxMemory int64

	// FailureThreshold and BreakerCooldown configure the per-tier breakers
	FailureThreshold int
	BreakerCooldown  time.Duration

	// CallTimeout bounds every Tier 2/3 call; exceeding it counts as a
	// breaker failure
	CallTimeout time.Duration

	// CompressionMinSize is the payload size at which values written to
	// Tier 2/3 are compressed even without SetOptions.Compress
	CompressionMinSize int
	// MaxValueBytes rejects oversized values before any tier is touched
	MaxValueBytes int

	// Compression selects the algorithm for Tier 2/3 payloads
	Compression compression.Config

	Logger logging.Logger
}

// DefaultOptions returns the defaults the coordinator falls back to
func DefaultOptions() Options {
	return Options{
		L1MaxSize:          1000,
		L1MaxMemory:        64 << 20,
		FailureThreshold:   5,
		BreakerCooldown:    30 * time.Second,
		CallTimeout:        2 * time.Second,
		CompressionMinSize: compression.DefaultMinSize,
		MaxValueBytes:      1 << 20,
		Compression:        compression.NewDefaultConfig(),
	}
}

func (o *Options) fillDefaults() {
	defaults := DefaultOptions()
	if o.L1MaxSize <= 0 {
		o.L1MaxSize = defaults.L1MaxSize
	}
	if o.L1MaxMemory <= 0 {
		o.L1MaxMemory = defaults.L1MaxMemory
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = defaults.FailureThreshold
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = defaults.BreakerCooldown
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaults.CallTimeout
	}
	if o.CompressionMinSize <= 0 {
		o.CompressionMinSize = defaults.CompressionMinSize
	}
	if o.MaxValueBytes <= 0 {
		o.MaxValueBytes = defaults.MaxValueBytes
	}
	if o.Compression.Algorithm == "" {
		o.Compression = defaults.Compression
	}
	if o.Logger == nil {
		o.Logger = logging.GetGlobalLogger()
	}
}

func (o Options) breakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: o.FailureThreshold,
		Cooldown:         o.BreakerCooldown,
	}
}

// SetOptions controls a single write
type SetOptions struct {
	// TTL overrides the tier default TTLs; zero keeps the defaults
	TTL time.Duration
	// Tags label the entry for tag invalidation
	Tags []string
	// Compress forces compression regardless of payload size
	Compress bool
}

// WarmOptions controls a WarmCache run
type WarmOptions struct {
	// Tags filters the durable candidate set; empty means all entries
	Tags []string
	// MaxEntries caps how many entries are loaded; values above the Tier 1
	// capacity are clamped to it
	MaxEntries int
}

func validateKey(key string) error {
	if key == "" {
		return errors.ValidationError("key must not be empty")
	}
	return nil
}

func (o Options) validateValue(value []byte) error {
	if len(value) > o.MaxValueBytes {
		return errors.ValidationError("value exceeds maximum size").
			WithContext("size", len(value)).
			WithContext("max", o.MaxValueBytes)
	}
	return nil
}
