package cache

import (
	"go.uber.org/zap"

	"github.com/IvanBrykalov/imageloader/policy"
)

// EvictReason explains why an entry left the cache.
type EvictReason int

const (
	// EvictWatermark: dropped from the reuse pool to get back under the low watermark.
	EvictWatermark EvictReason = iota
	// EvictExplicit: removed from the displayed tier by Remove.
	EvictExplicit
	// EvictClear: dropped by Clear.
	EvictClear
)

func (r EvictReason) String() string {
	switch r {
	case EvictExplicit:
		return "explicit"
	case EvictClear:
		return "clear"
	default:
		return "watermark"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	ReuseHit()
	ReuseMiss()
	Evict(reason EvictReason)
	// Size reports tier sizes after every mutation.
	Size(displayed, pooled int, poolBytes int64)
}

// Default watermarks used when Options.HighWatermark is not positive.
const (
	DefaultHighWatermark int64 = 64 << 20
	DefaultLowWatermark  int64 = 48 << 20
)

// Options configures a Cache. Zero values are safe; defaults are applied in New():
//   - HighWatermark <= 0 => DefaultHighWatermark / DefaultLowWatermark
//   - nil Policy         => LRU
//   - nil CanReuse       => FlexibleReuse
//   - nil Metrics        => NoopMetrics
//   - nil Logger         => zap.NewNop()
type Options struct {
	// HighWatermark is the number of pool bytes above which eviction starts.
	HighWatermark int64
	// LowWatermark is the number of pool bytes eviction drains down to.
	// Must satisfy 0 <= LowWatermark <= HighWatermark.
	LowWatermark int64

	// Policy orders the reuse pool; nil => LRU.
	Policy policy.Policy

	// CanReuse is the buffer compatibility predicate used by GetReusable.
	CanReuse ReusePredicate

	// DisableReuseThrottle makes GetReusable scan on every call. By default a
	// scan is skipped while the pool is under the low watermark and the
	// previous scan found nothing.
	DisableReuseThrottle bool

	// OnEvict is called under the cache lock whenever an entry leaves the
	// cache for good; keep it lightweight. Use it to release platform resources.
	OnEvict func(key string, e *Entry, reason EvictReason)

	Metrics Metrics
	Logger  *zap.Logger
	// Verbose enables per-operation debug logging.
	Verbose bool
}
