package cache

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/imageloader/policy/lru"
)

// cache is the two-tier Cache implementation. One mutex guards both tiers,
// the byte budget and the counters; every operation is O(1) amortized except
// GetReusable's scan and Clear.
type cache struct {
	mu sync.Mutex

	// displayed holds entries bound to live targets. Never evicted.
	displayed map[string]*Entry
	// pool holds everything else and is the eviction and reuse source.
	pool *pool

	high, low int64

	// refillNeeded throttles reuse scans; see GetReusable.
	refillNeeded bool

	added, removed, evictions uint64
	hits, misses              uint64
	reuseHits, reuseMisses    uint64

	opt Options
	log *zap.Logger
}

// New constructs a Cache with the provided Options.
// It panics if the watermarks are inconsistent (negative or Low > High).
func New(opt Options) Cache {
	if opt.HighWatermark <= 0 {
		opt.HighWatermark = DefaultHighWatermark
		if opt.LowWatermark <= 0 || opt.LowWatermark > DefaultHighWatermark {
			opt.LowWatermark = DefaultLowWatermark
		}
	}
	if opt.LowWatermark < 0 || opt.LowWatermark > opt.HighWatermark {
		panic(fmt.Sprintf("cache: invalid watermarks low=%d high=%d", opt.LowWatermark, opt.HighWatermark))
	}
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}
	if opt.CanReuse == nil {
		opt.CanReuse = FlexibleReuse
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	return &cache{
		displayed:    make(map[string]*Entry),
		pool:         newPool(opt.Policy),
		high:         opt.HighWatermark,
		low:          opt.LowWatermark,
		refillNeeded: true,
		opt:          opt,
		log:          opt.Logger.Named("memory_cache"),
	}
}

// ---- Cache implementation ----

func (c *cache) Add(key string, e *Entry) {
	if key == "" {
		return
	}
	if !e.valid() {
		if c.opt.Verbose {
			c.log.Debug("refusing to cache invalid entry", zap.String("key", key))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.displayed[key]; ok {
		return
	}
	c.dropStaleLocked(key, e)

	if e.key != key {
		e.key = key
	}
	e.cached.Store(true)
	c.added++

	// An entry that is already on screen under another binding must not be
	// offered for reuse.
	if e.IsDisplayed() {
		c.displayed[key] = e
		c.reportSizeLocked()
		return
	}

	n := c.pool.add(key, e)
	c.refillNeeded = false
	c.enforceLocked(n)
	c.reportSizeLocked()
}

func (c *cache) Get(key string) (*Entry, bool) {
	if key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.displayed[key]; ok {
		c.pool.touch(key)
		c.hitLocked(key)
		return e, true
	}
	if n, ok := c.pool.touch(key); ok {
		c.hitLocked(key)
		return n.entry, true
	}
	c.misses++
	c.opt.Metrics.Miss()
	return nil, false
}

func (c *cache) Contains(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.displayed[key]; ok {
		return true
	}
	_, ok := c.pool.get(key)
	return ok
}

func (c *cache) Remove(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.removeDisplayedLocked(key)
	if ok {
		c.reportSizeLocked()
	}
	return ok
}

func (c *cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.displayed {
		c.removeDisplayedLocked(k)
	}
	for _, n := range c.pool.reset() {
		n.entry.cached.Store(false)
		c.notifyLocked(n.key, n.entry, EvictClear)
	}
	c.refillNeeded = true
	c.reportSizeLocked()
}

// GetReusable scans the pool from LRU to MRU for a buffer satisfying the
// reuse predicate. The scan is skipped while the pool is below the low
// watermark and the previous scan missed; any pool insertion re-arms it.
func (c *cache) GetReusable(req ReuseRequest) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opt.DisableReuseThrottle && c.pool.bytes < c.low && c.refillNeeded {
		c.reuseMissLocked()
		return nil, false
	}
	c.refillNeeded = false

	var found *node
	for n := c.pool.tail; n != nil; n = n.prev {
		b := n.entry.Buffer
		if b.Valid() && b.Mutable() && !n.entry.IsRetained() && c.opt.CanReuse(b, req) {
			found = n
			break
		}
	}
	if found == nil {
		c.reuseMissLocked()
		c.refillNeeded = true
		return nil, false
	}

	e := found.entry
	e.retained.Store(true)
	c.pool.remove(found.key)
	e.cached.Store(false)
	c.reuseHits++
	c.opt.Metrics.ReuseHit()
	if c.opt.Verbose {
		c.log.Debug("reusing pooled buffer",
			zap.String("key", found.key),
			zap.Int64("bytes", found.bytes),
		)
	}
	c.reportSizeLocked()
	return e, true
}

func (c *cache) OnEntryDisplayed(key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.displayed[key]; ok {
		e.displays.Add(1)
		return
	}
	n, ok := c.pool.get(key)
	if !ok {
		return
	}
	n.entry.displays.Add(1)
	c.promoteLocked(n)
	c.reportSizeLocked()
	if c.opt.Verbose {
		c.log.Debug("entry displayed", zap.String("key", key))
	}
}

func (c *cache) OnEntryHidden(key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.displayed[key]
	if !ok {
		return
	}
	if e.displays.Add(-1) > 0 {
		return
	}
	e.displays.Store(0)
	c.demoteLocked(key, e)
	c.reportSizeLocked()
	if c.opt.Verbose {
		c.log.Debug("entry no longer displayed", zap.String("key", key))
	}
}

func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.displayed) + c.pool.len
}

func (c *cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.bytes
}

func (c *cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Added:         c.added,
		Removed:       c.removed,
		Evictions:     c.evictions,
		Hits:          c.hits,
		Misses:        c.misses,
		ReuseHits:     c.reuseHits,
		ReuseMisses:   c.reuseMisses,
		Displayed:     len(c.displayed),
		Pooled:        c.pool.len,
		PoolBytes:     c.pool.bytes,
		HighWatermark: c.high,
		LowWatermark:  c.low,
	}
}

// -------------------- internals (mu held) --------------------

// promoteLocked moves a pooled node into the displayed tier.
func (c *cache) promoteLocked(n *node) {
	e := n.entry
	e.retained.Store(false)
	e.cached.Store(true)
	c.pool.remove(n.key)
	c.displayed[n.key] = e
}

// demoteLocked moves a displayed entry back into the pool.
func (c *cache) demoteLocked(key string, e *Entry) {
	e.retained.Store(false)
	e.cached.Store(true)
	delete(c.displayed, key)
	c.dropStaleLocked(key, e)
	n := c.pool.add(key, e)
	c.refillNeeded = false
	c.enforceLocked(n)
}

// dropStaleLocked unlinks a pooled entry under key that is about to be
// replaced. A replaced entry is no longer owned by any tier.
func (c *cache) dropStaleLocked(key string, e *Entry) {
	old, ok := c.pool.remove(key)
	if ok && old.entry != e {
		old.entry.cached.Store(false)
	}
}

// enforceLocked evicts from the LRU end once the pool exceeds the high
// watermark, until it is at or under the low watermark. The node that was
// just inserted survives unless it alone exceeds the high watermark.
func (c *cache) enforceLocked(added *node) {
	if c.pool.bytes <= c.high {
		return
	}
	for c.pool.bytes > c.low {
		tail := c.pool.tail
		if tail == nil {
			break
		}
		if tail == added && c.pool.bytes <= c.high {
			break
		}
		c.evictLocked(tail)
	}
}

func (c *cache) evictLocked(n *node) {
	c.pool.remove(n.key)
	n.entry.cached.Store(false)
	c.evictions++
	c.notifyLocked(n.key, n.entry, EvictWatermark)
	if c.opt.Verbose {
		c.log.Debug("evicted from reuse pool",
			zap.String("key", n.key),
			zap.Int64("bytes", n.bytes),
			zap.Int64("pool_bytes", c.pool.bytes),
		)
	}
}

func (c *cache) removeDisplayedLocked(key string) bool {
	e, ok := c.displayed[key]
	if !ok {
		return false
	}
	delete(c.displayed, key)
	e.cached.Store(false)
	c.removed++
	c.notifyLocked(key, e, EvictExplicit)
	return true
}

func (c *cache) notifyLocked(key string, e *Entry, reason EvictReason) {
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(key, e, reason)
	}
}

func (c *cache) hitLocked(key string) {
	c.hits++
	c.opt.Metrics.Hit()
	if c.opt.Verbose {
		c.log.Debug("memory cache hit", zap.String("key", key))
	}
}

func (c *cache) reuseMissLocked() {
	c.reuseMisses++
	c.opt.Metrics.ReuseMiss()
}

func (c *cache) reportSizeLocked() {
	c.opt.Metrics.Size(len(c.displayed), c.pool.len, c.pool.bytes)
}
