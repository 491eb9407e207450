package cache

// Cache is a two-tier memory cache for decoded image buffers.
// All methods are safe for concurrent use by multiple goroutines; every
// tier-mutating operation runs under a single lock per cache instance.
//
// Entries live either in the displayed tier (bound to a live target; never
// evicted) or in the reuse pool (byte-bounded, LRU-evicted, and the source of
// buffers for GetReusable). An entry is never in both.
type Cache interface {
	// Add inserts e under key into the reuse pool, replacing any pooled entry
	// with the same key. It is a no-op if key is empty, e or its buffer is
	// invalid, or key is already displayed.
	Add(key string, e *Entry)

	// Get returns the entry for key from either tier, refreshing pool recency.
	Get(key string) (*Entry, bool)

	// Contains reports whether key is present in either tier.
	Contains(key string) bool

	// Remove drops key from the displayed tier. Pooled entries leave only
	// through eviction, reuse or promotion. Returns true if an entry was removed.
	Remove(key string) bool

	// Clear removes every displayed entry and empties the reuse pool.
	Clear()

	// GetReusable checks out a pooled buffer compatible with req. The returned
	// entry is retained and no longer cached; the caller must call
	// Entry.Release when done with it.
	GetReusable(req ReuseRequest) (*Entry, bool)

	// OnEntryDisplayed records that key was bound to a live target.
	OnEntryDisplayed(key string)

	// OnEntryHidden records that a target bound to key let go of it.
	OnEntryHidden(key string)

	// Len returns the number of entries across both tiers.
	Len() int

	// SizeBytes returns the reuse pool's current byte budget usage.
	SizeBytes() int64

	// Stats returns a snapshot of the cache counters.
	Stats() Stats
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Added       uint64
	Removed     uint64
	Evictions   uint64
	Hits        uint64
	Misses      uint64
	ReuseHits   uint64
	ReuseMisses uint64

	Displayed int
	Pooled    int
	PoolBytes int64

	HighWatermark int64
	LowWatermark  int64
}
