// Package cache provides a two-tier, byte-bounded memory cache for decoded
// image buffers, with safe recycling of large mutable allocations.
//
// Design
//
//   - Tiers: the displayed tier holds entries currently bound to a live
//     target (strong references, never evicted). The reuse pool holds every
//     other cached entry in an intrusive MRU↔LRU list and is the only tier
//     subject to eviction and buffer reuse. An entry is in at most one tier.
//
//   - Concurrency: one mutex per cache guards both tiers, the byte budget and
//     all counters. Operations are short and never block on I/O.
//
//   - Watermarks: when an insertion pushes pool bytes above HighWatermark,
//     least-recently-used entries are evicted until the pool is at or below
//     LowWatermark. Each eviction is reported through Options.OnEvict with
//     EvictWatermark, distinct from EvictExplicit (Remove) and EvictClear.
//
//   - Display transitions: targets call OnEntryDisplayed / OnEntryHidden.
//     Displays are reference counted per entry: the first display promotes a
//     pooled entry into the displayed tier, the last hide demotes it back.
//
//   - Reuse: GetReusable checks out a pooled buffer accepted by
//     Options.CanReuse (FlexibleReuse by default). The entry leaves the cache
//     marked retained; the caller must call Entry.Release. A retained entry is
//     never handed out twice. This is a cooperative contract: an unreleased
//     buffer is simply lost to the pool.
//
// Basic usage
//
//	c := cache.New(cache.Options{HighWatermark: 64 << 20, LowWatermark: 48 << 20})
//	c.Add(k, cache.NewEntry(buf, info))
//	if e, ok := c.Get(k); ok {
//	    bind(e)
//	    c.OnEntryDisplayed(k)
//	}
//
// Recycling a buffer for a decode
//
//	if e, ok := c.GetReusable(cache.ReuseRequest{Width: w, Height: h}); ok {
//	    decodeInto(e.Buffer)
//	    e.Release()
//	}
package cache
