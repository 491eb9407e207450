// Package lru implements the least-recently-used reuse-pool policy.
package lru

import "github.com/IvanBrykalov/imageloader/policy"

// lru is classic move-to-front recency. Entries that have not been added or
// hit for the longest time sit at the tail and are evicted (or recycled) first.
type lru struct {
	h policy.Hooks
}

type lruPolicy struct{}

// New returns a Policy factory for LRU ordering.
func New() policy.Policy { return lruPolicy{} }

// New implements policy.Policy.
func (lruPolicy) New(h policy.Hooks) policy.PoolPolicy { return &lru{h: h} }

// OnAdd places the new entry at MRU.
func (p *lru) OnAdd(n policy.Node) { p.h.PushFront(n) }

// OnGet promotes the entry to MRU.
func (p *lru) OnGet(n policy.Node) { p.h.MoveToFront(n) }

// OnRemove is a no-op: LRU keeps no state outside the list.
func (p *lru) OnRemove(policy.Node) {}
