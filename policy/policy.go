// Package policy defines the recency policy contract used by the reuse pool.
//
// The pool owns the key->node map and the byte budget; a policy only decides
// where nodes sit in the pool's MRU↔LRU list. Eviction always takes the list
// tail, so the policy's ordering is the eviction order and also the order in
// which buffers are offered for reuse (tail first).
package policy

// Node is the minimal view of a pooled entry a policy may inspect.
type Node interface {
	Key() string
}

// Hooks expose O(1) list operations on the pool's intrusive list.
//
// Concurrency: all hook calls happen under the cache lock.
type Hooks interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node)
	// PushFront inserts the node at MRU.
	PushFront(Node)
}

// PoolPolicy is a policy instance bound to one pool's hooks.
// All methods are invoked under the cache lock.
//
//   - OnAdd places a newly pooled node (admission).
//   - OnGet records a use (cache hit on the pool).
//   - OnRemove notifies that the node left the pool (evicted, checked out
//     for reuse, or promoted to the displayed tier). The pool unlinks it.
type PoolPolicy interface {
	OnAdd(Node)
	OnGet(Node)
	OnRemove(Node)
}

// Policy is a factory that creates pool-local policy instances.
type Policy interface {
	New(Hooks) PoolPolicy
}
