package cache

// node is an intrusive doubly linked list element owned by the reuse pool.
type node struct {
	key   string
	entry *Entry

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node
	next *node

	// Footprint charged to the byte budget, captured at insertion.
	bytes int64
}

// Key implements policy.Node.
func (n *node) Key() string { return n.key }
