package cache

import "github.com/IvanBrykalov/imageloader/policy"

// pool is the byte-bounded reuse tier: a key->node map plus an intrusive
// MRU↔LRU list whose order is driven by the policy. It is not synchronized;
// every method must be called with the cache lock held.
type pool struct {
	m     map[string]*node
	head  *node // MRU
	tail  *node // LRU
	len   int
	bytes int64

	pol policy.PoolPolicy
}

func newPool(p policy.Policy) *pool {
	pl := &pool{m: make(map[string]*node)}
	pl.pol = p.New(poolHooks{p: pl})
	return pl
}

func (p *pool) get(key string) (*node, bool) {
	n, ok := p.m[key]
	return n, ok
}

// touch refreshes recency for key if it is pooled.
func (p *pool) touch(key string) (*node, bool) {
	n, ok := p.m[key]
	if ok {
		p.pol.OnGet(n)
	}
	return n, ok
}

// add links a new node for key at the policy's admission position.
func (p *pool) add(key string, e *Entry) *node {
	n := &node{key: key, entry: e, bytes: footprint(e)}
	p.m[key] = n
	p.pol.OnAdd(n)
	return n
}

// remove unlinks key and returns the node it held.
func (p *pool) remove(key string) (*node, bool) {
	n, ok := p.m[key]
	if !ok {
		return nil, false
	}
	p.pol.OnRemove(n)
	p.unlink(n)
	delete(p.m, key)
	return n, true
}

// reset drops every node and returns them LRU first.
func (p *pool) reset() []*node {
	out := make([]*node, 0, p.len)
	for n := p.tail; n != nil; n = n.prev {
		out = append(out, n)
	}
	p.m = make(map[string]*node)
	p.head, p.tail = nil, nil
	p.len, p.bytes = 0, 0
	return out
}

// -------------------- intrusive list --------------------

// insertFront inserts n at MRU in O(1).
func (p *pool) insertFront(n *node) {
	n.prev = nil
	n.next = p.head
	if p.head != nil {
		p.head.prev = n
	}
	p.head = n
	if p.tail == nil {
		p.tail = n
	}
	p.len++
	p.bytes += n.bytes
}

// moveToFront promotes n to MRU in O(1).
func (p *pool) moveToFront(n *node) {
	if n == p.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if p.tail == n {
		p.tail = n.prev
	}
	n.prev = nil
	n.next = p.head
	if p.head != nil {
		p.head.prev = n
	}
	p.head = n
	if p.tail == nil {
		p.tail = n
	}
}

// unlink removes n from the list and updates counters in O(1).
func (p *pool) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if p.head == n {
		p.head = n.next
	}
	if p.tail == n {
		p.tail = n.prev
	}
	n.prev, n.next = nil, nil
	p.len--
	p.bytes -= n.bytes
	if p.bytes < 0 {
		p.bytes = 0
	}
}

func footprint(e *Entry) int64 {
	if e == nil || e.Buffer == nil {
		return 0
	}
	if b := e.Buffer.ByteCount(); b > 0 {
		return b
	}
	return 0
}

// -------------------- policy hooks --------------------

// poolHooks adapts the pool's list operations to policy.Hooks.
type poolHooks struct{ p *pool }

var (
	_ policy.Hooks = poolHooks{}
	_ policy.Node  = (*node)(nil)
)

func (h poolHooks) MoveToFront(x policy.Node) { h.p.moveToFront(x.(*node)) }
func (h poolHooks) PushFront(x policy.Node)   { h.p.insertFront(x.(*node)) }
