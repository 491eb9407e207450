package cache

import "sync/atomic"

// Buffer is a decoded image allocation managed by the cache.
// Implementations are platform/decoder specific; the cache only inspects them.
type Buffer interface {
	// Valid reports whether the underlying allocation is still live.
	Valid() bool
	// Mutable reports whether the allocation may be overwritten by a decoder.
	Mutable() bool
	Width() int
	Height() int
	Format() PixelFormat
	// ByteCount is the number of bytes the current image occupies.
	ByteCount() int64
	// AllocationByteCount is the capacity of the allocation, >= ByteCount.
	AllocationByteCount() int64
}

// ImageInfo describes a decoded image.
type ImageInfo struct {
	Key            string
	CustomKey      string
	Path           string
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	Format         string
	SourceBytes    int64
}

// Entry pairs a buffer with its metadata and carries the cache-visible flags.
//
// Flags are atomics so a caller holding a checked-out entry can Release it
// without the cache lock. Tier membership itself only changes under the lock.
type Entry struct {
	Buffer Buffer
	Info   ImageInfo

	key      string // in-cache key, set on Add
	cached   atomic.Bool
	retained atomic.Bool
	displays atomic.Int32
}

// NewEntry wraps a buffer for insertion into a Cache.
func NewEntry(buf Buffer, info ImageInfo) *Entry {
	return &Entry{Buffer: buf, Info: info}
}

// Key returns the key the entry was last cached under ("" if never cached).
func (e *Entry) Key() string { return e.key }

// IsCached reports whether some tier currently owns the entry.
func (e *Entry) IsCached() bool { return e.cached.Load() }

// IsRetained reports whether the entry is checked out for reuse.
func (e *Entry) IsRetained() bool { return e.retained.Load() }

// IsDisplayed reports whether the entry is bound to at least one live target.
func (e *Entry) IsDisplayed() bool { return e.displays.Load() > 0 }

// Release returns a buffer obtained from GetReusable to its owner.
// It reports false if the entry was not retained (double release).
func (e *Entry) Release() bool { return e.retained.CompareAndSwap(true, false) }

// valid reports whether the entry may be cached at all.
func (e *Entry) valid() bool {
	return e != nil && e.Buffer != nil && e.Buffer.Valid()
}
