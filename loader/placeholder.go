package loader

import (
	"sync"
	"weak"

	"github.com/IvanBrykalov/imageloader/cache"
)

// placeholderRef remembers which entry was shown as the loading placeholder
// without keeping it alive. It is only ever compared, never dereferenced
// for rendering.
type placeholderRef struct {
	mu  sync.Mutex
	ptr weak.Pointer[cache.Entry]
}

func (r *placeholderRef) set(e *cache.Entry) {
	r.mu.Lock()
	r.ptr = weak.Make(e)
	r.mu.Unlock()
}

func (r *placeholderRef) is(e *cache.Entry) bool {
	if e == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ptr == weak.Make(e)
}
