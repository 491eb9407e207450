package loader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/imageloader/cache"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeBuffer struct{ bytes int64 }

func (b *fakeBuffer) Valid() bool                { return true }
func (b *fakeBuffer) Mutable() bool              { return true }
func (b *fakeBuffer) Width() int                 { return 1 }
func (b *fakeBuffer) Height() int                { return int(b.bytes) }
func (b *fakeBuffer) Format() cache.PixelFormat  { return cache.FormatAlpha8 }
func (b *fakeBuffer) ByteCount() int64           { return b.bytes }
func (b *fakeBuffer) AllocationByteCount() int64 { return b.bytes }

// closeCounter is an io.ReadCloser that counts Close calls.
type closeCounter struct {
	io.Reader
	closed atomic.Int32
}

func (c *closeCounter) Close() error { c.closed.Add(1); return nil }

type fakeResolver struct {
	result Result
	err    error
	// during runs inside Resolve, before it returns.
	during func(ctx context.Context)
	panic  bool

	calls atomic.Int32
	paths sync.Map
	data  []*closeCounter
	mu    sync.Mutex
}

func (r *fakeResolver) Resolve(ctx context.Context, path string, _ *Params) (*Resolved, error) {
	r.calls.Add(1)
	r.paths.Store(path, true)
	if r.panic {
		panic("resolver exploded")
	}
	if r.during != nil {
		r.during(ctx)
	}
	if r.err != nil {
		return nil, r.err
	}
	cc := &closeCounter{Reader: bytes.NewReader([]byte("img"))}
	r.mu.Lock()
	r.data = append(r.data, cc)
	r.mu.Unlock()
	return &Resolved{Data: cc, Result: r.result, Info: infoFor(path)}, nil
}

func (r *fakeResolver) resolved(path string) bool {
	_, ok := r.paths.Load(path)
	return ok
}

func (r *fakeResolver) allClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.data {
		if d.closed.Load() != 1 {
			return false
		}
	}
	return true
}

// infoFor builds a minimal ImageInfo for path.
func infoFor(path string) cache.ImageInfo { return cache.ImageInfo{Path: path, Width: 1, Height: 1} }

type fakeFactory struct{ r Resolver }

func (f fakeFactory) Resolver(string, Source, *Params) (Resolver, error) { return f.r, nil }

type fakeGenerator struct {
	bytes     int64
	err       error
	errFor    string        // when set, err applies only to this path
	gate      chan struct{} // when set, Generate blocks until closed
	nilBuffer bool

	calls      atomic.Int32
	mu         sync.Mutex
	transforms [][]Transformation
}

func (g *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (cache.Buffer, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.transforms = append(g.transforms, req.Transformations)
	g.mu.Unlock()
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil && (g.errFor == "" || g.errFor == req.Path) {
		return nil, g.err
	}
	if g.nilBuffer {
		return nil, nil
	}
	n := g.bytes
	if n == 0 {
		n = 10
	}
	req.Info.Width, req.Info.Height = 1, int(n)
	return &fakeBuffer{bytes: n}, nil
}

type fakeTarget struct {
	handle string

	mu       sync.Mutex
	current  *Task
	bound    []*cache.Entry
	animated []bool
	bindErr  error
	// beforeBind runs at the start of Bind.
	beforeBind func()
}

func newTarget(handle string) *fakeTarget { return &fakeTarget{handle: handle} }

func (f *fakeTarget) Bind(_ context.Context, e *cache.Entry, animated bool) error {
	if f.beforeBind != nil {
		f.beforeBind()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bindErr != nil {
		return f.bindErr
	}
	f.bound = append(f.bound, e)
	f.animated = append(f.animated, animated)
	return nil
}

func (f *fakeTarget) IsTaskCurrent(t *Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current == t
}

func (f *fakeTarget) SetCurrentTask(t *Task) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

func (f *fakeTarget) UsesSameNativeHandle(t *Task) bool {
	o, ok := t.Target().(*fakeTarget)
	return ok && o.handle == f.handle
}

func (f *fakeTarget) bindings() []*cache.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*cache.Entry(nil), f.bound...)
}

// recorder captures callback order.
type recorder struct {
	mu     sync.Mutex
	events []string
	result Result
	info   cache.ImageInfo
	err    error
	done   chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

func (r *recorder) attach(p *Params) *Params {
	p.OnSuccess = func(info cache.ImageInfo, res Result) {
		r.mu.Lock()
		r.events = append(r.events, "success")
		r.info, r.result = info, res
		r.mu.Unlock()
	}
	p.OnError = func(err error) {
		r.mu.Lock()
		r.events = append(r.events, "error")
		r.err = err
		r.mu.Unlock()
	}
	p.OnFinish = func(*Task) {
		r.mu.Lock()
		r.events = append(r.events, "finish")
		r.mu.Unlock()
		close(r.done)
	}
	return p
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeOwner struct {
	exitEarly bool
	removed   atomic.Int32
}

func (o *fakeOwner) RemovePending(*Task)  { o.removed.Add(1) }
func (o *fakeOwner) ExitTasksEarly() bool { return o.exitEarly }

// fakeDispatcher runs callbacks on its own goroutine.
type fakeDispatcher struct {
	posts  atomic.Int32
	reject bool
}

var errDispatcherClosed = errors.New("dispatcher closed")

func (d *fakeDispatcher) Post(ctx context.Context, fn func()) error {
	d.posts.Add(1)
	if d.reject {
		return errDispatcherClosed
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type namedTransform string

func (n namedTransform) Key() string                           { return string(n) }
func (n namedTransform) Transform(img image.Image) image.Image { return img }

// env bundles the fakes a test needs.
type env struct {
	cache cache.Cache
	res   *fakeResolver
	gen   *fakeGenerator
	owner *fakeOwner
	deps  Deps
}

func newEnv() *env {
	e := &env{
		cache: cache.New(cache.Options{HighWatermark: 1 << 20, LowWatermark: 1 << 19}),
		res:   &fakeResolver{result: ResultLocalFile},
		gen:   &fakeGenerator{},
		owner: &fakeOwner{},
	}
	e.deps = Deps{Cache: e.cache, Resolvers: fakeFactory{r: e.res}, Generator: e.gen, Owner: e.owner}
	return e
}
