package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/internal/singleflight"
	"github.com/IvanBrykalov/imageloader/key"
)

// Deps are the collaborators a Task works with. Cache, Resolvers and
// Generator are required; Owner and Dispatcher are optional.
type Deps struct {
	Cache      cache.Cache
	Resolvers  ResolverFactory
	Generator  Generator
	Owner      Owner
	Dispatcher Dispatcher
	Config     Config

	// set by Service to coalesce identical in-flight loads
	flights *singleflight.Group[string, *produced]
}

// produced is the shareable outcome of resolve+generate+insert.
type produced struct {
	entry       *cache.Entry
	info        cache.ImageInfo
	result      Result
	preloadOnly bool
}

// Task carries one load request through its pipeline. All methods are safe
// for concurrent use; Run and TryLoadFromMemoryCache must not be called
// concurrently with each other.
type Task struct {
	params *Params
	target Target
	deps   Deps
	keys   key.Keys
	token  *Token
	log    *zap.Logger

	state     atomic.Int32
	completed atomic.Bool
	disposed  atomic.Bool
	leading   atomic.Bool // running a shared flight for keys.Key

	infoMu sync.Mutex
	info   cache.ImageInfo

	// only touched by the goroutine running the pipeline
	loadingShown bool
	placeholder  placeholderRef

	errorOnce  sync.Once
	finishOnce sync.Once
}

// NewTask builds a task for p and registers it as target's current task.
// target may be nil for preloads. It panics if a required dependency is nil.
func NewTask(p *Params, target Target, deps Deps) *Task {
	if p == nil {
		panic("loader: nil params")
	}
	if deps.Cache == nil || deps.Resolvers == nil || deps.Generator == nil {
		panic("loader: Cache, Resolvers and Generator are required")
	}
	if deps.Owner == nil {
		deps.Owner = noopOwner{}
	}
	if deps.Config.Logger == nil {
		deps.Config.Logger = zap.NewNop()
	}

	b := key.Builder{
		DPIToPixels:           deps.Config.DPIToPixels,
		TransformPlaceholders: deps.Config.TransformPlaceholders,
	}
	keys := b.Build(p.keyRequest())

	t := &Task{
		params: p,
		target: target,
		deps:   deps,
		keys:   keys,
		token:  NewToken(context.Background()),
		log:    deps.Config.Logger.Named("task").With(zap.String("key", keys.Key)),
	}
	t.info = cache.ImageInfo{Key: keys.Key, CustomKey: p.CustomKey, Path: p.Path}
	if target != nil {
		target.SetCurrentTask(t)
	}
	return t
}

// Keys returns the cache keys derived for this request.
func (t *Task) Keys() key.Keys { return t.keys }

// Key is the memory-cache key of the main image.
func (t *Task) Key() string { return t.keys.Key }

func (t *Task) Params() *Params { return t.params }
func (t *Task) Target() Target  { return t.target }
func (t *Task) State() State    { return State(t.state.Load()) }

// Info returns the image info known so far.
func (t *Task) Info() cache.ImageInfo {
	t.infoMu.Lock()
	defer t.infoMu.Unlock()
	return t.info
}

// IsCancelled reports whether the task was cancelled or disposed.
func (t *Task) IsCancelled() bool { return t.disposed.Load() || t.token.Cancelled() }

// IsCompleted reports whether the task has finished, in any way.
func (t *Task) IsCompleted() bool { return t.completed.Load() }

// IsLoadingPlaceholder reports whether e is the entry this task showed as
// its loading placeholder.
func (t *Task) IsLoadingPlaceholder(e *cache.Entry) bool { return t.placeholder.is(e) }

// UsesSameNativeHandle reports whether other renders into the same native
// view as this task.
func (t *Task) UsesSameNativeHandle(other *Task) bool {
	return t.target != nil && other != nil && t.target.UsesSameNativeHandle(other)
}

// Cancel aborts the task. It is idempotent and safe after Close.
func (t *Task) Cancel() {
	if t.disposed.Load() {
		return
	}
	if t.target != nil && t.target.IsTaskCurrent(t) {
		t.target.SetCurrentTask(nil)
	}
	t.deps.Owner.RemovePending(t)
	t.token.Cancel()
	if t.leading.Load() {
		// Later requests for the key start over instead of joining a doomed flight.
		t.deps.flights.Forget(t.keys.Key)
	}
	if t.deps.Config.VerboseLoadingCancelledLogging {
		t.log.Debug("image loading cancelled")
	}
}

// CancelIfNeeded cancels the task unless it is already cancelled or done.
func (t *Task) CancelIfNeeded() {
	if !t.IsCancelled() && !t.IsCompleted() {
		t.Cancel()
	}
}

// Close disposes the task: it clears the target binding if still current,
// releases the request's resources and cancels the token. Idempotent.
func (t *Task) Close() error {
	if !t.disposed.CompareAndSwap(false, true) {
		return nil
	}
	if t.target != nil && t.target.IsTaskCurrent(t) {
		t.target.SetCurrentTask(nil)
	}
	t.token.Cancel()
	return t.params.Close()
}

// TryLoadFromMemoryCache is the synchronous fast path. On a hit the entry is
// bound, success and finish fire, and true is returned. On a miss the loading
// placeholder is shown (once) and false is returned; the caller should then
// schedule Run. A non-nil error means the task finished without success.
func (t *Task) TryLoadFromMemoryCache(ctx context.Context) (bool, error) {
	if t.completed.Load() {
		return false, t.cancelled("try_memory")
	}
	runCtx, stop := t.token.Bind(ctx)
	defer stop()

	hit, err := safely(t, func() (bool, error) { return t.memoryPath(runCtx) })
	if err != nil {
		err = t.fail(runCtx, err, false)
		t.finalize(ctx, false, ResultFailed)
		return false, err
	}
	if hit {
		t.finalize(ctx, true, ResultMemoryCache)
		return true, nil
	}
	return false, nil
}

// Run executes the full pipeline. It returns nil on success or an error
// classified by KindOf. Finish fires exactly once whatever the outcome.
func (t *Task) Run(ctx context.Context) (err error) {
	success, result := false, ResultFailed
	defer func() { t.finalize(ctx, success, result) }()

	if t.completed.Load() || t.IsCancelled() || t.deps.Owner.ExitTasksEarly() {
		t.setState(StateCancelled)
		return t.cancelled("run")
	}

	runCtx, stop := t.token.Bind(ctx)
	defer stop()

	result, err = safely(t, func() (Result, error) {
		if err := t.checkpoint(runCtx, "run"); err != nil {
			return ResultFailed, err
		}
		hit, err := t.memoryPath(runCtx)
		if err != nil {
			return ResultFailed, err
		}
		if hit {
			return ResultMemoryCache, nil
		}
		return t.load(runCtx)
	})
	if err != nil {
		result = ResultFailed
		return t.fail(runCtx, err, true)
	}
	success = true
	return nil
}

// ---- pipeline ----

// memoryPath looks the main key up and binds it on a hit. On a miss it shows
// the loading placeholder if one is configured and not yet shown.
func (t *Task) memoryPath(ctx context.Context) (bool, error) {
	p := t.params
	if p.Preload && p.CacheType == CacheDisk {
		return false, nil
	}

	animated := t.fadeAnimation() && t.fadeAnimationForCached()
	hit, err := t.fromMemory(ctx, t.keys.Key, true, animated, false)
	if err != nil {
		return false, err
	}
	if hit {
		t.setState(StateMemoryCacheHit)
		t.log.Debug("image loaded from memory cache")
		return true, nil
	}
	if err := t.checkpoint(ctx, "try_memory"); err != nil {
		return false, err
	}

	if !t.loadingShown && p.Loading.Path != "" {
		t.loadingShown = true
		if err := t.showPlaceholder(ctx, p.Loading, t.keys.LoadingPlaceholder, true); err != nil {
			if KindOf(err) == KindCancelled {
				return false, err
			}
			t.log.Error("loading placeholder failed", zap.Error(err))
		}
	}
	return false, nil
}

// fromMemory binds the entry under k if cached.
func (t *Task) fromMemory(ctx context.Context, k string, updateInfo, animated, isLoading bool) (bool, error) {
	e, ok := t.deps.Cache.Get(k)
	if !ok {
		return false, nil
	}
	if isLoading {
		t.placeholder.set(e)
	}
	if err := t.checkpoint(ctx, "bind"); err != nil {
		return false, err
	}
	if err := t.bind(ctx, e, animated); err != nil {
		return false, err
	}
	if updateInfo {
		t.setInfo(e.Info)
	}
	return true, nil
}

func (t *Task) load(ctx context.Context) (Result, error) {
	var (
		out *produced
		err error
	)
	if t.canShare() {
		out, err = t.produceShared(ctx)
	} else {
		out, err = t.produce(ctx)
	}
	if err != nil {
		return ResultFailed, err
	}
	if out.preloadOnly {
		t.setState(StatePreloadDone)
		t.log.Debug("preload finished, skipping decode")
		return out.result, nil
	}

	t.setInfo(out.info)
	if err := t.checkpoint(ctx, "bind"); err != nil {
		return ResultFailed, err
	}
	if err := t.bind(ctx, out.entry, t.fadeAnimation()); err != nil {
		return ResultFailed, err
	}
	t.setState(StateTargetBound)
	return out.result, nil
}

func (t *Task) canShare() bool {
	return t.deps.flights != nil && t.keys.CanUseMemoryCache &&
		!(t.params.Preload && t.params.CacheType == CacheDisk)
}

// produceShared joins an in-flight load of the same key. A follower whose
// leader was cancelled runs its own pipeline.
func (t *Task) produceShared(ctx context.Context) (*produced, error) {
	out, err, shared := t.deps.flights.Do(ctx, t.keys.Key, func() (*produced, error) {
		t.leading.Store(true)
		defer t.leading.Store(false)
		return t.produce(ctx)
	})
	if err == nil {
		return out, nil
	}
	if shared && KindOf(err) == KindCancelled && t.checkpoint(ctx, "join") == nil {
		t.log.Debug("shared load was cancelled, loading independently")
		return t.produce(ctx)
	}
	if errors.Is(err, singleflight.ErrPanicked) {
		return nil, &Error{Kind: KindFailed, Key: t.keys.Key, Op: "join", Err: err}
	}
	return nil, err
}

// produce resolves, decodes and caches the main image.
func (t *Task) produce(ctx context.Context) (*produced, error) {
	p := t.params
	t.setState(StateResolving)
	t.log.Debug("resolving image", zap.String("path", p.Path), zap.Stringer("source", p.Source))

	if err := t.checkpoint(ctx, "resolve"); err != nil {
		return nil, err
	}
	res, err := t.resolve(ctx, p.Path, p.Source, p.Resolver)
	if err != nil {
		return nil, err
	}
	if res.Data != nil {
		defer res.Data.Close()
	}

	info := res.Info
	info.Key = t.keys.Key
	info.CustomKey = p.CustomKey
	if info.Path == "" {
		info.Path = p.Path
	}
	t.setInfo(info)

	if err := t.checkpoint(ctx, "resolve"); err != nil {
		return nil, err
	}
	if p.Preload && p.CacheType == CacheDisk {
		return &produced{info: info, result: res.Result, preloadOnly: true}, nil
	}

	buf, err := t.generate(ctx, p.Path, p.Source, res, &info, true, false)
	if err != nil {
		return nil, err
	}
	// A task cancelled here drops the decoded buffer instead of caching it.
	if err := t.checkpoint(ctx, "generate"); err != nil {
		return nil, err
	}

	var e *cache.Entry
	if buf != nil {
		e = cache.NewEntry(buf, info)
		if t.keys.CanUseMemoryCache {
			t.deps.Cache.Add(t.keys.Key, e)
		}
	}
	return &produced{entry: e, info: info, result: res.Result}, nil
}

// showPlaceholder binds the loading or error placeholder, from memory if
// possible. Placeholders are cached under their own keys.
func (t *Task) showPlaceholder(ctx context.Context, ph Placeholder, k string, isLoading bool) error {
	if t.params.Preload {
		return nil
	}
	hit, err := t.fromMemory(ctx, k, false, false, isLoading)
	if err != nil || hit {
		return err
	}

	res, err := t.resolve(ctx, ph.Path, ph.Source, ph.Resolver)
	if err != nil {
		return err
	}
	if res.Data != nil {
		defer res.Data.Close()
	}
	if err := t.checkpoint(ctx, "placeholder"); err != nil {
		return err
	}

	info := res.Info
	info.Key = k
	if info.Path == "" {
		info.Path = ph.Path
	}
	buf, err := t.generate(ctx, ph.Path, ph.Source, res, &info, t.transformPlaceholders(), true)
	if err != nil {
		return err
	}
	var e *cache.Entry
	if buf != nil {
		e = cache.NewEntry(buf, info)
		t.deps.Cache.Add(k, e)
	}
	if err := t.checkpoint(ctx, "placeholder"); err != nil {
		return err
	}
	if isLoading {
		t.placeholder.set(e)
	}
	return t.bind(ctx, e, false)
}

func (t *Task) resolve(ctx context.Context, path string, src Source, override Resolver) (*Resolved, error) {
	r := override
	if r == nil {
		var err error
		if r, err = t.deps.Resolvers.Resolver(path, src, t.params); err != nil {
			return nil, wrap("resolve", t.keys.Key, err)
		}
	}
	res, err := r.Resolve(ctx, path, t.params)
	if err != nil {
		if res != nil && res.Data != nil {
			_ = res.Data.Close()
		}
		return nil, wrap("resolve", t.keys.Key, err)
	}
	if res == nil {
		return nil, &Error{Kind: KindFailed, Key: t.keys.Key, Op: "resolve", Err: fmt.Errorf("no data for %q", path)}
	}
	return res, nil
}

func (t *Task) generate(ctx context.Context, path string, src Source, res *Resolved, info *cache.ImageInfo, transform, isPlaceholder bool) (cache.Buffer, error) {
	req := GenerateRequest{
		Path:          path,
		Source:        src,
		Data:          res.Data,
		Info:          info,
		Downsample:    t.downsamplePixels(),
		IsPlaceholder: isPlaceholder,
	}
	if transform {
		req.Transformations = t.params.Transformations
	}
	buf, err := t.deps.Generator.Generate(ctx, req)
	if err != nil {
		return nil, wrap("generate", t.keys.Key, err)
	}
	return buf, nil
}

func (t *Task) bind(ctx context.Context, e *cache.Entry, animated bool) error {
	if t.target == nil {
		return nil
	}
	if err := t.target.Bind(ctx, e, animated); err != nil {
		return wrap("bind", t.keys.Key, err)
	}
	return nil
}

// ---- cancellation, failure and completion ----

// checkpoint returns a cancellation error if the token fired, the task was
// disposed or the target moved on to another task.
func (t *Task) checkpoint(ctx context.Context, op string) error {
	if t.IsCancelled() || ctx.Err() != nil {
		return t.cancelled(op)
	}
	if t.target != nil && !t.target.IsTaskCurrent(t) {
		return t.cancelled(op)
	}
	return nil
}

func (t *Task) cancelled(op string) error {
	return &Error{Kind: KindCancelled, Key: t.keys.Key, Op: op, Err: ErrCancelled}
}

// safely recovers a panic from a collaborator into a KindFailed error.
func safely[T any](t *Task, fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("recovered panic in image pipeline", zap.Any("panic", r))
			err = &Error{Kind: KindFailed, Key: t.keys.Key, Op: "run", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}

// fail classifies err, performs the side effects of its kind and returns the
// error to hand back to the caller.
func (t *Task) fail(ctx context.Context, err error, errorPlaceholder bool) error {
	err = wrap("run", t.keys.Key, err)
	switch KindOf(err) {
	case KindCancelled:
		t.setState(StateCancelled)
		if t.deps.Config.VerboseLoadingCancelledLogging {
			t.log.Debug("image loading cancelled", zap.Error(err))
		}
		return err
	case KindResourceExhausted:
		t.log.Error("out of memory while loading image", zap.Error(err))
		if t.deps.Config.ClearCacheOnOutOfMemory {
			t.deps.Cache.Clear()
		}
	default:
		t.log.Error("image loading failed", zap.Error(err))
	}

	t.setState(StateFailed)
	t.reportError(ctx, err)

	p := t.params
	if errorPlaceholder && !p.Preload && p.Error.Path != "" {
		if perr := t.showErrorPlaceholder(ctx); perr != nil && KindOf(perr) != KindCancelled {
			t.log.Error("error placeholder failed", zap.Error(perr))
		}
	}
	return err
}

func (t *Task) showErrorPlaceholder(ctx context.Context) error {
	_, err := safely(t, func() (struct{}, error) {
		return struct{}{}, t.showPlaceholder(ctx, t.params.Error, t.keys.ErrorPlaceholder, false)
	})
	return err
}

func (t *Task) reportError(ctx context.Context, err error) {
	t.errorOnce.Do(func() {
		if cb := t.params.OnError; cb != nil {
			t.deliver(ctx, func() { cb(err) })
		}
	})
}

// finalize marks the task completed, fires success (if any) and finish
// exactly once, leaves the owner's pending set and releases the request.
func (t *Task) finalize(ctx context.Context, success bool, result Result) {
	t.completed.Store(true)
	t.finishOnce.Do(func() {
		if success {
			t.setState(StateCompleted)
		}
		p := t.params
		if p.OnSuccess == nil && p.OnFinish == nil {
			return
		}
		info := t.Info()
		t.deliver(ctx, func() {
			if success && p.OnSuccess != nil {
				p.OnSuccess(info, result)
			}
			if p.OnFinish != nil {
				p.OnFinish(t)
			}
		})
	})
	t.deps.Owner.RemovePending(t)
	if err := t.params.Close(); err != nil {
		t.log.Warn("releasing request resources", zap.Error(err))
	}
}

// deliver runs fn on the dispatcher when configured, inline otherwise.
// Callbacks are delivered even when ctx is already cancelled.
func (t *Task) deliver(ctx context.Context, fn func()) {
	d := t.deps.Dispatcher
	if d != nil && t.deps.Config.ExecuteCallbacksOnDispatcher {
		err := d.Post(context.WithoutCancel(ctx), fn)
		if err == nil {
			return
		}
		t.log.Warn("dispatcher rejected callback, running inline", zap.Error(err))
	}
	fn()
}

// ---- small helpers ----

func (t *Task) setState(s State) {
	for {
		cur := State(t.state.Load())
		if cur.Terminal() {
			return
		}
		if t.state.CompareAndSwap(int32(cur), int32(s)) {
			return
		}
	}
}

func (t *Task) setInfo(info cache.ImageInfo) {
	t.infoMu.Lock()
	t.info = info
	t.infoMu.Unlock()
}

func (t *Task) fadeAnimation() bool {
	if v := t.params.FadeAnimation; v != nil {
		return *v
	}
	return t.deps.Config.FadeAnimationEnabled
}

func (t *Task) fadeAnimationForCached() bool {
	if v := t.params.FadeAnimationForCached; v != nil {
		return *v
	}
	return t.deps.Config.FadeAnimationForCachedImages
}

func (t *Task) transformPlaceholders() bool {
	if v := t.params.TransformPlaceholders; v != nil {
		return *v
	}
	return t.deps.Config.TransformPlaceholders
}

func (t *Task) downsamplePixels() Downsample {
	d := t.params.Downsample
	if d.DIP {
		d.Width = t.deps.Config.dpiToPixels(d.Width)
		d.Height = t.deps.Config.dpiToPixels(d.Height)
		d.DIP = false
	}
	return d
}
