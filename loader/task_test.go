package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/imageloader/cache"
)

func TestTask_MemoryHitSkipsPipeline(t *testing.T) {
	t.Parallel()

	e := newEnv()
	cached := cache.NewEntry(&fakeBuffer{bytes: 10}, cache.ImageInfo{Key: "a", Path: "a", Width: 3})
	e.cache.Add("a", cached)

	rec := newRecorder()
	target := newTarget("v")
	task := NewTask(rec.attach(&Params{Path: "a"}), target, e.deps)

	hit, err := task.TryLoadFromMemoryCache(context.Background())
	require.NoError(t, err)
	require.True(t, hit)

	assert.Equal(t, []string{"success", "finish"}, rec.Events())
	assert.Equal(t, ResultMemoryCache, rec.result)
	assert.Equal(t, 3, rec.info.Width)
	assert.Zero(t, e.res.calls.Load())
	assert.Zero(t, e.gen.calls.Load())
	assert.Equal(t, []*cache.Entry{cached}, target.bindings())
	assert.True(t, task.IsCompleted())
	assert.Equal(t, StateCompleted, task.State())
	assert.Positive(t, e.owner.removed.Load())
}

func TestTask_RunLoadsCachesAndBinds(t *testing.T) {
	t.Parallel()

	e := newEnv()
	rec := newRecorder()
	target := newTarget("v")
	task := NewTask(rec.attach(&Params{Path: "a"}), target, e.deps)

	hit, err := task.TryLoadFromMemoryCache(context.Background())
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, task.Run(context.Background()))

	assert.Equal(t, []string{"success", "finish"}, rec.Events())
	assert.Equal(t, ResultLocalFile, rec.result)
	assert.Equal(t, "a", rec.info.Key)
	assert.True(t, e.cache.Contains("a"))
	assert.True(t, e.res.allClosed(), "resolved data must be closed")

	bound := target.bindings()
	require.Len(t, bound, 1)
	got, ok := e.cache.Get("a")
	require.True(t, ok)
	assert.Same(t, got, bound[0])
	assert.Equal(t, StateCompleted, task.State())
}

func TestTask_CancelAfterResolveDropsResult(t *testing.T) {
	t.Parallel()

	e := newEnv()
	rec := newRecorder()
	var task *Task
	e.res.during = func(context.Context) { task.Cancel() }
	task = NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps)

	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.ErrorIs(t, err, ErrCancelled)

	assert.Equal(t, []string{"finish"}, rec.Events())
	assert.Zero(t, e.gen.calls.Load(), "no decode after cancellation")
	assert.False(t, e.cache.Contains("a"), "no insertion after cancellation")
	assert.True(t, e.res.allClosed())
	assert.Equal(t, StateCancelled, task.State())
}

func TestTask_CancelDuringDecodeSkipsInsertion(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.gen.gate = make(chan struct{})
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps)

	errc := make(chan error, 1)
	go func() { errc <- task.Run(context.Background()) }()
	require.Eventually(t, func() bool { return e.gen.calls.Load() == 1 }, waitFor, tick)
	task.Cancel()

	assert.Equal(t, KindCancelled, KindOf(<-errc))
	assert.Equal(t, []string{"finish"}, rec.Events())
	assert.False(t, e.cache.Contains("a"))
}

func TestTask_FailureShowsErrorPlaceholder(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.gen.err = errors.New("corrupt header")
	e.gen.errFor = "a"
	rec := newRecorder()
	target := newTarget("v")
	task := NewTask(rec.attach(&Params{Path: "a", Error: Placeholder{Path: "err.png"}}), target, e.deps)

	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindFailed, KindOf(err))
	assert.ErrorContains(t, err, "corrupt header")

	assert.Equal(t, []string{"error", "finish"}, rec.Events())
	assert.Equal(t, err, rec.err)
	assert.True(t, e.res.resolved("err.png"))
	assert.True(t, e.cache.Contains(task.Keys().ErrorPlaceholder))
	assert.Len(t, target.bindings(), 1)
	assert.Equal(t, StateFailed, task.State())
}

func TestTask_ErrorPlaceholderFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.gen.err = errors.New("boom")
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a", Error: Placeholder{Path: "err.png"}}), newTarget("v"), e.deps)

	err := task.Run(context.Background())
	assert.Equal(t, KindFailed, KindOf(err))
	assert.Equal(t, []string{"error", "finish"}, rec.Events())
}

func TestTask_ResourceExhaustedClearsCache(t *testing.T) {
	t.Parallel()

	for _, clearCache := range []bool{true, false} {
		t.Run(fmt.Sprintf("clear=%t", clearCache), func(t *testing.T) {
			t.Parallel()

			e := newEnv()
			e.deps.Config.ClearCacheOnOutOfMemory = clearCache
			e.cache.Add("other", cache.NewEntry(&fakeBuffer{bytes: 5}, cache.ImageInfo{}))
			e.gen.err = fmt.Errorf("allocating 4096x4096: %w", ErrResourceExhausted)

			rec := newRecorder()
			task := NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps)
			err := task.Run(context.Background())

			assert.Equal(t, KindResourceExhausted, KindOf(err))
			assert.ErrorIs(t, err, ErrResourceExhausted)
			assert.Equal(t, []string{"error", "finish"}, rec.Events())
			assert.Equal(t, !clearCache, e.cache.Contains("other"))
		})
	}
}

func TestTask_StreamIsNotMemoryCached(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.res.result = ResultStream
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Source: SourceStream}), newTarget("v"), e.deps)

	require.False(t, task.Keys().CanUseMemoryCache)
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, ResultStream, rec.result)
	assert.Zero(t, e.cache.Len())
}

func TestTask_PreloadDiskOnlyStopsAfterResolve(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.res.result = ResultDiskCache
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a", Preload: true, CacheType: CacheDisk}), nil, e.deps)

	hit, err := task.TryLoadFromMemoryCache(context.Background())
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, task.Run(context.Background()))

	assert.Equal(t, []string{"success", "finish"}, rec.Events())
	assert.Equal(t, ResultDiskCache, rec.result)
	assert.Zero(t, e.gen.calls.Load())
	assert.Zero(t, e.cache.Len())
}

func TestTask_StaleTaskIsCancelled(t *testing.T) {
	t.Parallel()

	e := newEnv()
	target := newTarget("v")
	rec1, rec2 := newRecorder(), newRecorder()
	first := NewTask(rec1.attach(&Params{Path: "a"}), target, e.deps)
	second := NewTask(rec2.attach(&Params{Path: "b"}), target, e.deps)

	err := first.Run(context.Background())
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, []string{"finish"}, rec1.Events())
	assert.False(t, e.res.resolved("a"))

	require.NoError(t, second.Run(context.Background()))
	assert.Equal(t, []string{"success", "finish"}, rec2.Events())
}

func TestTask_LoadingPlaceholderShownOnce(t *testing.T) {
	t.Parallel()

	e := newEnv()
	target := newTarget("v")
	task := NewTask(&Params{Path: "a", Loading: Placeholder{Path: "loading.png"}}, target, e.deps)

	hit, err := task.TryLoadFromMemoryCache(context.Background())
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, task.Run(context.Background()))

	bound := target.bindings()
	require.Len(t, bound, 2)
	assert.True(t, task.IsLoadingPlaceholder(bound[0]))
	assert.False(t, task.IsLoadingPlaceholder(bound[1]))
	assert.Equal(t, int32(2), e.res.calls.Load(), "placeholder resolved once, image once")
	assert.True(t, e.cache.Contains(task.Keys().LoadingPlaceholder))
}

func TestTask_LoadingPlaceholderFromCache(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ph := cache.NewEntry(&fakeBuffer{bytes: 1}, cache.ImageInfo{})
	e.cache.Add("loading.png", ph)
	target := newTarget("v")
	task := NewTask(&Params{Path: "a", Loading: Placeholder{Path: "loading.png"}}, target, e.deps)

	require.NoError(t, task.Run(context.Background()))
	assert.Same(t, ph, target.bindings()[0])
	assert.False(t, e.res.resolved("loading.png"))
}

func TestTask_FinishFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	e := newEnv()
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps)

	require.NoError(t, task.Run(context.Background()))
	err := task.Run(context.Background())
	assert.Equal(t, KindCancelled, KindOf(err))
	task.Cancel()
	task.CancelIfNeeded()

	assert.Equal(t, []string{"success", "finish"}, rec.Events())
}

func TestTask_CloseThenCancelIsSafe(t *testing.T) {
	t.Parallel()

	e := newEnv()
	rec := newRecorder()
	target := newTarget("v")
	task := NewTask(rec.attach(&Params{Path: "a"}), target, e.deps)

	require.NoError(t, task.Close())
	require.NoError(t, task.Close())
	task.Cancel()
	task.Cancel()

	assert.True(t, task.IsCancelled())
	assert.False(t, target.IsTaskCurrent(task))

	err := task.Run(context.Background())
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, []string{"finish"}, rec.Events())
}

func TestTask_CancelKeepsNewerTaskCurrent(t *testing.T) {
	t.Parallel()

	e := newEnv()
	target := newTarget("v")
	old := NewTask(&Params{Path: "a"}, target, e.deps)
	cur := NewTask(&Params{Path: "b"}, target, e.deps)

	old.Cancel()
	assert.True(t, target.IsTaskCurrent(cur))
}

func TestTask_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.res.panic = true
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps)

	err := task.Run(context.Background())
	assert.Equal(t, KindFailed, KindOf(err))
	assert.ErrorContains(t, err, "resolver exploded")
	assert.Equal(t, []string{"error", "finish"}, rec.Events())
}

func TestTask_BindFailureReportsError(t *testing.T) {
	t.Parallel()

	e := newEnv()
	target := newTarget("v")
	target.bindErr = errors.New("view detached")
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a"}), target, e.deps)

	err := task.Run(context.Background())
	assert.Equal(t, KindFailed, KindOf(err))
	assert.Equal(t, []string{"error", "finish"}, rec.Events())
}

func TestTask_NilBufferIsNotAFailure(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.gen.nilBuffer = true
	target := newTarget("v")
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a"}), target, e.deps)

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, []string{"success", "finish"}, rec.Events())
	assert.Equal(t, []*cache.Entry{nil}, target.bindings())
	assert.False(t, e.cache.Contains("a"))
}

func TestTask_ExitTasksEarly(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.owner.exitEarly = true
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps)

	err := task.Run(context.Background())
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, []string{"finish"}, rec.Events())
	assert.Zero(t, e.res.calls.Load())
}

func TestTask_ContextCancellation(t *testing.T) {
	t.Parallel()

	e := newEnv()
	rec := newRecorder()
	task := NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := task.Run(ctx)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, []string{"finish"}, rec.Events())
}

func TestTask_FadeAnimation(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.deps.Config.FadeAnimationEnabled = true
	e.deps.Config.FadeAnimationForCachedImages = false

	fresh := newTarget("a")
	require.NoError(t, NewTask(&Params{Path: "a"}, fresh, e.deps).Run(context.Background()))

	cached := newTarget("b")
	require.NoError(t, NewTask(&Params{Path: "a"}, cached, e.deps).Run(context.Background()))

	override := newTarget("c")
	p := &Params{Path: "a", FadeAnimationForCached: Bool(true)}
	require.NoError(t, NewTask(p, override, e.deps).Run(context.Background()))

	assert.Equal(t, []bool{true}, fresh.animated)
	assert.Equal(t, []bool{false}, cached.animated)
	assert.Equal(t, []bool{true}, override.animated)
}

func TestTask_TransformationsReachGenerator(t *testing.T) {
	t.Parallel()

	e := newEnv()
	chain := []Transformation{namedTransform("gray"), namedTransform("blur")}
	p := &Params{Path: "a", Transformations: chain, Loading: Placeholder{Path: "l.png"}}
	task := NewTask(p, newTarget("v"), e.deps)

	assert.Equal(t, "a;gray;blur", task.Key())
	assert.Equal(t, "a", task.Keys().WithoutTransformations)
	assert.Equal(t, "l.png", task.Keys().LoadingPlaceholder)

	require.NoError(t, task.Run(context.Background()))
	require.Len(t, e.gen.transforms, 2)
	assert.Nil(t, e.gen.transforms[0], "placeholders are not transformed by default")
	assert.Equal(t, chain, e.gen.transforms[1])
}

func TestTask_DownsampleDIPIsConverted(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.deps.Config.DPIToPixels = func(v int) int { return v * 3 }
	task := NewTask(&Params{Path: "a", Downsample: Downsample{Width: 10, Height: 20, DIP: true}}, nil, e.deps)

	assert.Equal(t, "a;30x60", task.Key())
	assert.Equal(t, Downsample{Width: 30, Height: 60}, task.downsamplePixels())
}

func TestTask_Dispatcher(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		e := newEnv()
		d := &fakeDispatcher{}
		e.deps.Dispatcher = d
		e.deps.Config.ExecuteCallbacksOnDispatcher = true

		rec := newRecorder()
		require.NoError(t, NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps).Run(context.Background()))
		assert.Equal(t, []string{"success", "finish"}, rec.Events())
		assert.Equal(t, int32(1), d.posts.Load())
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		e := newEnv()
		e.gen.err = errors.New("bad")
		d := &fakeDispatcher{}
		e.deps.Dispatcher = d
		e.deps.Config.ExecuteCallbacksOnDispatcher = true

		rec := newRecorder()
		_ = NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps).Run(context.Background())
		assert.Equal(t, []string{"error", "finish"}, rec.Events())
		assert.Equal(t, int32(2), d.posts.Load())
	})

	t.Run("rejected runs inline", func(t *testing.T) {
		t.Parallel()
		e := newEnv()
		e.deps.Dispatcher = &fakeDispatcher{reject: true}
		e.deps.Config.ExecuteCallbacksOnDispatcher = true

		rec := newRecorder()
		require.NoError(t, NewTask(rec.attach(&Params{Path: "a"}), newTarget("v"), e.deps).Run(context.Background()))
		assert.Equal(t, []string{"success", "finish"}, rec.Events())
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		e := newEnv()
		d := &fakeDispatcher{}
		e.deps.Dispatcher = d

		require.NoError(t, NewTask(newRecorder().attach(&Params{Path: "a"}), newTarget("v"), e.deps).Run(context.Background()))
		assert.Zero(t, d.posts.Load())
	})
}

func TestTask_ParamsReleasedOnFinish(t *testing.T) {
	t.Parallel()

	e := newEnv()
	owned := &closeCounter{}
	p := &Params{Path: "a"}
	p.Own(owned)

	require.NoError(t, NewTask(p, newTarget("v"), e.deps).Run(context.Background()))
	assert.Equal(t, int32(1), owned.closed.Load())
}

func TestNewTask_PanicsWithoutDeps(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewTask(&Params{}, nil, Deps{}) })
	assert.Panics(t, func() { NewTask(nil, nil, newEnv().deps) })
}
