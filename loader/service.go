package loader

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/internal/singleflight"
)

// ServiceOptions configures a Service. Resolvers and Generator are required.
type ServiceOptions struct {
	// Cache is the shared memory cache. Nil => cache.New with defaults.
	Cache      cache.Cache
	Resolvers  ResolverFactory
	Generator  Generator
	Dispatcher Dispatcher
	Config     Config

	// Workers bounds concurrently running pipelines. <=0 => runtime.NumCPU().
	Workers int

	// DisableDedupe turns off coalescing of identical in-flight loads.
	DisableDedupe bool
}

// Service owns tasks: it tracks the pending set, cancels superseded work
// for the same target and runs pipelines on a bounded worker pool.
type Service struct {
	opt     ServiceOptions
	sem     *semaphore.Weighted
	flights *singleflight.Group[string, *produced]
	log     *zap.Logger

	mu      sync.Mutex
	pending map[*Task]struct{}

	exitEarly atomic.Bool
	wg        sync.WaitGroup
}

var _ Owner = (*Service)(nil)

// NewService constructs a Service. It panics if Resolvers or Generator is nil.
func NewService(opt ServiceOptions) *Service {
	if opt.Resolvers == nil || opt.Generator == nil {
		panic("loader: Resolvers and Generator are required")
	}
	if opt.Config.Logger == nil {
		opt.Config.Logger = zap.NewNop()
	}
	if opt.Cache == nil {
		opt.Cache = cache.New(cache.Options{Logger: opt.Config.Logger})
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.NumCPU()
	}

	s := &Service{
		opt:     opt,
		sem:     semaphore.NewWeighted(int64(opt.Workers)),
		log:     opt.Config.Logger.Named("service"),
		pending: make(map[*Task]struct{}),
	}
	if !opt.DisableDedupe {
		s.flights = &singleflight.Group[string, *produced]{}
	}
	return s
}

// Cache returns the shared memory cache.
func (s *Service) Cache() cache.Cache { return s.opt.Cache }

// NewTask builds a task wired to this service without scheduling it.
func (s *Service) NewTask(p *Params, target Target) *Task {
	return NewTask(p, target, Deps{
		Cache:      s.opt.Cache,
		Resolvers:  s.opt.Resolvers,
		Generator:  s.opt.Generator,
		Owner:      s,
		Dispatcher: s.opt.Dispatcher,
		Config:     s.opt.Config,
		flights:    s.flights,
	})
}

// Load starts a request for target. Pending tasks rendering into the same
// native view are cancelled. A memory-cache hit completes synchronously;
// otherwise the pipeline is scheduled on the worker pool. The returned task
// may be used to cancel the request.
func (s *Service) Load(ctx context.Context, p *Params, target Target) *Task {
	t := s.NewTask(p, target)
	s.cancelSuperseded(t)

	if hit, err := t.TryLoadFromMemoryCache(ctx); hit || err != nil {
		return t
	}
	s.schedule(ctx, t)
	return t
}

// Preload warms the caches for p without a target.
func (s *Service) Preload(ctx context.Context, p *Params) *Task {
	p.Preload = true
	t := s.NewTask(p, nil)
	s.schedule(ctx, t)
	return t
}

func (s *Service) schedule(ctx context.Context, t *Task) {
	s.mu.Lock()
	s.pending[t] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			// Context ended while queued; Run still fires finish.
			t.Cancel()
			_ = t.Run(ctx)
			return
		}
		defer s.sem.Release(1)
		if err := t.Run(ctx); err != nil && KindOf(err) != KindCancelled {
			s.log.Debug("task failed", zap.String("key", t.Key()), zap.Error(err))
		}
	}()
}

func (s *Service) cancelSuperseded(t *Task) {
	s.mu.Lock()
	var stale []*Task
	for other := range s.pending {
		if other != t && t.UsesSameNativeHandle(other) {
			stale = append(stale, other)
		}
	}
	s.mu.Unlock()

	for _, other := range stale {
		other.CancelIfNeeded()
	}
}

// RemovePending drops t from the pending set. Safe to call repeatedly.
func (s *Service) RemovePending(t *Task) {
	s.mu.Lock()
	delete(s.pending, t)
	s.mu.Unlock()
}

// Pending reports the number of scheduled tasks that have not finished.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ExitTasksEarly reports the global fast-fail flag.
func (s *Service) ExitTasksEarly() bool { return s.exitEarly.Load() }

// SetExitTasksEarly makes tasks that have not started running finish as
// cancelled, e.g. while the host is being suspended.
func (s *Service) SetExitTasksEarly(v bool) { s.exitEarly.Store(v) }

// CancelAll cancels every pending task.
func (s *Service) CancelAll() {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.pending))
	for t := range s.pending {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.CancelIfNeeded()
	}
}

// Wait blocks until every scheduled pipeline has returned.
func (s *Service) Wait() { s.wg.Wait() }
