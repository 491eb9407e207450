// Command imgload loads images through the full pipeline: memory cache,
// resolvers, decoding, transformations and binding to file-backed views.
//
// Usage:
//
//	imgload [flags] image...
//
// Environment variables (see internal/config) set the defaults; flags win.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/generator"
	"github.com/IvanBrykalov/imageloader/internal/config"
	"github.com/IvanBrykalov/imageloader/internal/logger"
	"github.com/IvanBrykalov/imageloader/loader"
	pmet "github.com/IvanBrykalov/imageloader/metrics/prom"
	"github.com/IvanBrykalov/imageloader/resolver"
)

func main() {
	cfg := config.Load()

	var (
		width     = flag.Int("width", 0, "downsample width (0 = unconstrained)")
		height    = flag.Int("height", 0, "downsample height (0 = unconstrained)")
		dip       = flag.Bool("dip", false, "treat width/height as density-independent units")
		transform = flag.String("transform", "", "comma-separated chain, e.g. grayscale,blur:2,tint:#ff8800:0.3")
		loading   = flag.String("loading", "", "loading placeholder path")
		errorImg  = flag.String("error", "", "error placeholder path")
		out       = flag.String("out", "", "directory for rendered PNGs (empty = don't write)")
		passes    = flag.Int("passes", 2, "number of load passes; later passes hit the memory cache")
		root      = flag.String("root", "", "resolve relative paths against this directory")
		workers   = flag.Int("workers", cfg.Workers, "concurrent pipelines")
		metrics   = flag.String("metrics", cfg.MetricsAddr, "serve Prometheus metrics at addr (empty = disabled)")
		logLevel  = flag.String("log-level", cfg.LogLevel, "debug | info | warn | error")
	)
	flag.Parse()

	log, err := logger.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if flag.NArg() == 0 {
		log.Fatal("no images given")
	}
	chain, err := generator.ParseList(*transform)
	if err != nil {
		log.Fatal("invalid transformation chain", zap.Error(err))
	}
	if *out != "" {
		if err := os.MkdirAll(*out, 0o755); err != nil {
			log.Fatal("failed to create output directory", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	c := cache.New(cache.Options{
		HighWatermark: cfg.HighWatermark(),
		LowWatermark:  cfg.LowWatermark(),
		Metrics:       pmet.New(reg, "imageloader", "memory_cache", nil),
		Logger:        log,
		Verbose:       cfg.VerboseCache,
		OnEvict: func(key string, e *cache.Entry, reason cache.EvictReason) {
			if bm, ok := e.Buffer.(*generator.Bitmap); ok && reason != cache.EvictExplicit {
				bm.Recycle()
			}
		},
	})
	if *metrics != "" {
		srv := &http.Server{Addr: *metrics, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("serving metrics", zap.String("addr", *metrics))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	loop := newMainLoop()
	defer loop.Close()

	svc := loader.NewService(loader.ServiceOptions{
		Cache:      c,
		Resolvers:  resolver.Factory{File: resolver.File{Root: *root}},
		Generator:  generator.New(generator.Options{Cache: c, AutoOrient: true, Logger: log}),
		Dispatcher: loop,
		Workers:    *workers,
		Config: loader.Config{
			FadeAnimationEnabled:           cfg.FadeAnimation,
			FadeAnimationForCachedImages:   cfg.FadeAnimationCached,
			TransformPlaceholders:          cfg.TransformPlaceholders,
			ExecuteCallbacksOnDispatcher:   cfg.CallbacksOnDispatcher,
			ClearCacheOnOutOfMemory:        cfg.ClearCacheOnOOM,
			VerboseLoadingCancelledLogging: cfg.VerboseCancel,
			DPIToPixels:                    cfg.DPIToPixels,
			Logger:                         log,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		svc.SetExitTasksEarly(true)
		svc.CancelAll()
	}()

	views := make([]*fileTarget, flag.NArg())
	for i, path := range flag.Args() {
		views[i] = newFileTarget(path, *out, c, log)
	}

	for pass := 1; pass <= *passes && ctx.Err() == nil; pass++ {
		start := time.Now()
		for i, path := range flag.Args() {
			p := &loader.Params{
				Path:            path,
				Downsample:      loader.Downsample{Width: *width, Height: *height, DIP: *dip},
				Transformations: chain,
				Loading:         loader.Placeholder{Path: *loading},
				Error:           loader.Placeholder{Path: *errorImg},
				OnSuccess: func(info cache.ImageInfo, res loader.Result) {
					log.Info("image loaded",
						zap.Int("pass", pass),
						zap.String("key", info.Key),
						zap.Stringer("result", res),
						zap.Int("original_width", info.OriginalWidth),
						zap.Int("original_height", info.OriginalHeight),
					)
				},
				OnError: func(err error) {
					log.Warn("image failed", zap.Int("pass", pass), zap.String("path", path), zap.Error(err))
				},
			}
			svc.Load(ctx, p, views[i])
		}
		svc.Wait()

		// Going off screen hands the buffers back to the reuse pool.
		for _, v := range views {
			v.Hide()
		}
		st := c.Stats()
		log.Info("pass finished",
			zap.Int("pass", pass),
			zap.Duration("elapsed", time.Since(start)),
			zap.Uint64("hits", st.Hits),
			zap.Uint64("misses", st.Misses),
			zap.Uint64("reuse_hits", st.ReuseHits),
			zap.Uint64("evictions", st.Evictions),
			zap.Int("pooled", st.Pooled),
			zap.Int64("pool_bytes", st.PoolBytes),
		)
	}
}
