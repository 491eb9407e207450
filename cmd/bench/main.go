// Command bench runs a synthetic decode/display workload against the memory
// cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/generator"
	pmet "github.com/IvanBrykalov/imageloader/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		highMB = flag.Int("high", 64, "reuse pool high watermark (MiB)")
		lowMB  = flag.Int("low", 48, "reuse pool low watermark (MiB)")
		exact  = flag.Bool("exact", false, "only reuse buffers with identical dimensions")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "share of requests served as lookups [0..100]")
		showPct  = flag.Int("show", 30, "share of hits that are displayed then hidden [0..100]")

		keys    = flag.Int("keys", 100_000, "keyspace size")
		maxSide = flag.Int("max_side", 256, "largest generated bitmap side (px)")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "imageloader", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	opt := cache.Options{
		HighWatermark: int64(*highMB) << 20,
		LowWatermark:  int64(*lowMB) << 20,
		Metrics:       metrics,
	}
	if *exact {
		opt.CanReuse = cache.ExactReuse
	}
	c := cache.New(opt)

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	showPctVal := *showPct
	keysMax := uint64(*keys - 1)
	side := *maxSide
	if side < 1 {
		side = 1
	}
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var lookups, hits, decodes, reused, shown, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(*seed + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			for ctx.Err() == nil {
				atomic.AddUint64(&total, 1)
				n := localZipf.Uint64()
				k := "img:" + strconv.FormatUint(n, 10)

				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&lookups, 1)
					if _, ok := c.Get(k); ok {
						atomic.AddUint64(&hits, 1)
						if int(localR.Int31n(100)) < showPctVal {
							atomic.AddUint64(&shown, 1)
							c.OnEntryDisplayed(k)
							runtime.Gosched()
							c.OnEntryHidden(k)
						}
						continue
					}
				}

				// "Decode": the same key always has the same dimensions.
				wPx := 1 + int(n%uint64(side))
				hPx := 1 + int((n/uint64(side))%uint64(side))
				atomic.AddUint64(&decodes, 1)

				var bm *generator.Bitmap
				if e, ok := c.GetReusable(cache.ReuseRequest{Width: wPx, Height: hPx}); ok {
					if b, ok := e.Buffer.(*generator.Bitmap); ok && b.Reconfigure(wPx, hPx) {
						bm = b
						atomic.AddUint64(&reused, 1)
					}
					e.Release()
				}
				if bm == nil {
					bm = generator.NewBitmap(wPx, hPx)
				}
				c.Add(k, cache.NewEntry(bm, cache.ImageInfo{Key: k, Width: wPx, Height: hPx}))
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	lookupsN := atomic.LoadUint64(&lookups)
	hitsN := atomic.LoadUint64(&hits)
	decodesN := atomic.LoadUint64(&decodes)
	reusedN := atomic.LoadUint64(&reused)

	hitRate, reuseRate := 0.0, 0.0
	if lookupsN > 0 {
		hitRate = float64(hitsN) / float64(lookupsN) * 100
	}
	if decodesN > 0 {
		reuseRate = float64(reusedN) / float64(decodesN) * 100
	}

	st := c.Stats()
	fmt.Printf("high=%dMiB low=%dMiB exact=%t workers=%d keys=%d dur=%v seed=%d\n",
		*highMB, *lowMB, *exact, workersN, *keys, elapsed, *seed)
	fmt.Printf("ops=%d (%.0f ops/s)  lookups=%d  decodes=%d  displays=%d\n",
		ops, float64(ops)/elapsed.Seconds(), lookupsN, decodesN, atomic.LoadUint64(&shown))
	fmt.Printf("hit-rate=%.2f%%  reuse-rate=%.2f%%  evictions=%d\n", hitRate, reuseRate, st.Evictions)
	fmt.Printf("displayed=%d pooled=%d pool_bytes=%d\n", st.Displayed, st.Pooled, st.PoolBytes)
}
