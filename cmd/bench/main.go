// Command bench runs a synthetic batch-load workload against the loader and
// exposes optional pprof/Prometheus endpoints.
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

	"github.com/IvanBrykalov/assetcache/loader"
	pmet "github.com/IvanBrykalov/assetcache/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("cap", 100_000, "cache capacity (0 = unbounded)")
		shards   = flag.Int("shards", 0, "number of shards (0=auto)")
		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "load worker goroutines")

		duration  = flag.Duration("duration", 10*time.Second, "benchmark duration")
		batchSize = flag.Int("batch", 64, "items per batch")
		keys      = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS     = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV     = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		loadDelay = flag.Duration("load_delay", 500*time.Microsecond, "simulated load latency")

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
	metrics := pmet.New(nil, "assetcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build loader ----
	var loads atomic.Int64
	l := loader.New[string](loader.Options[string]{
		Capacity: *capacity,
		Shards:   *shards,
		Workers:  *workers,
		Metrics:  metrics,
		Load: func(ctx context.Context, name string) (string, error) {
			loads.Add(1)
			if *loadDelay > 0 {
				select {
				case <-time.After(*loadDelay):
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			return "v:" + name, nil
		},
	})
	defer func() { _ = l.Close() }()

	// ---- Workload: Zipf-skewed batches, one at a time ----
	r := rand.New(rand.NewSource(*seed))
	zipf := rand.NewZipf(r, *zipfS, *zipfV, uint64(*keys-1))

	var batches, items, failed atomic.Int64
	cancel := l.Subscribe(func(s loader.BatchStats) {
		batches.Add(1)
		items.Add(int64(s.Requested))
		failed.Add(int64(s.Failed))
	})
	defer cancel()

	log.Printf("bench: %d-item batches over %d keys for %s", *batchSize, *keys, *duration)
	start := time.Now()
	stop := start.Add(*duration)
	names := make([]string, *batchSize)
	for time.Now().Before(stop) {
		for i := range names {
			names[i] = "k:" + strconv.FormatUint(zipf.Uint64(), 10)
		}
		done := make(chan struct{})
		if err := l.LoadNames(names, func(loader.BatchStats) { close(done) }); err != nil {
			log.Fatalf("LoadNames: %v", err)
		}
		<-done
	}
	elapsed := time.Since(start)

	// ---- Report ----
	st := l.Stats()
	hitRate := 0.0
	if st.Hits+st.Misses > 0 {
		hitRate = float64(st.Hits) / float64(st.Hits+st.Misses)
	}
	fmt.Printf("elapsed:        %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("batches:        %d (%.0f/s)\n", batches.Load(), float64(batches.Load())/elapsed.Seconds())
	fmt.Printf("items:          %d (%.0f/s)\n", items.Load(), float64(items.Load())/elapsed.Seconds())
	fmt.Printf("failed items:   %d\n", failed.Load())
	fmt.Printf("primitive runs: %d (deduped %.1f%%)\n", loads.Load(),
		100*(1-float64(loads.Load())/float64(items.Load())))
	fmt.Printf("hit rate:       %.1f%% (hits=%d misses=%d)\n", 100*hitRate, st.Hits, st.Misses)
	fmt.Printf("resident:       %d entries, evictions=%d\n", st.Resident, st.Evictions)
}
