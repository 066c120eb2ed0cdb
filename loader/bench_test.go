package loader

import (
	"context"
	"strconv"
	"testing"
)

// warmLoader builds a loader with an instant load primitive and preloads
// half the keyspace so probes see a realistic hit-rate.
func warmLoader(b *testing.B, keys int) Loader[string] {
	b.Helper()
	l := New[string](Options[string]{
		Load: func(_ context.Context, name string) (string, error) {
			return "v:" + name, nil
		},
	})
	b.Cleanup(func() { _ = l.Close() })

	names := make([]string, keys/2)
	for i := range names {
		names[i] = "k:" + strconv.Itoa(i)
	}
	done := make(chan BatchStats, 1)
	if err := l.LoadNames(names, func(s BatchStats) { done <- s }); err != nil {
		b.Fatal(err)
	}
	<-done
	return l
}

// GetCached probes against a warm cache (RunParallel spawns GOMAXPROCS
// goroutines). String keys include strconv/concat costs, which is fine for
// an end-to-end benchmark.
func BenchmarkGetCached(b *testing.B) {
	const keys = 1 << 16
	l := warmLoader(b, keys)

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			// Mask to the warm half: every probe is a hit.
			l.GetCached("k:" + strconv.Itoa(i&(keys/2-1)))
			i++
		}
	})
}

// Synchronous Load against warm keys: the hit path never touches the worker
// pool, so this isolates shard lookup + promotion.
func BenchmarkLoad_Hit(b *testing.B) {
	const keys = 1 << 16
	l := warmLoader(b, keys)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = l.Load(ctx, "k:"+strconv.Itoa(i&(keys/2-1)))
			i++
		}
	})
}

// End-to-end batch throughput with an instant load primitive: measures
// registration, worker dispatch, delivery, and completion detection.
func BenchmarkLoadMany(b *testing.B) {
	l := New[string](Options[string]{
		Load: func(_ context.Context, name string) (string, error) {
			return "v:" + name, nil
		},
	})
	b.Cleanup(func() { _ = l.Close() })

	const perBatch = 64
	names := make([]string, perBatch)

	b.ReportAllocs()
	b.ResetTimer()

	done := make(chan BatchStats, 1)
	for i := 0; i < b.N; i++ {
		for j := range names {
			// Fresh names each batch: exercises the load path, not hits.
			names[j] = "k:" + strconv.Itoa(i*perBatch+j)
		}
		if err := l.LoadNames(names, func(s BatchStats) { done <- s }); err != nil {
			b.Fatal(err)
		}
		<-done
	}
}
