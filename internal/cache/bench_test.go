package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/voocel/toolrt/internal/toolapi"
)

// BenchmarkGetOrComputeHotKey exercises the singleflight coalescing path
// under sustained concurrent load against a single key, the Go counterpart
// to the source's cache_stress_test.py.
func BenchmarkGetOrComputeHotKey(b *testing.B) {
	e, err := New(Options{MemorySize: 128})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	compute := func() (*toolapi.Result, error) {
		return &toolapi.Result{Success: true}, nil
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := e.GetOrCompute(ctx, "bench", "hot-key", "v1", time.Minute, compute); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkGetOrComputeDistinctKeys measures throughput when every call
// misses, the counterpart to benchmark_batch_vs_single.py's single-call
// baseline against which batched dispatch is compared.
func BenchmarkGetOrComputeDistinctKeys(b *testing.B) {
	e, err := New(Options{MemorySize: b.N + 1})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	compute := func() (*toolapi.Result, error) {
		return &toolapi.Result{Success: true}, nil
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", i)
		if _, err := e.GetOrCompute(ctx, "bench", key, "v1", time.Minute, compute); err != nil {
			b.Fatal(err)
		}
	}
}
