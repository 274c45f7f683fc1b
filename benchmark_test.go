package tasksched_test

import (
	"context"
	"math/rand"
	"os"
	"runtime"
	"slices"
	"strconv"
	"testing"
	"time"

	ts "github.com/azargarov/tasksched"
)

func getenvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func benchOptions(workers int) ts.Options {
	return ts.Options{
		MaxWorkers:     workers,
		InitialWorkers: workers,
		MaxQueueSize:   1 << 20,
		WorkerTimeout:  time.Minute,
		Retry:          ts.RetryPolicy{MaxRetries: -1},
	}
}

// BenchmarkSubmit measures the submission path alone: the scheduler is
// paused so nothing is dispatched.
func BenchmarkSubmit(b *testing.B) {
	s := ts.New[int, int](func(_ context.Context, n int) (int, error) { return n, nil }, benchOptions(1), &ts.NoopMetrics{})
	defer s.Stop()
	s.Pause()

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Submit(ctx, i, ts.WithPriority(i%8)); err != nil {
			b.Fatalf("submit: %v", err)
		}
	}
	b.StopTimer()
	s.Clear()
}

func BenchmarkThroughput(b *testing.B) {
	workers := []int{1, 4, runtime.GOMAXPROCS(0)}
	for _, w := range workers {
		b.Run("workers="+strconv.Itoa(w), func(b *testing.B) {
			s := ts.New[int, int](func(_ context.Context, n int) (int, error) {
				return n + 1, nil
			}, benchOptions(w), &ts.NoopMetrics{})
			defer s.Stop()

			ctx := context.Background()
			futures := make([]*ts.Future[int], b.N)

			b.ReportAllocs()
			b.ResetTimer()
			start := time.Now()
			for i := 0; i < b.N; i++ {
				f, err := s.Submit(ctx, i)
				if err != nil {
					b.Fatalf("submit: %v", err)
				}
				futures[i] = f
			}
			for _, f := range futures {
				if _, err := f.Get(ctx); err != nil {
					b.Fatalf("task %d: %v", f.TaskID(), err)
				}
			}
			secs := time.Since(start).Seconds()
			b.ReportMetric(float64(b.N)/secs/1e3, "kj/s")
		})
	}
}

// BenchmarkLatency reports submit-to-start percentiles under a bounded
// number of in-flight tasks with random priorities.
func BenchmarkLatency(b *testing.B) {
	workers := getenvInt("WORKERS", runtime.GOMAXPROCS(0))
	maxPrio := getenvInt("MAXPRIO", 16)

	latencies := make([]int64, b.N)
	s := ts.New[int, time.Time](func(_ context.Context, i int) (time.Time, error) {
		return time.Now(), nil
	}, benchOptions(workers), &ts.NoopMetrics{})
	defer s.Stop()

	ctx := context.Background()
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	inflight := make([]*ts.Future[time.Time], 0, workers*32)
	submitted := make([]time.Time, 0, workers*32)

	flush := func(base int) {
		for k, f := range inflight {
			started, err := f.Get(ctx)
			if err != nil {
				b.Fatalf("task %d: %v", f.TaskID(), err)
			}
			latencies[base+k] = started.Sub(submitted[k]).Nanoseconds()
		}
		inflight = inflight[:0]
		submitted = submitted[:0]
	}

	b.ResetTimer()
	base := 0
	for i := 0; i < b.N; i++ {
		submitted = append(submitted, time.Now())
		f, err := s.Submit(ctx, i, ts.WithPriority(r.Intn(maxPrio)))
		if err != nil {
			b.Fatalf("submit: %v", err)
		}
		inflight = append(inflight, f)
		if len(inflight) == cap(inflight) {
			flush(base)
			base = i + 1
		}
	}
	flush(base)
	b.StopTimer()

	slices.Sort(latencies)
	pct := func(p float64) float64 {
		return float64(latencies[int(p*float64(len(latencies)-1))]) / 1e3
	}
	b.ReportMetric(pct(0.50), "p50_us")
	b.ReportMetric(pct(0.95), "p95_us")
	b.ReportMetric(pct(0.99), "p99_us")
}
