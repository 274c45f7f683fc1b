package tasksched_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	ts "github.com/azargarov/tasksched"
)

func newTestScheduler[T, R any](t *testing.T, h ts.Handler[T, R], opts ts.Options) (*ts.Scheduler[T, R], *ts.AtomicMetrics) {
	t.Helper()

	m := &ts.AtomicMetrics{}
	s := ts.New[T, R](h, opts, m)
	t.Cleanup(s.Stop)
	return s, m
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not satisfied before timeout")
}

func await[R any](t *testing.T, f *ts.Future[R]) (R, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Get(ctx)
	if err == context.DeadlineExceeded {
		t.Fatalf("task %d was not settled in time", f.TaskID())
	}
	return v, err
}

func mustSubmit[T, R any](t *testing.T, s *ts.Scheduler[T, R], payload T, opts ...ts.SubmitOption) *ts.Future[R] {
	t.Helper()

	f, err := s.Submit(context.Background(), payload, opts...)
	if err != nil {
		t.Fatalf("submit %v: %v", payload, err)
	}
	return f
}

// gate is a handler whose calls block until released.
type gate struct {
	started chan int
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan int, 64), release: make(chan struct{})}
}

func (g *gate) handle(ctx context.Context, n int) (int, error) {
	g.started <- n
	select {
	case <-g.release:
		return n * 2, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (g *gate) expectStarted(t *testing.T, want int) []int {
	t.Helper()

	got := make([]int, 0, want)
	for len(got) < want {
		select {
		case n := <-g.started:
			got = append(got, n)
		case <-time.After(time.Second):
			t.Fatalf("started %d tasks; want %d", len(got), want)
		}
	}
	return got
}

func (g *gate) expectIdle(t *testing.T) {
	t.Helper()

	select {
	case n := <-g.started:
		t.Fatalf("task %d started unexpectedly", n)
	case <-time.After(30 * time.Millisecond):
	}
}
