package tasksched

import (
	"context"
	"sync"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
)

// Handler is the function executed by a worker for a task payload.
//
// Returning a non-nil error reports an application-level failure, which is
// retried within the task's budget. A panic is treated as a worker crash.
// The context is cancelled when the attempt times out or the scheduler is
// terminated.
type Handler[T, R any] func(ctx context.Context, payload T) (R, error)

// Future is the completion handle returned by Submit. It is settled
// exactly once.
type Future[R any] struct {
	id   uint64
	done chan struct{}
	once sync.Once
	val  R
	err  error
}

func newFuture[R any](id uint64) *Future[R] {
	return &Future[R]{id: id, done: make(chan struct{})}
}

// TaskID returns the id assigned to the task at submission.
func (f *Future[R]) TaskID() uint64 { return f.id }

// Done is closed once the task is settled.
func (f *Future[R]) Done() <-chan struct{} { return f.done }

// Get waits for the task result or for ctx to be done.
func (f *Future[R]) Get(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Err returns the settled error without blocking. It returns nil for a
// pending or successful task.
func (f *Future[R]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

func (f *Future[R]) resolve(v R) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

func (f *Future[R]) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

type task[T, R any] struct {
	id        uint64
	payload   T
	priority  int
	timeout   time.Duration
	retries   int
	retry     RetryPolicy
	createdAt time.Time
	ctx       context.Context
	future    *Future[R]

	// backoff is created on the first delayed retry.
	backoff *boff.Backoff

	// lastErr is the outcome of the latest failed attempt.
	lastErr error
}

func (t *task[T, R]) attempts() int { return t.retries + 1 }

func (t *task[T, R]) canRetry() bool { return t.retries < t.retry.MaxRetries }

func (t *task[T, R]) nextDelay() time.Duration {
	if !t.retry.delayed() {
		return 0
	}
	if t.backoff == nil {
		t.backoff = t.retry.newBackoff(int64(t.id))
	}
	return t.backoff.Next()
}
