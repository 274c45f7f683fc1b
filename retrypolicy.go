package tasksched

import (
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
)

const (
	DefaultMaxRetries = 2

	// minBackoff keeps the jittered backoff well above its degenerate range.
	minBackoff = time.Millisecond
)

// RetryPolicy describes how many times a failed or hung task is retried
// and how long to wait before re-queueing it.
//
// A zero Initial means retries are re-queued immediately.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	// A negative value disables retries.
	MaxRetries int

	// Initial is the first backoff duration.
	Initial time.Duration

	// Max is the cap for backoff duration.
	Max time.Duration
}

// GetDefaultRP returns a pointer to a default retry policy used by the scheduler.
// Useful in tests or when constructing a scheduler with the same defaults.
func GetDefaultRP() *RetryPolicy {
	rp := RetryPolicy{
		MaxRetries: DefaultMaxRetries,
	}
	return &rp
}

func (rp RetryPolicy) delayed() bool { return rp.Initial > 0 }

// newBackoff builds the per-task backoff sequence. The seed comes from the
// task id so that retries of different tasks do not march in lockstep.
func (rp RetryPolicy) newBackoff(seed int64) *boff.Backoff {
	initial := max(rp.Initial, minBackoff)
	limit := max(rp.Max, initial)
	return boff.New(initial, limit, time.Now().UnixNano()+seed)
}
