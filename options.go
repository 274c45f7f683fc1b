package tasksched

import (
	"math"
	"runtime"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxWorkers     = 4
	DefaultInitialWorkers = 2
	DefaultMaxQueueSize   = 1000
	DefaultWorkerTimeout  = 30 * time.Second

	tracerName = "github.com/azargarov/tasksched"
)

// Options configure a Scheduler.
//
// All zero values are replaced with sensible defaults in FillDefaults.
type Options struct {
	// MaxWorkers bounds the number of live workers. Workers are created
	// lazily up to this cap and never scaled down while idle.
	//
	// A worker destroyed on timeout is replaced at once, but its handler
	// keeps running until it returns. A handler that ignores ctx can
	// therefore push the number of running handlers above MaxWorkers.
	MaxWorkers int

	// InitialWorkers are created eagerly so the first submissions do not
	// pay for worker startup. Capped at MaxWorkers.
	InitialWorkers int

	// MaxQueueSize bounds the number of pending tasks at submission time.
	MaxQueueSize int

	// WorkerTimeout is the default wall-clock limit of a single attempt.
	// A worker that does not answer within it is presumed hung and destroyed.
	WorkerTimeout time.Duration

	// Retry is the default retry policy for submitted tasks.
	Retry RetryPolicy

	// AgingRate is the number of priority points a pending task gains per
	// second of waiting. Zero keeps strict priority order.
	AgingRate float64

	// PinWorkers locks every worker goroutine to an OS thread pinned to
	// a single CPU. Linux only; ignored elsewhere.
	PinWorkers bool

	Logger lg.ZLogger
	Tracer trace.Tracer

	// OnTaskError is called for every failed attempt, including the ones
	// that are retried afterwards.
	OnTaskError func(error)

	// OnWorkerCrash is called when a worker faults outside the normal
	// result path.
	//
	// Both hooks run on the coordinator goroutine. They must return quickly
	// and must not call back into the Scheduler.
	OnWorkerCrash func(error)
}

func (o *Options) FillDefaults() {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = runtime.GOMAXPROCS(0)
		if o.MaxWorkers <= 0 {
			o.MaxWorkers = DefaultMaxWorkers
		}
	}
	if o.InitialWorkers <= 0 {
		o.InitialWorkers = DefaultInitialWorkers
	}
	if o.InitialWorkers > o.MaxWorkers {
		o.InitialWorkers = o.MaxWorkers
	}
	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = DefaultMaxQueueSize
	}
	if o.WorkerTimeout <= 0 {
		o.WorkerTimeout = DefaultWorkerTimeout
	}
	if o.Retry.MaxRetries == 0 {
		o.Retry.MaxRetries = DefaultMaxRetries
	}
	if o.Retry.MaxRetries < 0 {
		o.Retry.MaxRetries = 0
	}
	if o.AgingRate < 0 || math.IsNaN(o.AgingRate) || math.IsInf(o.AgingRate, 0) {
		o.AgingRate = 0
	}
	if o.Logger == nil {
		o.Logger = lg.Discard
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
}

// SubmitOption overrides per-task settings at submission time.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	priority int
	timeout  time.Duration
	retry    RetryPolicy
}

// WithPriority sets the task priority. Higher values are dispatched first.
func WithPriority(p int) SubmitOption {
	return func(c *submitConfig) { c.priority = p }
}

// WithTimeout overrides Options.WorkerTimeout for one task.
func WithTimeout(d time.Duration) SubmitOption {
	return func(c *submitConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries overrides the retry budget for one task. Zero disables
// retries.
func WithMaxRetries(n int) SubmitOption {
	return func(c *submitConfig) { c.retry.MaxRetries = max(n, 0) }
}

// WithRetryBackoff delays every retry of the task by a jittered,
// exponentially growing interval between initial and limit.
func WithRetryBackoff(initial, limit time.Duration) SubmitOption {
	return func(c *submitConfig) {
		c.retry.Initial = initial
		c.retry.Max = limit
	}
}
