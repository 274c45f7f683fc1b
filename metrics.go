package tasksched

import (
	"sync/atomic"
	"time"
)

// MetricsPolicy defines hooks used by the scheduler to report task
// lifecycle events.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	// IncSubmitted counts accepted submissions.
	IncSubmitted()

	// IncRejected counts submissions refused with ErrQueueFull.
	IncRejected()

	// IncCompleted counts tasks settled successfully.
	IncCompleted()

	// IncErrored counts tasks settled with a final failure.
	IncErrored()

	// IncRetried counts re-queued attempts.
	IncRetried()

	// IncTimedOut counts attempts abandoned by the timeout path.
	IncTimedOut()

	// IncCrashed counts worker crashes.
	IncCrashed()

	// IncWorkersCreated counts spawned workers, replacements included.
	IncWorkersCreated()

	// ObserveExecution records the duration of one answered attempt.
	ObserveExecution(d time.Duration)
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	submitted      atomic.Uint64
	rejected       atomic.Uint64
	completed      atomic.Uint64
	errored        atomic.Uint64
	retried        atomic.Uint64
	timedOut       atomic.Uint64
	crashed        atomic.Uint64
	workersCreated atomic.Uint64

	_ [56]byte // padding to avoid false sharing

	execNanos atomic.Int64
}

func (m *AtomicMetrics) IncSubmitted()      { m.submitted.Add(1) }
func (m *AtomicMetrics) IncRejected()       { m.rejected.Add(1) }
func (m *AtomicMetrics) IncCompleted()      { m.completed.Add(1) }
func (m *AtomicMetrics) IncErrored()        { m.errored.Add(1) }
func (m *AtomicMetrics) IncRetried()        { m.retried.Add(1) }
func (m *AtomicMetrics) IncTimedOut()       { m.timedOut.Add(1) }
func (m *AtomicMetrics) IncCrashed()        { m.crashed.Add(1) }
func (m *AtomicMetrics) IncWorkersCreated() { m.workersCreated.Add(1) }

func (m *AtomicMetrics) ObserveExecution(d time.Duration) { m.execNanos.Add(int64(d)) }

func (m *AtomicMetrics) Submitted() uint64      { return m.submitted.Load() }
func (m *AtomicMetrics) Rejected() uint64       { return m.rejected.Load() }
func (m *AtomicMetrics) Completed() uint64      { return m.completed.Load() }
func (m *AtomicMetrics) Errored() uint64        { return m.errored.Load() }
func (m *AtomicMetrics) Retried() uint64        { return m.retried.Load() }
func (m *AtomicMetrics) TimedOut() uint64       { return m.timedOut.Load() }
func (m *AtomicMetrics) Crashed() uint64        { return m.crashed.Load() }
func (m *AtomicMetrics) WorkersCreated() uint64 { return m.workersCreated.Load() }

// ExecutionTime returns the summed duration of all answered attempts.
func (m *AtomicMetrics) ExecutionTime() time.Duration {
	return time.Duration(m.execNanos.Load())
}

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards
// all metric updates.
//
// It can be used when metrics collection is disabled and
// zero overhead is desired.
type NoopMetrics struct{}

func (m *NoopMetrics) IncSubmitted()                  {}
func (m *NoopMetrics) IncRejected()                   {}
func (m *NoopMetrics) IncCompleted()                  {}
func (m *NoopMetrics) IncErrored()                    {}
func (m *NoopMetrics) IncRetried()                    {}
func (m *NoopMetrics) IncTimedOut()                   {}
func (m *NoopMetrics) IncCrashed()                    {}
func (m *NoopMetrics) IncWorkersCreated()             {}
func (m *NoopMetrics) ObserveExecution(time.Duration) {}
