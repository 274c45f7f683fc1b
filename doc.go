// Package tasksched provides a priority task scheduler running submitted
// work on a bounded, lazily grown set of workers.
//
// Architecture overview
//
// The scheduler is composed of three loosely coupled layers:
//
//  1. Coordination (Scheduler)
//     A single coordinator goroutine owns every piece of bookkeeping:
//     the pending queue, the available and busy worker sets and the
//     table of in-flight assignments. It reacts to one event at a time
//     (a submission, a worker reply, a timeout, a due retry or a control
//     request), so no locks guard the scheduling state.
//
//  2. Execution (workers)
//     A worker is a goroutine receiving one job at a time on its inbox
//     and answering with exactly one message: a result, an error, or a
//     crash. Workers share no state with the coordinator.
//
//  3. Task lifecycle
//     A task carries its payload, priority, timeout and retry budget and
//     is settled exactly once through its Future.
//
// Queue design
//
// Pending tasks are kept in a binary heap ordered by priority, highest
// first. Ties leave in arrival order. A retried task is re-queued as a
// fresh arrival. Priority only decides queue position: a running task is
// never preempted.
//
// Optional aging raises a waiting task's effective priority linearly with
// its age. All queued tasks age at the same rate, so the ordering key is
// fixed at insertion and the heap never needs rebuilding.
//
// Worker growth
//
// A few workers are created up front. Each dispatch step assigns queued
// tasks to idle workers and, if tasks are still waiting, creates at most
// one more worker up to Options.MaxWorkers. Idle workers are never scaled
// down; the pool only shrinks when a worker is destroyed, and a replacement
// is spawned right away.
//
// Error handling
//
// Attempts can end in four ways:
//
//   - Success: the Future resolves with the handler's result.
//   - Error: the handler returned an error. The task is retried while its
//     budget allows, then rejected with a *WorkerExecutionError.
//   - Timeout: the handler did not answer in time. The worker is presumed
//     hung and destroyed, the task is retried like an error, then rejected
//     with a *TaskTimeoutError.
//   - Crash: the handler panicked. The task is rejected at once with a
//     *WorkerCrashError, regardless of its retry budget.
//
// Terminate rejects everything still outstanding with ErrPoolTerminated.
// Errors never stop the scheduler.
//
// CPU pinning
//
// On Linux, workers may optionally be pinned to specific CPUs.
// When enabled, workers are locked to OS threads and restricted
// to run on a single CPU core.
package tasksched
