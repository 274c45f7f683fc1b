package tasksched

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when the pending queue already
	// holds MaxQueueSize tasks. The task was not accepted.
	ErrQueueFull = errors.New("tasksched: queue is full")

	// ErrPoolTerminated rejects tasks still outstanding at Terminate and
	// any submission made afterwards.
	ErrPoolTerminated = errors.New("tasksched: pool terminated")

	// ErrQueueCleared rejects pending tasks removed by Clear.
	ErrQueueCleared = errors.New("tasksched: queue cleared")

	ErrNilHandler = errors.New("tasksched: handler is nil")

	ErrTaskTimeout     = errors.New("tasksched: task timed out")
	ErrWorkerExecution = errors.New("tasksched: worker execution failed")
	ErrWorkerCrash     = errors.New("tasksched: worker crashed")
)

// TaskTimeoutError is returned once a task ran out of retries and its last
// attempt exceeded the timeout.
type TaskTimeoutError struct {
	TaskID   uint64
	Attempts int
	Timeout  time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("tasksched: task %d timed out after %s (%d attempts)", e.TaskID, e.Timeout, e.Attempts)
}

func (e *TaskTimeoutError) Is(target error) bool { return target == ErrTaskTimeout }

// WorkerExecutionError is returned once a task ran out of retries and its
// last attempt returned an error. It unwraps to that error.
type WorkerExecutionError struct {
	TaskID   uint64
	Attempts int
	Err      error
}

func (e *WorkerExecutionError) Error() string {
	return fmt.Sprintf("tasksched: task %d failed after %d attempts: %v", e.TaskID, e.Attempts, e.Err)
}

func (e *WorkerExecutionError) Is(target error) bool { return target == ErrWorkerExecution }
func (e *WorkerExecutionError) Unwrap() error        { return e.Err }

// WorkerCrashError rejects the task held by a worker that crashed.
// Crashes are never retried.
type WorkerCrashError struct {
	TaskID   uint64
	WorkerID string
	Panic    any
}

func (e *WorkerCrashError) Error() string {
	return fmt.Sprintf("tasksched: worker %s crashed running task %d: %v", e.WorkerID, e.TaskID, e.Panic)
}

func (e *WorkerCrashError) Is(target error) bool { return target == ErrWorkerCrash }
