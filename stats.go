package tasksched

import "time"

// Stats is a point-in-time snapshot of the scheduler.
//
// Counters are cumulative; they never influence scheduling.
type Stats struct {
	TotalWorkers     int
	AvailableWorkers int
	BusyWorkers      int

	QueueLength    int
	DelayedRetries int
	ActiveTasks    int

	// WorkerUtilization is BusyWorkers/TotalWorkers*100, or 0 with no workers.
	WorkerUtilization float64

	TasksCompleted uint64
	TasksErrored   uint64

	TotalExecutionTime   time.Duration
	AverageExecutionTime time.Duration

	// OldestPending is how long the oldest queued task has been waiting.
	OldestPending time.Duration

	Paused     bool
	Terminated bool
}

// WorkerStat describes one live worker.
type WorkerStat struct {
	ID   string
	Busy bool

	// Completed counts the attempts this worker answered with a result or
	// an error.
	Completed uint64
	Age       time.Duration
}

func utilization(busy, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(busy) / float64(total) * 100
}

func averageExecution(total time.Duration, completed uint64) time.Duration {
	if completed == 0 {
		return 0
	}
	return total / time.Duration(completed)
}
