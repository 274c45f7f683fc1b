package tasksched

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// job is what the coordinator hands to a worker.
type job[T any] struct {
	taskID  uint64
	payload T
	ctx     context.Context
}

type msgKind int

const (
	msgResult msgKind = iota
	msgError
	msgCrash
)

// workerMsg is the only way a worker talks back to the coordinator.
type workerMsg[R any] struct {
	kind   msgKind
	w      string
	taskID uint64
	result R
	err    error
	panic  any
}

// worker is an isolated execution unit running one task at a time.
//
// Its bookkeeping (completed) is touched only by the coordinator.
type worker[T, R any] struct {
	id        string
	createdAt time.Time
	completed uint64
	cpu       int

	inbox chan job[T]
	quit  chan struct{}
}

func newWorker[T, R any](cpu int) *worker[T, R] {
	return &worker[T, R]{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		cpu:       cpu,
		inbox:     make(chan job[T], 1),
		quit:      make(chan struct{}),
	}
}

// run executes jobs until the worker is destroyed or it crashes.
func (w *worker[T, R]) run(h Handler[T, R], out chan<- workerMsg[R], done <-chan struct{}, pin bool, onPinErr func(error)) {
	if pin {
		runtime.LockOSThread()
		if err := PinToCPU(w.cpu); err != nil && onPinErr != nil {
			onPinErr(fmt.Errorf("pin worker %s to cpu %d: %w", w.id, w.cpu, err))
		}
	}
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.inbox:
			m, crashed := w.execute(h, j)
			select {
			case out <- m:
			case <-done:
				return
			}
			if crashed {
				return
			}
		}
	}
}

func (w *worker[T, R]) execute(h Handler[T, R], j job[T]) (m workerMsg[R], crashed bool) {
	m = workerMsg[R]{w: w.id, taskID: j.taskID}
	defer func() {
		if r := recover(); r != nil {
			m.kind = msgCrash
			m.panic = r
			crashed = true
		}
	}()
	res, err := h(j.ctx, j.payload)
	if err != nil {
		m.kind = msgError
		m.err = err
		return m, false
	}
	m.kind = msgResult
	m.result = res
	return m, false
}

// destroy tells the worker goroutine to exit once it is free. A hung
// handler keeps its goroutine until it returns; its reply is then stale.
func (w *worker[T, R]) destroy() {
	close(w.quit)
}
