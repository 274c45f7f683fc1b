package tasksched

import (
	"container/heap"
	"time"
)

// item is a pending task stored in the heap.
type item[T, R any] struct {
	t *task[T, R]

	// key is the aged priority with the coordinator clock factored out.
	// With aging, eff(now) = prio + rate*(now-queuedAt). Every queued task
	// shares the rate*now term, so prio - rate*queuedAt orders the heap the
	// same way at any instant and never needs rebuilding. It is zero when
	// aging is off, leaving the order to the exact prio.
	key  float64
	prio int

	// seq breaks ties so that equal keys leave in arrival order.
	seq uint64

	queuedAt time.Time
	index    int
}

// priorityQueue is a max-heap by key, then prio, then FIFO by seq.
type priorityQueue[T, R any] []*item[T, R]

func (pq priorityQueue[T, R]) Len() int { return len(pq) }
func (pq priorityQueue[T, R]) Less(i, j int) bool {
	a, b := pq[i], pq[j]
	if a.key != b.key {
		return a.key > b.key
	}
	if a.prio != b.prio {
		return a.prio > b.prio
	}
	return a.seq < b.seq
}
func (pq priorityQueue[T, R]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue[T, R]) Push(x any) {
	it := x.(*item[T, R])
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *priorityQueue[T, R]) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// taskQueue is the stable priority queue of pending tasks.
//
// It is owned by the coordinator goroutine and is not safe for concurrent use.
type taskQueue[T, R any] struct {
	pq        priorityQueue[T, R]
	seq       uint64
	agingRate float64
	epoch     time.Time
}

func newTaskQueue[T, R any](agingRate float64, epoch time.Time) *taskQueue[T, R] {
	q := &taskQueue[T, R]{agingRate: agingRate, epoch: epoch}
	q.pq = make(priorityQueue[T, R], 0, 64)
	heap.Init(&q.pq)
	return q
}

// Push inserts t behind every queued task of the same or higher effective
// priority.
func (q *taskQueue[T, R]) Push(t *task[T, R], now time.Time) {
	q.seq++
	it := &item[T, R]{
		t:        t,
		prio:     t.priority,
		seq:      q.seq,
		queuedAt: now,
	}
	if q.agingRate > 0 {
		it.key = float64(t.priority) - q.agingRate*now.Sub(q.epoch).Seconds()
	}
	heap.Push(&q.pq, it)
}

// Pop removes the task with the highest effective priority.
func (q *taskQueue[T, R]) Pop() (*task[T, R], bool) {
	if q.pq.Len() == 0 {
		return nil, false
	}
	it := heap.Pop(&q.pq).(*item[T, R])
	return it.t, true
}

func (q *taskQueue[T, R]) Len() int { return q.pq.Len() }

// Drain empties the queue and returns its tasks in dispatch order.
func (q *taskQueue[T, R]) Drain() []*task[T, R] {
	out := make([]*task[T, R], 0, q.pq.Len())
	for {
		t, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// MaxAge returns the waiting time of the oldest queued task.
func (q *taskQueue[T, R]) MaxAge(now time.Time) time.Duration {
	var age time.Duration
	for _, it := range q.pq {
		if d := now.Sub(it.queuedAt); d > age {
			age = d
		}
	}
	return age
}
