package tasksched

import (
	"testing"
	"time"
)

func mkTask(id uint64, prio int) *task[int, int] {
	return &task[int, int]{id: id, priority: prio}
}

func popIDs(q *taskQueue[int, int]) []uint64 {
	var ids []uint64
	for {
		t, ok := q.Pop()
		if !ok {
			return ids
		}
		ids = append(ids, t.id)
	}
}

func TestTaskQueueStablePriority(t *testing.T) {
	now := time.Now()
	q := newTaskQueue[int, int](0, now)

	for i, p := range []int{1, 5, 1, 5, 3, 5} {
		q.Push(mkTask(uint64(i+1), p), now)
	}
	if q.Len() != 6 {
		t.Fatalf("len = %d; want 6", q.Len())
	}

	got := popIDs(q)
	want := []uint64{2, 4, 6, 5, 1, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v; want %v", got, want)
		}
	}
}

func TestTaskQueueLargePriorities(t *testing.T) {
	now := time.Now()
	q := newTaskQueue[int, int](0, now)

	// adjacent values above 2^53 share a float64 representation
	q.Push(mkTask(1, 1<<60), now)
	q.Push(mkTask(2, 1<<60+1), now)
	q.Push(mkTask(3, 1<<60), now)

	got := popIDs(q)
	want := []uint64{2, 1, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v; want %v", got, want)
		}
	}
}

func TestTaskQueueNegativePriority(t *testing.T) {
	now := time.Now()
	q := newTaskQueue[int, int](0, now)
	q.Push(mkTask(1, -3), now)
	q.Push(mkTask(2, 0), now)
	q.Push(mkTask(3, -1), now)

	got := popIDs(q)
	want := []uint64{2, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v; want %v", got, want)
		}
	}
}

func TestTaskQueueAging(t *testing.T) {
	epoch := time.Now()
	q := newTaskQueue[int, int](1, epoch)

	// queued 10s earlier with priority 1: effective 11 against a fresh 5
	q.Push(mkTask(1, 1), epoch)
	q.Push(mkTask(2, 5), epoch.Add(10*time.Second))

	got := popIDs(q)
	if got[0] != 1 {
		t.Fatalf("pop order = %v; want old task first", got)
	}
}

func TestTaskQueueDrainAndMaxAge(t *testing.T) {
	now := time.Now()
	q := newTaskQueue[int, int](0, now)

	if q.MaxAge(now) != 0 {
		t.Fatal("empty queue must report zero age")
	}
	q.Push(mkTask(1, 0), now.Add(-3*time.Second))
	q.Push(mkTask(2, 9), now.Add(-time.Second))

	if age := q.MaxAge(now); age != 3*time.Second {
		t.Fatalf("max age = %s; want 3s", age)
	}

	drained := q.Drain()
	if len(drained) != 2 || drained[0].id != 2 {
		t.Fatalf("drain = %d tasks, head %d; want 2 tasks, head 2", len(drained), drained[0].id)
	}
	if q.Len() != 0 {
		t.Fatalf("len after drain = %d", q.Len())
	}
}

func TestRetryPolicyBackoffBounds(t *testing.T) {
	rp := RetryPolicy{MaxRetries: 3, Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond}
	bo := rp.newBackoff(7)
	for i := 0; i < 6; i++ {
		d := bo.Next()
		if d <= 0 || d > 40*time.Millisecond {
			t.Fatalf("step %d: delay %s out of (0, 40ms]", i, d)
		}
	}

	if GetDefaultRP().delayed() {
		t.Fatal("default policy must retry immediately")
	}
}
