package tasksched

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"go.opentelemetry.io/otel/trace"
)

// assignment binds an in-flight task to the worker serving it.
type assignment[T, R any] struct {
	w      *worker[T, R]
	t      *task[T, R]
	start  time.Time
	timer  *time.Timer
	cancel context.CancelFunc
	span   trace.Span
}

type submitReq[T, R any] struct {
	ctx     context.Context
	payload T
	cfg     submitConfig
	reply   chan submitResp[R]
}

type submitResp[R any] struct {
	future *Future[R]
	err    error
}

// delayedRetry is a task waiting for its backoff to elapse.
type delayedRetry[T, R any] struct {
	t     *task[T, R]
	timer *time.Timer
}

type ctrlKind int

const (
	ctrlPause ctrlKind = iota
	ctrlResume
	ctrlClear
	ctrlStats
	ctrlWorkers
	ctrlTerminate
)

type ctrlReq struct {
	kind  ctrlKind
	reply chan ctrlResp
}

type ctrlResp struct {
	stats   Stats
	workers []WorkerStat
	n       int
}

// Scheduler runs submitted tasks on a bounded set of workers in priority
// order, retrying failed and hung attempts.
//
// All bookkeeping is owned by a single coordinator goroutine which handles
// one event at a time: a submission, a worker reply, a timeout, a due retry
// or a control request. Public methods are safe for concurrent use.
type Scheduler[T, R any] struct {
	opts    Options
	handler Handler[T, R]
	metrics MetricsPolicy
	log     lg.ZLogger

	submitCh  chan submitReq[T, R]
	msgCh     chan workerMsg[R]
	timeoutCh chan *assignment[T, R]
	retryCh   chan *task[T, R]
	ctrlCh    chan ctrlReq
	doneCh    chan struct{}

	// final is written by the coordinator right before doneCh is closed.
	final Stats

	// coordinator-owned state
	queue     *taskQueue[T, R]
	workers   map[string]*worker[T, R]
	available []*worker[T, R]
	busy      map[string]*worker[T, R]
	active    map[uint64]*assignment[T, R]
	delayed   map[uint64]delayedRetry[T, R]
	nextID    uint64
	nextCPU   int
	paused    bool
	completed uint64
	errored   uint64
	execTotal time.Duration
}

// New creates a scheduler running handler and starts its coordinator.
//
// metrics may be nil. New panics if handler is nil.
func New[T, R any](handler Handler[T, R], opts Options, metrics MetricsPolicy) *Scheduler[T, R] {
	if handler == nil {
		panic(ErrNilHandler)
	}
	opts.FillDefaults()
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	now := time.Now()
	s := &Scheduler[T, R]{
		opts:      opts,
		handler:   handler,
		metrics:   metrics,
		log:       opts.Logger,
		submitCh:  make(chan submitReq[T, R]),
		msgCh:     make(chan workerMsg[R], opts.MaxWorkers),
		timeoutCh: make(chan *assignment[T, R]),
		retryCh:   make(chan *task[T, R]),
		ctrlCh:    make(chan ctrlReq),
		doneCh:    make(chan struct{}),
		queue:     newTaskQueue[T, R](opts.AgingRate, now),
		workers:   make(map[string]*worker[T, R], opts.MaxWorkers),
		available: make([]*worker[T, R], 0, opts.MaxWorkers),
		busy:      make(map[string]*worker[T, R], opts.MaxWorkers),
		active:    make(map[uint64]*assignment[T, R]),
		delayed:   make(map[uint64]delayedRetry[T, R]),
	}
	for range opts.InitialWorkers {
		s.spawnIdle()
	}
	s.log.Info("scheduler started",
		lg.Int("max_workers", opts.MaxWorkers),
		lg.Int("initial_workers", opts.InitialWorkers),
		lg.Int("max_queue_size", opts.MaxQueueSize),
		lg.String("worker_timeout", opts.WorkerTimeout.String()),
	)
	go s.run()
	return s
}

// Submit queues payload and returns its completion handle.
//
// It fails immediately with ErrQueueFull when MaxQueueSize tasks are
// already pending, and with ErrPoolTerminated after Terminate. Submit never
// waits for the task to run. ctx provides values (logger, trace parent) to
// the task; its cancellation does not cancel the task.
func (s *Scheduler[T, R]) Submit(ctx context.Context, payload T, opts ...SubmitOption) (*Future[R], error) {
	cfg := submitConfig{
		timeout: s.opts.WorkerTimeout,
		retry:   s.opts.Retry,
	}
	for _, o := range opts {
		o(&cfg)
	}
	req := submitReq[T, R]{
		ctx:     detachedContext(ctx),
		payload: payload,
		cfg:     cfg,
		reply:   make(chan submitResp[R], 1),
	}
	select {
	case s.submitCh <- req:
	case <-s.doneCh:
		return nil, ErrPoolTerminated
	}
	resp := <-req.reply
	return resp.future, resp.err
}

// Pause stops the dispatch of queued tasks. Running tasks are not affected
// and their outcomes are still processed.
func (s *Scheduler[T, R]) Pause() { s.control(ctrlPause) }

// Resume re-enables dispatch and immediately assigns queued tasks.
func (s *Scheduler[T, R]) Resume() { s.control(ctrlResume) }

func (s *Scheduler[T, R]) Paused() bool { return s.Stats().Paused }

// Clear rejects every pending task, delayed retries included, with
// ErrQueueCleared and returns how many were removed. Active tasks keep
// running.
func (s *Scheduler[T, R]) Clear() int {
	resp, _ := s.control(ctrlClear)
	return resp.n
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler[T, R]) Stats() Stats {
	resp, ok := s.control(ctrlStats)
	if !ok {
		return s.final
	}
	return resp.stats
}

// Workers lists the live workers, oldest first. It returns nil after
// termination.
func (s *Scheduler[T, R]) Workers() []WorkerStat {
	resp, _ := s.control(ctrlWorkers)
	return resp.workers
}

// Terminate rejects every outstanding task with ErrPoolTerminated, destroys
// all workers and stops the coordinator. Calling it again is a no-op.
func (s *Scheduler[T, R]) Terminate(ctx context.Context) error {
	req := ctrlReq{kind: ctrlTerminate, reply: make(chan ctrlResp, 1)}
	select {
	case s.ctrlCh <- req:
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop is the blocking form of Terminate.
func (s *Scheduler[T, R]) Stop() { _ = s.Terminate(context.Background()) }

// Done is closed once the scheduler has terminated.
func (s *Scheduler[T, R]) Done() <-chan struct{} { return s.doneCh }

func (s *Scheduler[T, R]) control(kind ctrlKind) (ctrlResp, bool) {
	req := ctrlReq{kind: kind, reply: make(chan ctrlResp, 1)}
	select {
	case s.ctrlCh <- req:
	case <-s.doneCh:
		return ctrlResp{}, false
	}
	return <-req.reply, true
}

// run is the coordinator loop.
func (s *Scheduler[T, R]) run() {
	defer close(s.doneCh)
	for {
		select {
		case req := <-s.submitCh:
			s.handleSubmit(req)
		case m := <-s.msgCh:
			s.handleMessage(m)
		case a := <-s.timeoutCh:
			s.handleTimeout(a)
		case t := <-s.retryCh:
			s.handleRetryDue(t)
		case req := <-s.ctrlCh:
			if s.handleControl(req) {
				return
			}
		}
	}
}

func (s *Scheduler[T, R]) handleSubmit(req submitReq[T, R]) {
	if s.queue.Len() >= s.opts.MaxQueueSize {
		s.metrics.IncRejected()
		req.reply <- submitResp[R]{err: ErrQueueFull}
		return
	}
	s.nextID++
	t := &task[T, R]{
		id:        s.nextID,
		payload:   req.payload,
		priority:  req.cfg.priority,
		timeout:   req.cfg.timeout,
		retry:     req.cfg.retry,
		createdAt: time.Now(),
		ctx:       req.ctx,
		future:    newFuture[R](s.nextID),
	}
	s.enqueue(t)
	s.metrics.IncSubmitted()
	s.log.Debug("task submitted", lg.Any("task_id", t.id), lg.Int("priority", t.priority))
	s.dispatch()
	req.reply <- submitResp[R]{future: t.future}
}

// dispatch assigns queued tasks to available workers in priority order and
// grows the pool by one worker when tasks are still waiting.
func (s *Scheduler[T, R]) dispatch() {
	if s.paused {
		return
	}
	for s.queue.Len() > 0 && len(s.available) > 0 {
		t, _ := s.queue.Pop()
		w := s.available[0]
		s.available[0] = nil
		s.available = s.available[1:]
		s.assign(w, t)
	}
	if s.queue.Len() > 0 && len(s.workers) < s.opts.MaxWorkers {
		t, _ := s.queue.Pop()
		s.assign(s.spawnWorker(), t)
	}
}

func (s *Scheduler[T, R]) assign(w *worker[T, R], t *task[T, R]) {
	s.busy[w.id] = w

	span := s.startAttemptSpan(t, w)
	ctx, cancel := context.WithCancel(trace.ContextWithSpan(t.ctx, span))
	a := &assignment[T, R]{
		w:      w,
		t:      t,
		start:  time.Now(),
		cancel: cancel,
		span:   span,
	}
	s.active[t.id] = a
	a.timer = time.AfterFunc(t.timeout, func() {
		select {
		case s.timeoutCh <- a:
		case <-s.doneCh:
		}
	})
	// The inbox holds one job and a worker is only handed a job while idle.
	w.inbox <- job[T]{taskID: t.id, payload: t.payload, ctx: ctx}
}

func (s *Scheduler[T, R]) handleMessage(m workerMsg[R]) {
	a, ok := s.active[m.taskID]
	if !ok || a.w.id != m.w {
		// reply from a destroyed worker or a superseded attempt
		return
	}
	a.timer.Stop()
	a.cancel()
	delete(s.active, m.taskID)
	t := a.t

	if m.kind == msgCrash {
		s.handleCrash(a, m.panic)
		return
	}

	d := time.Since(a.start)
	s.execTotal += d
	s.metrics.ObserveExecution(d)

	delete(s.busy, a.w.id)
	s.available = append(s.available, a.w)
	a.w.completed++

	if m.kind == msgError {
		endAttemptSpan(a.span, m.err)
		s.reportTaskError(fmt.Errorf("task %d attempt %d: %w", t.id, t.attempts(), m.err))
		t.lastErr = m.err
		s.retryOrFail(t, &WorkerExecutionError{TaskID: t.id, Attempts: t.attempts(), Err: m.err})
	} else {
		endAttemptSpan(a.span, nil)
		t.future.resolve(m.result)
		s.completed++
		s.metrics.IncCompleted()
		s.log.Debug("task completed", lg.Any("task_id", t.id), lg.String("duration", d.String()))
	}
	s.dispatch()
}

// handleCrash rejects the task held by a crashed worker without consulting
// its retry budget, then replaces the worker.
func (s *Scheduler[T, R]) handleCrash(a *assignment[T, R], p any) {
	err := &WorkerCrashError{TaskID: a.t.id, WorkerID: a.w.id, Panic: p}
	endAttemptSpan(a.span, err)
	a.t.future.reject(err)
	s.errored++
	s.metrics.IncCrashed()
	s.metrics.IncErrored()
	s.removeWorker(a.w)
	s.log.Error("worker crashed",
		lg.String("worker_id", a.w.id),
		lg.Any("task_id", a.t.id),
		lg.Any("panic", p),
	)
	s.reportWorkerCrash(err)
	s.replaceWorker()
	s.dispatch()
}

// handleTimeout destroys a worker presumed hung and retries its task.
func (s *Scheduler[T, R]) handleTimeout(a *assignment[T, R]) {
	t := a.t
	if cur, ok := s.active[t.id]; !ok || cur != a {
		return
	}
	delete(s.active, t.id)
	a.cancel()
	s.removeWorker(a.w)
	s.metrics.IncTimedOut()

	endAttemptSpan(a.span, ErrTaskTimeout)
	s.log.Warn("task attempt timed out; destroying worker",
		lg.Any("task_id", t.id),
		lg.Int("attempt", t.attempts()),
		lg.String("worker_id", a.w.id),
		lg.String("timeout", t.timeout.String()),
	)
	s.reportTaskError(fmt.Errorf("task %d attempt %d: %w", t.id, t.attempts(), ErrTaskTimeout))
	t.lastErr = ErrTaskTimeout
	s.retryOrFail(t, &TaskTimeoutError{TaskID: t.id, Attempts: t.attempts(), Timeout: t.timeout})

	s.replaceWorker()
	s.dispatch()
}

// retryOrFail re-queues t if its retry budget allows, otherwise rejects it
// with final.
func (s *Scheduler[T, R]) retryOrFail(t *task[T, R], final error) {
	if !t.canRetry() {
		t.future.reject(final)
		s.errored++
		s.metrics.IncErrored()
		s.log.Error("task failed", lg.Any("task_id", t.id), lg.Int("attempts", t.attempts()), lg.Any("error", final))
		return
	}
	t.retries++
	s.metrics.IncRetried()

	delay := t.nextDelay()
	if delay <= 0 {
		s.enqueue(t)
		return
	}
	s.log.Warn("task attempt failed; backing off",
		lg.Any("task_id", t.id),
		lg.Int("attempt", t.retries),
		lg.String("sleep", delay.String()),
		lg.Any("error", t.lastErr),
	)
	s.delayed[t.id] = delayedRetry[T, R]{
		t: t,
		timer: time.AfterFunc(delay, func() {
			select {
			case s.retryCh <- t:
			case <-s.doneCh:
			}
		}),
	}
}

func (s *Scheduler[T, R]) handleRetryDue(t *task[T, R]) {
	if _, ok := s.delayed[t.id]; !ok {
		// cleared while waiting
		return
	}
	delete(s.delayed, t.id)
	s.enqueue(t)
	s.dispatch()
}

// enqueue pushes t as a fresh arrival: retries queue behind tasks of equal
// priority that arrived in the meantime.
func (s *Scheduler[T, R]) enqueue(t *task[T, R]) {
	s.queue.Push(t, time.Now())
}

func (s *Scheduler[T, R]) handleControl(req ctrlReq) (stop bool) {
	var resp ctrlResp
	switch req.kind {
	case ctrlPause:
		s.paused = true
		s.log.Info("scheduler paused")
	case ctrlResume:
		s.paused = false
		s.log.Info("scheduler resumed")
		s.dispatch()
	case ctrlClear:
		resp.n = s.rejectPending(ErrQueueCleared)
		s.log.Info("queue cleared", lg.Int("rejected", resp.n))
	case ctrlStats:
		resp.stats = s.snapshot()
	case ctrlWorkers:
		resp.workers = s.workerStats()
	case ctrlTerminate:
		s.terminate()
		resp.stats = s.final
		stop = true
	}
	req.reply <- resp
	return stop
}

// rejectPending settles every queued and delayed task with err.
func (s *Scheduler[T, R]) rejectPending(err error) int {
	n := 0
	for _, t := range s.queue.Drain() {
		t.future.reject(err)
		n++
	}
	for id, d := range s.delayed {
		d.timer.Stop()
		d.t.future.reject(err)
		delete(s.delayed, id)
		n++
	}
	return n
}

func (s *Scheduler[T, R]) terminate() {
	pending := s.rejectPending(ErrPoolTerminated)
	active := len(s.active)
	for id, a := range s.active {
		a.timer.Stop()
		a.cancel()
		endAttemptSpan(a.span, ErrPoolTerminated)
		a.t.future.reject(ErrPoolTerminated)
		delete(s.active, id)
	}
	for _, w := range s.workers {
		w.destroy()
	}
	clear(s.workers)
	clear(s.busy)
	s.available = s.available[:0]
	s.paused = false

	s.final = s.snapshot()
	s.final.Terminated = true
	s.log.Info("scheduler terminated",
		lg.Int("rejected_pending", pending),
		lg.Int("rejected_active", active),
		lg.Any("completed", s.completed),
		lg.Any("errored", s.errored),
	)
}

// spawnWorker creates a worker and registers it without making it
// available. Callers either assign it right away or call spawnIdle.
func (s *Scheduler[T, R]) spawnWorker() *worker[T, R] {
	w := newWorker[T, R](s.nextCPU % runtime.NumCPU())
	s.nextCPU++
	s.workers[w.id] = w
	s.metrics.IncWorkersCreated()
	go w.run(s.handler, s.msgCh, s.doneCh, s.opts.PinWorkers, func(err error) {
		s.log.Warn("worker pinning failed", lg.Any("error", err))
	})
	s.log.Debug("worker created", lg.String("worker_id", w.id), lg.Int("workers", len(s.workers)))
	return w
}

func (s *Scheduler[T, R]) spawnIdle() {
	s.available = append(s.available, s.spawnWorker())
}

// replaceWorker restores capacity after a worker was destroyed.
func (s *Scheduler[T, R]) replaceWorker() {
	if len(s.workers) < s.opts.MaxWorkers {
		s.spawnIdle()
	}
}

func (s *Scheduler[T, R]) removeWorker(w *worker[T, R]) {
	delete(s.workers, w.id)
	delete(s.busy, w.id)
	for i, aw := range s.available {
		if aw == w {
			s.available = append(s.available[:i], s.available[i+1:]...)
			break
		}
	}
	w.destroy()
}

func (s *Scheduler[T, R]) snapshot() Stats {
	busy := len(s.busy)
	total := len(s.workers)
	return Stats{
		TotalWorkers:         total,
		AvailableWorkers:     len(s.available),
		BusyWorkers:          busy,
		QueueLength:          s.queue.Len(),
		DelayedRetries:       len(s.delayed),
		ActiveTasks:          len(s.active),
		WorkerUtilization:    utilization(busy, total),
		TasksCompleted:       s.completed,
		TasksErrored:         s.errored,
		TotalExecutionTime:   s.execTotal,
		AverageExecutionTime: averageExecution(s.execTotal, s.completed),
		OldestPending:        s.queue.MaxAge(time.Now()),
		Paused:               s.paused,
	}
}

func (s *Scheduler[T, R]) workerStats() []WorkerStat {
	now := time.Now()
	ws := make([]*worker[T, R], 0, len(s.workers))
	for _, w := range s.workers {
		ws = append(ws, w)
	}
	slices.SortFunc(ws, func(a, b *worker[T, R]) int { return a.createdAt.Compare(b.createdAt) })

	out := make([]WorkerStat, len(ws))
	for i, w := range ws {
		_, busy := s.busy[w.id]
		out[i] = WorkerStat{
			ID:        w.id,
			Busy:      busy,
			Completed: w.completed,
			Age:       now.Sub(w.createdAt),
		}
	}
	return out
}
