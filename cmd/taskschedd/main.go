// Command taskschedd runs a synthetic batch through a tasksched.Scheduler
// and reports the outcome.
//
// Each task hashes a random block a configurable number of rounds. A share
// of tasks fail, hang or panic so that retries, timeouts and crash
// recovery are exercised.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"go.uber.org/multierr"

	ts "github.com/azargarov/tasksched"
	"github.com/azargarov/tasksched/internal/config"
	"github.com/azargarov/tasksched/internal/logging"
	"github.com/azargarov/tasksched/internal/telemetry"
)

type job struct {
	Seq  int
	Data []byte
}

type digest struct {
	Seq int
	Sum string
}

var errSimulated = errors.New("simulated failure")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "taskschedd:", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	tasks := flag.Int("tasks", 0, "number of tasks to submit (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *tasks > 0 {
		cfg.Workload.Tasks = *tasks
	}

	logger := logging.New(cfg.Log)
	defer func() { err = multierr.Append(err, logger.Close()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = lg.Attach(ctx, logger)

	tp, shutdownTracing, err := telemetry.Init(ctx, cfg.Log.Service, cfg.Tracing.Exporter, nil)
	if err != nil {
		return err
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, shutdownTracing(shCtx))
	}()

	opts := cfg.Options()
	opts.Logger = lg.FromContext(ctx)
	opts.Tracer = tp.Tracer("taskschedd")

	metrics := &ts.AtomicMetrics{}
	s := ts.New[job, digest](newHandler(cfg.Workload), opts, metrics)

	runErr := runBatch(ctx, s, cfg.Workload)

	st := s.Stats()
	logger.Info("batch finished",
		lg.Any("completed", st.TasksCompleted),
		lg.Any("errored", st.TasksErrored),
		lg.Int("workers", st.TotalWorkers),
		lg.String("avg_exec", st.AverageExecutionTime.String()),
		lg.Any("retried", metrics.Retried()),
		lg.Any("timed_out", metrics.TimedOut()),
		lg.Any("crashed", metrics.Crashed()),
		lg.Any("rejected", metrics.Rejected()),
		lg.Any("workers_created", metrics.WorkersCreated()),
	)

	termCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return multierr.Append(runErr, s.Terminate(termCtx))
}

// runBatch submits the workload and waits for every task to settle.
func runBatch(ctx context.Context, s *ts.Scheduler[job, digest], w config.Workload) error {
	log := lg.FromContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, w.Deadline)
	defer cancel()

	futures := make([]*ts.Future[digest], 0, w.Tasks)
	for i := 0; i < w.Tasks; i++ {
		j := job{Seq: i, Data: randomBlock()}
		prio := 0
		if w.MaxPriority > 0 {
			prio = rand.IntN(w.MaxPriority + 1)
		}
		for {
			f, err := s.Submit(ctx, j, ts.WithPriority(prio))
			if err == nil {
				futures = append(futures, f)
				break
			}
			if !errors.Is(err, ts.ErrQueueFull) {
				return fmt.Errorf("submit task %d: %w", i, err)
			}
			// wait for the oldest outstanding task to make room
			if werr := waitOldest(ctx, futures); werr != nil {
				return werr
			}
		}
	}

	var failed int
	for _, f := range futures {
		d, err := f.Get(ctx)
		switch {
		case err == nil:
			log.Debug("task done", lg.Int("seq", d.Seq), lg.String("sum", d.Sum[:12]))
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return fmt.Errorf("waiting for task %d: %w", f.TaskID(), err)
		default:
			failed++
			log.Warn("task failed", lg.Any("task_id", f.TaskID()), lg.Error("error", err))
		}
	}
	log.Info("all tasks settled", lg.Int("submitted", len(futures)), lg.Int("failed", failed))
	return nil
}

func waitOldest(ctx context.Context, futures []*ts.Future[digest]) error {
	for _, f := range futures {
		select {
		case <-f.Done():
			continue
		default:
		}
		select {
		case <-f.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// nothing outstanding; the queue drains on its own
	select {
	case <-time.After(10 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newHandler(w config.Workload) ts.Handler[job, digest] {
	rounds := max(w.Rounds, 1)
	return func(ctx context.Context, j job) (digest, error) {
		roll := rand.Float64()
		switch {
		case roll < w.CrashRate:
			panic(fmt.Sprintf("task %d: simulated crash", j.Seq))
		case roll < w.CrashRate+w.HangRate:
			lg.FromContext(ctx).Debug("simulating hung task", lg.Int("seq", j.Seq))
			<-ctx.Done()
			return digest{}, ctx.Err()
		case roll < w.CrashRate+w.HangRate+w.FailureRate:
			return digest{}, fmt.Errorf("task %d: %w", j.Seq, errSimulated)
		}

		sum := sha256.Sum256(j.Data)
		for i := 1; i < rounds; i++ {
			if i%1024 == 0 && ctx.Err() != nil {
				return digest{}, ctx.Err()
			}
			sum = sha256.Sum256(sum[:])
		}
		return digest{Seq: j.Seq, Sum: hex.EncodeToString(sum[:])}, nil
	}
}

func randomBlock() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(rand.UintN(256))
	}
	return b
}
