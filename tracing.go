package tasksched

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startAttemptSpan opens the span covering one attempt of a task.
// The parent is taken from the submission context.
func (s *Scheduler[T, R]) startAttemptSpan(t *task[T, R], w *worker[T, R]) trace.Span {
	_, span := s.opts.Tracer.Start(t.ctx, "tasksched.attempt",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("tasksched.task.id", int64(t.id)),
			attribute.Int("tasksched.task.priority", t.priority),
			attribute.Int("tasksched.task.attempt", t.attempts()),
			attribute.String("tasksched.worker.id", w.id),
		),
	)
	return span
}

func endAttemptSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrTaskTimeout) {
			span.SetAttributes(attribute.Bool("tasksched.timeout", true))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// detachedContext keeps the values of the submission context (logger,
// trace parent) but not its cancellation: a task outlives the caller that
// submitted it and is only cancelled by the scheduler.
func detachedContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
