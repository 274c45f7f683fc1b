package tasksched

// reportTaskError reports a failed attempt.
//
// Task errors do not stop the scheduler. If no handler is registered,
// the error is silently ignored.
func (s *Scheduler[T, R]) reportTaskError(err error) {
	if s.opts.OnTaskError != nil {
		s.opts.OnTaskError(err)
	}
}

// reportWorkerCrash reports a worker that faulted outside the normal
// result path. The crashed worker has already been replaced.
func (s *Scheduler[T, R]) reportWorkerCrash(err error) {
	if s.opts.OnWorkerCrash != nil {
		s.opts.OnWorkerCrash(err)
	}
}
