package taskqueue

import "log/slog"

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	outcomeBuffer int
	logger        *slog.Logger
}

// WithOutcomeBuffer sets the capacity of the job-outcome channel. When the
// buffer is full further outcomes are dropped rather than blocking workers.
func WithOutcomeBuffer(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.outcomeBuffer = n
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
