package taskqueue

import (
	"log/slog"
	"time"
)

// DispatcherOption is a functional option for configuring a dispatcher
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	policy *RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// WithRetryPolicy overrides the default priority-weight/backoff policy.
func WithRetryPolicy(p *RetryPolicy) DispatcherOption {
	return func(o *dispatcherOptions) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithDispatcherLogger sets the logger for the dispatcher
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source, used by tests to pin delay computation.
func WithClock(now func() time.Time) DispatcherOption {
	return func(o *dispatcherOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// AddTaskOption customizes a single AddTask call
type AddTaskOption func(*addTaskOptions)

type addTaskOptions struct {
	priority     Priority
	scheduledFor *time.Time
}

// WithPriority sets the task priority, medium by default.
func WithPriority(p Priority) AddTaskOption {
	return func(o *addTaskOptions) {
		o.priority = p
	}
}

// WithScheduledFor delays task visibility until the given time. Times in the
// past are treated as immediate.
func WithScheduledFor(t time.Time) AddTaskOption {
	return func(o *addTaskOptions) {
		o.scheduledFor = &t
	}
}
