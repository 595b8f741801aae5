package broker

import (
	"log/slog"

	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

// Option is a functional option for configuring the broker
type Option func(*brokerOptions)

type brokerOptions struct {
	policy *taskqueue.RetryPolicy
	logger *slog.Logger
}

// WithRetryPolicy overrides the backoff policy used for retry delays.
func WithRetryPolicy(p *taskqueue.RetryPolicy) Option {
	return func(o *brokerOptions) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithLogger sets the logger for the broker and its consumers
func WithLogger(logger *slog.Logger) Option {
	return func(o *brokerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
