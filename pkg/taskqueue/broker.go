package taskqueue

import (
	"context"
	"time"
)

// ProcessFunc handles one delivery. Returning a non-nil error makes the broker
// schedule a retry after the queue's backoff, unless the error is (or wraps)
// ErrHandlerNotFound or the delivery was the final attempt, in which case the
// job is not redelivered.
type ProcessFunc func(ctx context.Context, d Delivery) error

// Broker is the enqueue-side capability of the external message queue. The
// wire protocol stays behind this interface; implementations assign the job
// id returned by Enqueue.
type Broker interface {
	// Enqueue submits a job carrying the task id and payload, honoring the
	// job's weight, delay, and retry budget. Failures wrap ErrBrokerUnavailable.
	Enqueue(ctx context.Context, job *Job) (jobID string, err error)

	// QueueStats samples the current job counts for one queue.
	QueueStats(ctx context.Context, queue string) (QueueStats, error)

	// PruneCompleted deletes broker-side completed job records older than the
	// given age and reports how many were removed. Task rows are not touched.
	PruneCompleted(ctx context.Context, queue string, olderThan time.Duration) (int, error)
}

// Consumer is the dequeue-side capability: a running subscription of one queue
// that feeds deliveries to a ProcessFunc. Concurrency is an implementation
// concern configured on the consumer, not encoded in the engine.
type Consumer interface {
	// Start begins consuming the queue in the background. It returns once the
	// subscription is established.
	Start(ctx context.Context, queue string, fn ProcessFunc) error

	// Shutdown stops consumption of the named queue, waiting for in-flight
	// deliveries to finish. Other queues consumed from the same implementation
	// keep running.
	Shutdown(queue string)
}
