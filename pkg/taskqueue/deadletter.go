package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// DeadLetter escalates exhausted tasks to the dead-letter queue and offers
// manual retry. Escalation is always an explicit call: finishing the last
// attempt leaves a task failed, it does not dead-letter automatically.
type DeadLetter struct {
	store      Store
	broker     Broker
	dispatcher *Dispatcher
	policy     *RetryPolicy
	log        *slog.Logger
}

// NewDeadLetter creates the dead-letter handler.
func NewDeadLetter(store Store, broker Broker, dispatcher *Dispatcher, opts ...DeadLetterOption) (*DeadLetter, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if broker == nil {
		return nil, ErrBrokerNil
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}

	options := &deadLetterOptions{
		policy: DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &DeadLetter{
		store:      store,
		broker:     broker,
		dispatcher: dispatcher,
		policy:     options.policy,
		log:        options.logger,
	}, nil
}

// Move marks the task dead-lettered and places a descriptive record on the
// dead-letter queue for operator review.
func (dl *DeadLetter) Move(ctx context.Context, taskID uuid.UUID, errMsg string) error {
	task, err := dl.store.Get(ctx, taskID)
	if err != nil {
		return err
	}

	if err := dl.store.MarkDeadLetter(ctx, taskID, errMsg); err != nil {
		return fmt.Errorf("failed to dead-letter task %s: %w", taskID, err)
	}

	record := DeadLetterRecord{
		TaskID:        task.ID,
		OriginalQueue: task.QueueName,
		Payload:       task.Payload,
		Error:         errMsg,
	}
	if task.JobID != nil {
		record.OriginalJobID = *task.JobID
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter record for task %s: %w", taskID, err)
	}

	route := DeadLetterRoute()
	if _, err := dl.broker.Enqueue(ctx, &Job{
		TaskID:      task.ID,
		Type:        task.Type,
		Queue:       route.Queue,
		Payload:     payload,
		Priority:    task.Priority,
		Weight:      dl.policy.DispatchWeight(task.Priority),
		MaxAttempts: route.MaxAttempts,
	}); err != nil {
		// The task is already marked dead-lettered; the queue record is
		// operator convenience, so surface the error without rolling back.
		return fmt.Errorf("task %s dead-lettered but queue record failed: %w", taskID, err)
	}

	dl.log.Warn("task moved to dead-letter queue",
		slog.String("task_id", task.ID.String()),
		slog.String("original_queue", task.QueueName),
		slog.String("error", errMsg))

	return nil
}

// Retry re-dispatches a dead-lettered task's type, payload, and priority as a
// brand new task with a fresh id and a reset attempt count. The original row
// stays dead-lettered as an audit record and is never resumed.
func (dl *DeadLetter) Retry(ctx context.Context, taskID uuid.UUID) (*Enqueued, error) {
	task, err := dl.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskStatusDeadLetter {
		return nil, fmt.Errorf("%w: task %s is %s", ErrNotDeadLettered, taskID, task.Status)
	}

	enq, err := dl.dispatcher.AddTask(ctx, task.Type, task.Payload, WithPriority(task.Priority))
	if err != nil {
		return nil, fmt.Errorf("failed to retry dead-lettered task %s: %w", taskID, err)
	}

	dl.log.Info("dead-lettered task retried as new task",
		slog.String("original_task_id", task.ID.String()),
		slog.String("new_task_id", enq.TaskID.String()),
		slog.String("job_id", enq.JobID))

	return enq, nil
}

// DeadLetterOption is a functional option for configuring the dead-letter handler
type DeadLetterOption func(*deadLetterOptions)

type deadLetterOptions struct {
	policy *RetryPolicy
	logger *slog.Logger
}

// WithDeadLetterRetryPolicy overrides the weight policy used for queue records.
func WithDeadLetterRetryPolicy(p *RetryPolicy) DeadLetterOption {
	return func(o *deadLetterOptions) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithDeadLetterLogger sets the logger for the dead-letter handler
func WithDeadLetterLogger(logger *slog.Logger) DeadLetterOption {
	return func(o *deadLetterOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
