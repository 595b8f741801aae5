package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker consumes one queue, invokes the handler registered for each task's
// type, and reports the outcome to the store. Retry scheduling stays with the
// broker: the worker returns the handler error to the consumer and the broker
// redelivers after the queue's backoff until attempts are exhausted.
//
// Handlers run without a per-task deadline. A hung handler blocks its consumer
// slot until the handler returns; callers needing timeouts must enforce them
// inside the handler.
type Worker struct {
	queue    string
	store    Store
	consumer Consumer

	mu       sync.RWMutex
	handlers map[TaskType]Handler

	outcomes chan JobOutcome
	log      *slog.Logger
	started  bool
}

// NewWorker creates a worker bound to a single named queue.
func NewWorker(queue string, store Store, consumer Consumer, opts ...WorkerOption) (*Worker, error) {
	if queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if store == nil {
		return nil, ErrStoreNil
	}
	if consumer == nil {
		return nil, ErrConsumerNil
	}

	options := &workerOptions{
		outcomeBuffer: 64,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		queue:    queue,
		store:    store,
		consumer: consumer,
		handlers: make(map[TaskType]Handler),
		outcomes: make(chan JobOutcome, options.outcomeBuffer),
		log:      options.logger,
	}, nil
}

// Register binds a handler to a task type, replacing any previous binding.
func (w *Worker) Register(t TaskType, h Handler) {
	if h == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[t] = h
}

// Outcomes exposes the per-job outcome stream consumed by metrics collection.
// The channel is closed by Stop.
func (w *Worker) Outcomes() <-chan JobOutcome {
	return w.outcomes
}

// Start begins consuming the worker's queue in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("worker for queue %q already started", w.queue)
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.started = true
	w.mu.Unlock()

	if err := w.consumer.Start(ctx, w.queue, w.process); err != nil {
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return fmt.Errorf("failed to start consumer for queue %q: %w", w.queue, err)
	}

	w.log.Info("worker started", slog.String("queue", w.queue))
	return nil
}

// Stop shuts the consumer down, waits for in-flight deliveries, and closes
// the outcome channel.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	w.consumer.Shutdown(w.queue)
	close(w.outcomes)
	w.log.Info("worker stopped", slog.String("queue", w.queue))
}

// process handles one delivery end to end.
func (w *Worker) process(ctx context.Context, d Delivery) error {
	w.mu.RLock()
	handler, ok := w.handlers[d.Type]
	w.mu.RUnlock()

	if proceed := w.markActive(ctx, d); !proceed {
		return nil
	}

	if !ok {
		// Retrying cannot help until a handler is deployed; record the terminal
		// failure and tell the consumer not to redeliver.
		errMsg := fmt.Sprintf("no handler registered for task type: %s", d.Type)
		if err := w.store.RecordFailure(ctx, d.TaskID, errMsg, d.Attempt, false); err != nil && !errors.Is(err, ErrStaleTaskState) {
			w.log.Error("failed to record missing-handler failure",
				slog.String("task_id", d.TaskID.String()),
				slog.String("error", err.Error()))
		}
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, d.Type)
	}

	start := time.Now()
	result, err := w.invoke(ctx, handler, d.Payload)
	duration := time.Since(start)

	if err != nil {
		return w.handleFailure(ctx, d, err, duration)
	}
	return w.handleSuccess(ctx, d, result, duration)
}

// markActive transitions the task to active. Redeliveries of jobs whose task
// already finished are dropped without reprocessing; any other stale state
// (e.g. a lock-expiry redelivery while still active) is processed anyway since
// the terminal store updates are themselves compare-and-set.
func (w *Worker) markActive(ctx context.Context, d Delivery) bool {
	err := w.store.MarkActive(ctx, d.TaskID)
	if err == nil {
		return true
	}

	if errors.Is(err, ErrTaskNotFound) {
		w.log.Warn("delivery references unknown task, dropping",
			slog.String("queue", w.queue),
			slog.String("task_id", d.TaskID.String()),
			slog.String("job_id", d.JobID))
		return false
	}

	if errors.Is(err, ErrStaleTaskState) {
		task, getErr := w.store.Get(ctx, d.TaskID)
		if getErr == nil && (task.Status == TaskStatusCompleted || task.Status == TaskStatusDeadLetter) {
			w.log.Debug("dropping redelivery of finished task",
				slog.String("task_id", d.TaskID.String()),
				slog.String("status", string(task.Status)))
			return false
		}
		return true
	}

	w.log.Error("failed to mark task active",
		slog.String("task_id", d.TaskID.String()),
		slog.String("error", err.Error()))
	return true
}

// invoke runs the handler with panic recovery; a panicking handler counts as
// a failed attempt like any other handler error.
func (w *Worker) invoke(ctx context.Context, handler Handler, payload json.RawMessage) (result HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return handler.Handle(ctx, payload)
}

func (w *Worker) handleFailure(ctx context.Context, d Delivery, execErr error, duration time.Duration) error {
	willRetry := d.Attempt < d.MaxAttempts

	w.log.Error("task failed",
		slog.String("queue", w.queue),
		slog.String("task_id", d.TaskID.String()),
		slog.Int("attempt", d.Attempt),
		slog.Int("max_attempts", d.MaxAttempts),
		slog.Bool("will_retry", willRetry),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	if err := w.store.RecordFailure(ctx, d.TaskID, execErr.Error(), d.Attempt, willRetry); err != nil && !errors.Is(err, ErrStaleTaskState) {
		w.log.Error("failed to record task failure",
			slog.String("task_id", d.TaskID.String()),
			slog.String("error", err.Error()))
	}

	w.publish(JobOutcome{TaskID: d.TaskID, Queue: w.queue, Outcome: OutcomeFailed, Duration: duration})

	// Returning the error hands retry scheduling to the broker. After the final
	// attempt the task stays failed until explicitly escalated to dead-letter.
	return execErr
}

func (w *Worker) handleSuccess(ctx context.Context, d Delivery, result HandlerResult, duration time.Duration) error {
	if err := w.store.RecordSuccess(ctx, d.TaskID, result.Result, result.Metadata, duration); err != nil {
		if errors.Is(err, ErrStaleTaskState) {
			// Another delivery of the same job already completed the task.
			w.log.Warn("duplicate completion suppressed",
				slog.String("task_id", d.TaskID.String()))
			return nil
		}
		return fmt.Errorf("failed to record success for task %s: %w", d.TaskID, err)
	}

	w.log.Info("task completed",
		slog.String("queue", w.queue),
		slog.String("task_id", d.TaskID.String()),
		slog.Duration("duration", duration))

	w.publish(JobOutcome{TaskID: d.TaskID, Queue: w.queue, Outcome: OutcomeCompleted, Duration: duration})
	return nil
}

// publish emits the outcome without blocking; metrics sampling is best-effort
// and must never stall task processing.
func (w *Worker) publish(o JobOutcome) {
	select {
	case w.outcomes <- o:
	default:
		w.log.Debug("outcome channel full, dropping sample",
			slog.String("task_id", o.TaskID.String()))
	}
}
