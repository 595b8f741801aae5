package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Dispatcher persists new tasks and submits their jobs to the routed queue.
//
// Persist and enqueue are two separate steps with no transaction across store
// and broker: a crash or broker outage between them leaves a pending task row
// with no job id. Those orphans are repaired by the reconciliation sweep, not
// by the dispatcher itself.
type Dispatcher struct {
	store  Store
	broker Broker
	router *Router
	policy *RetryPolicy
	log    *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher over the given store and broker.
func NewDispatcher(store Store, broker Broker, router *Router, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if broker == nil {
		return nil, ErrBrokerNil
	}
	if router == nil {
		return nil, ErrRouterNil
	}

	options := &dispatcherOptions{
		policy: DefaultRetryPolicy(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Dispatcher{
		store:  store,
		broker: broker,
		router: router,
		policy: options.policy,
		log:    options.logger,
		now:    options.now,
	}, nil
}

// AddTask validates the type, persists a pending task, and enqueues its job.
// Two calls with identical arguments always produce two distinct tasks.
//
// When the enqueue step fails the already-persisted task row is left pending
// without a job id and the error wraps ErrBrokerUnavailable.
func (d *Dispatcher) AddTask(ctx context.Context, taskType TaskType, payload []byte, opts ...AddTaskOption) (*Enqueued, error) {
	if len(payload) == 0 {
		return nil, ErrPayloadNil
	}

	options := &addTaskOptions{priority: PriorityDefault}
	for _, opt := range opts {
		opt(options)
	}
	if !options.priority.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriority, options.priority)
	}

	route, err := d.router.RouteFor(taskType)
	if err != nil {
		return nil, err
	}

	task, err := d.store.Create(ctx, CreateTaskParams{
		Type:         taskType,
		Priority:     options.priority,
		Payload:      payload,
		QueueName:    route.Queue,
		ScheduledFor: options.scheduledFor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist task of type %q: %w", taskType, err)
	}

	jobID, err := d.enqueue(ctx, task, route)
	if err != nil {
		d.log.Error("task persisted but enqueue failed, leaving orphan for reconciliation",
			slog.String("task_id", task.ID.String()),
			slog.String("queue", route.Queue),
			slog.String("error", err.Error()))
		return nil, err
	}

	d.log.Info("task dispatched",
		slog.String("task_id", task.ID.String()),
		slog.String("job_id", jobID),
		slog.String("type", string(taskType)),
		slog.String("queue", route.Queue),
		slog.String("priority", string(options.priority)))

	return &Enqueued{TaskID: task.ID, JobID: jobID}, nil
}

// Enqueue submits the broker job for an already-persisted task and records
// the assigned job id. The reconciliation sweep uses it to repair orphans.
func (d *Dispatcher) Enqueue(ctx context.Context, task *Task) (string, error) {
	route, err := d.router.RouteFor(task.Type)
	if err != nil {
		return "", err
	}
	return d.enqueue(ctx, task, route)
}

func (d *Dispatcher) enqueue(ctx context.Context, task *Task, route Route) (string, error) {
	var delay time.Duration
	if task.ScheduledFor != nil {
		if until := task.ScheduledFor.Sub(d.now()); until > 0 {
			delay = until
		}
	}

	jobID, err := d.broker.Enqueue(ctx, &Job{
		TaskID:      task.ID,
		Type:        task.Type,
		Queue:       route.Queue,
		Payload:     task.Payload,
		Priority:    task.Priority,
		Weight:      d.policy.DispatchWeight(task.Priority),
		MaxAttempts: route.MaxAttempts,
		BaseBackoff: route.BaseBackoff,
		Delay:       delay,
	})
	if err != nil {
		if !errors.Is(err, ErrBrokerUnavailable) {
			err = fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
		}
		return "", fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}

	if err := d.store.SetJobID(ctx, task.ID, jobID, route.Queue); err != nil {
		return "", fmt.Errorf("failed to record job id for task %s: %w", task.ID, err)
	}

	return jobID, nil
}
