package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Engine is the programmatic surface of the task execution subsystem,
// consumed by the HTTP layer and the processors. It bundles the dispatcher,
// dead-letter handler, and store queries behind one facade; the individual
// components remain usable on their own.
type Engine struct {
	store      Store
	broker     Broker
	router     *Router
	policy     *RetryPolicy
	dispatcher *Dispatcher
	deadletter *DeadLetter
	log        *slog.Logger
}

// EngineOption is a functional option for configuring the engine
type EngineOption func(*engineOptions)

type engineOptions struct {
	routes []Route
	policy *RetryPolicy
	logger *slog.Logger
}

// WithRoutes overrides the default routing table.
func WithRoutes(routes ...Route) EngineOption {
	return func(o *engineOptions) {
		if len(routes) > 0 {
			o.routes = routes
		}
	}
}

// WithEngineRetryPolicy overrides the default priority-weight/backoff policy.
func WithEngineRetryPolicy(p *RetryPolicy) EngineOption {
	return func(o *engineOptions) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithEngineLogger sets the logger for the engine and its components
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an engine over the given store and broker.
func New(store Store, broker Broker, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if broker == nil {
		return nil, ErrBrokerNil
	}

	options := &engineOptions{
		routes: DefaultRoutes(),
		policy: DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	router, err := NewRouter(options.routes...)
	if err != nil {
		return nil, err
	}

	dispatcher, err := NewDispatcher(store, broker, router,
		WithRetryPolicy(options.policy),
		WithDispatcherLogger(options.logger))
	if err != nil {
		return nil, err
	}

	deadletter, err := NewDeadLetter(store, broker, dispatcher,
		WithDeadLetterRetryPolicy(options.policy),
		WithDeadLetterLogger(options.logger))
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      store,
		broker:     broker,
		router:     router,
		policy:     options.policy,
		dispatcher: dispatcher,
		deadletter: deadletter,
		log:        options.logger,
	}, nil
}

// AddTask persists and enqueues a new task. See Dispatcher.AddTask.
func (e *Engine) AddTask(ctx context.Context, taskType TaskType, payload []byte, opts ...AddTaskOption) (*Enqueued, error) {
	return e.dispatcher.AddTask(ctx, taskType, payload, opts...)
}

// GetTaskByID returns a task with its results.
func (e *Engine) GetTaskByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	return e.store.Get(ctx, id)
}

// GetTasks lists tasks newest-first with optional status and type filters.
// Zero page/page-size default to the first page of twenty.
func (e *Engine) GetTasks(ctx context.Context, filter ListFilter) (*TaskPage, error) {
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}
	return e.store.List(ctx, filter)
}

// SaveTaskResult records a successful execution, called at the worker/handler
// boundary.
func (e *Engine) SaveTaskResult(ctx context.Context, id uuid.UUID, result, metadata json.RawMessage, processingTime time.Duration) error {
	return e.store.RecordSuccess(ctx, id, result, metadata, processingTime)
}

// MarkTaskAsFailed records a failed execution attempt. The task returns to
// pending while the queue's retry budget allows, and stays failed once the
// budget is exhausted. Attempt counts above the route budget are clamped to
// it, so a replayed or duplicated failure report cannot push the persisted
// counter past the queue's maximum.
func (e *Engine) MarkTaskAsFailed(ctx context.Context, id uuid.UUID, errMsg string, attempts int) error {
	task, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	route, err := e.router.RouteFor(task.Type)
	if err != nil {
		return err
	}
	if attempts > route.MaxAttempts {
		attempts = route.MaxAttempts
	}
	return e.store.RecordFailure(ctx, id, errMsg, attempts, attempts < route.MaxAttempts)
}

// MoveToDeadLetterQueue explicitly escalates a failed task. See DeadLetter.Move.
func (e *Engine) MoveToDeadLetterQueue(ctx context.Context, id uuid.UUID, errMsg string) error {
	return e.deadletter.Move(ctx, id, errMsg)
}

// RetryDeadLetterTask re-dispatches a dead-lettered task as a new task.
// See DeadLetter.Retry.
func (e *Engine) RetryDeadLetterTask(ctx context.Context, id uuid.UUID) (*Enqueued, error) {
	return e.deadletter.Retry(ctx, id)
}

// QueueStats samples every routed queue plus the dead-letter queue.
func (e *Engine) QueueStats(ctx context.Context) ([]QueueStats, error) {
	queues := append(e.router.Queues(), DeadLetterQueue)
	out := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		stats, err := e.broker.QueueStats(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to sample queue %q: %w", q, err)
		}
		out = append(out, stats)
	}
	return out, nil
}

// Dispatcher exposes the underlying dispatcher, e.g. for the reconciliation
// sweep to re-enqueue orphans.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// Router exposes the routing table.
func (e *Engine) Router() *Router {
	return e.router
}
