// Package taskqueue implements a durable, priority-aware task execution
// engine: callers submit units of asynchronous work that survive process
// restarts, retry transient failures with exponential backoff, and escalate
// permanently-failing work to a dead-letter queue for manual inspection.
//
// The package is organised around a small set of components:
//
//   - Store: durable record of every task and its lifecycle state
//   - Router: static task-type -> queue mapping with retry defaults
//   - RetryPolicy: priority -> dispatch weight and backoff computation
//   - Dispatcher: persists a task and submits its job to the routed queue
//   - Worker: consumes one queue and invokes the registered handler
//   - DeadLetter: explicit escalation of exhausted tasks, with manual retry
//   - Engine: facade bundling the above for the embedding service
//
// Persistence and transport stay behind the Store, Broker, and Consumer
// interfaces. Production deployments back them with PostgreSQL
// (pkg/taskstore) and Redis (pkg/broker); MemoryStore and MemoryBroker in
// this package serve tests and local development.
//
// # Task lifecycle
//
// A task is created pending, turns active when a worker picks it up, and ends
// completed, or failed once its queue's retry budget is exhausted.
// Failed tasks stay failed until an operator (or automation) explicitly moves
// them to the dead-letter queue; retrying a dead-lettered task forks a brand
// new task and leaves the original as an audit record.
//
// Between failed attempts the task is pending again while the broker holds
// the delayed retry. All status updates are compare-and-set so at-least-once
// delivery cannot double-complete a task.
//
// # Usage
//
//	store := taskqueue.NewMemoryStore()
//	broker := taskqueue.NewMemoryBroker()
//
//	engine, err := taskqueue.New(store, broker)
//	if err != nil {
//	    return err
//	}
//
//	enq, err := engine.AddTask(ctx, taskqueue.TaskTypeGrading,
//	    payload,
//	    taskqueue.WithPriority(taskqueue.PriorityHigh),
//	)
//
// Workers are started per queue with the handlers of the task types routed to
// it:
//
//	w, _ := taskqueue.NewWorker("grading", store, broker)
//	w.Register(taskqueue.TaskTypeGrading, gradingHandler)
//	_ = w.Start(ctx)
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrUnknownTaskType, ErrTaskNotFound,
// ErrNotDeadLettered) signal violations of business invariants and can be
// checked with errors.Is.
package taskqueue
