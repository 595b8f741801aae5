package taskqueue

import "errors"

// Common errors
var (
	// ErrUnknownTaskType is returned when a task type has no registered route
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrTaskNotFound is returned when an operation references a missing task
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotDeadLettered is returned when retrying a task that is not in the dead-letter state
	ErrNotDeadLettered = errors.New("task is not dead-lettered")

	// ErrStaleTaskState is returned when a compare-and-set status update misses,
	// typically under at-least-once redelivery of the same job
	ErrStaleTaskState = errors.New("task state changed concurrently")

	// ErrBrokerUnavailable is returned when the broker rejects an enqueue or the
	// connection is down; the task row may already be persisted without a job id
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrHandlerNotFound is returned when no handler is registered for a task type
	ErrHandlerNotFound = errors.New("no handler registered for task type")

	// ErrNoHandlers is returned when a worker starts with no handlers registered
	ErrNoHandlers = errors.New("no task handlers registered")

	// ErrStoreNil is returned when a nil store is provided
	ErrStoreNil = errors.New("store cannot be nil")

	// ErrBrokerNil is returned when a nil broker is provided
	ErrBrokerNil = errors.New("broker cannot be nil")

	// ErrRouterNil is returned when a nil router is provided
	ErrRouterNil = errors.New("router cannot be nil")

	// ErrConsumerNil is returned when a nil consumer is provided
	ErrConsumerNil = errors.New("consumer cannot be nil")

	// ErrPayloadNil is returned when dispatching a task with no payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when priority is not one of the known levels
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrDuplicateRoute is returned when a router is built with two routes for one type
	ErrDuplicateRoute = errors.New("duplicate route for task type")

	// ErrNoRoutes is returned when a router is built with no routes
	ErrNoRoutes = errors.New("router has no routes")

	// ErrInvalidPage is returned when listing tasks with a page below 1
	ErrInvalidPage = errors.New("page must be 1 or greater")

	// ErrInvalidPageSize is returned when listing tasks with a non-positive page size
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)
