package taskqueue

import (
	"fmt"
	"time"
)

// Route binds a task type to its queue and that queue's retry defaults.
type Route struct {
	Type        TaskType
	Queue       string
	MaxAttempts int
	BaseBackoff time.Duration
}

// Router is the static task-type -> queue mapping. Routes are injected at
// construction and immutable afterwards; there is no package-level table.
type Router struct {
	routes map[TaskType]Route
	queues []string
}

// DefaultRoutes returns the standard routing table: grading work gets the
// largest retry budget with the shortest backoff, media the longest backoff
// since transcoding failures tend to be infrastructure-related.
func DefaultRoutes() []Route {
	return []Route{
		{Type: TaskTypeGrading, Queue: "grading", MaxAttempts: 5, BaseBackoff: time.Second},
		{Type: TaskTypeReport, Queue: "report", MaxAttempts: 3, BaseBackoff: 2 * time.Second},
		{Type: TaskTypeMedia, Queue: "media", MaxAttempts: 3, BaseBackoff: 5 * time.Second},
	}
}

// NewRouter builds a router from the given routes.
func NewRouter(routes ...Route) (*Router, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}

	r := &Router{routes: make(map[TaskType]Route, len(routes))}
	for _, route := range routes {
		if _, exists := r.routes[route.Type]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoute, route.Type)
		}
		if route.Queue == "" {
			return nil, fmt.Errorf("route for type %q has empty queue name", route.Type)
		}
		if route.MaxAttempts < 1 {
			return nil, fmt.Errorf("route for type %q must allow at least one attempt", route.Type)
		}
		r.routes[route.Type] = route
		r.queues = append(r.queues, route.Queue)
	}

	return r, nil
}

// RouteFor resolves the queue and retry defaults for a task type.
func (r *Router) RouteFor(t TaskType) (Route, error) {
	route, ok := r.routes[t]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownTaskType, t)
	}
	return route, nil
}

// Queues returns the queue names of all registered routes, in registration
// order, excluding the dead-letter queue.
func (r *Router) Queues() []string {
	out := make([]string, len(r.queues))
	copy(out, r.queues)
	return out
}

// DeadLetterRoute returns the terminal route of the dead-letter queue: a
// single attempt and no backoff, since dead-lettered jobs are never retried
// by the broker.
func DeadLetterRoute() Route {
	return Route{Queue: DeadLetterQueue, MaxAttempts: 1}
}
