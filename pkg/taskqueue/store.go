package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Store is the durable record of every task and its lifecycle state. All
// status mutations are compare-and-set on the expected current status so that
// at-least-once broker delivery cannot double-complete a task or lose failure
// counts; a missed CAS returns ErrStaleTaskState, a missing row ErrTaskNotFound.
type Store interface {
	// Create persists a new pending task. The queue name is fixed at creation
	// and never changes afterwards.
	Create(ctx context.Context, params CreateTaskParams) (*Task, error)

	// Get returns a task with its results, or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Task, error)

	// List returns one page of tasks ordered by creation time descending.
	List(ctx context.Context, filter ListFilter) (*TaskPage, error)

	// SetJobID records the broker job id after a successful enqueue.
	SetJobID(ctx context.Context, id uuid.UUID, jobID, queueName string) error

	// MarkActive transitions pending -> active when a worker picks the task up.
	MarkActive(ctx context.Context, id uuid.UUID) error

	// RecordSuccess transitions active -> completed and appends the task result
	// produced by this execution. Result row and status change are atomic.
	RecordSuccess(ctx context.Context, id uuid.UUID, result, metadata json.RawMessage, processingTime time.Duration) error

	// RecordFailure stores the error and attempt count. It transitions
	// active -> pending when the broker will retry, active -> failed otherwise.
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, attempts int, willRetry bool) error

	// MarkDeadLetter transitions failed -> dead_letter.
	MarkDeadLetter(ctx context.Context, id uuid.UUID, errMsg string) error

	// FindOrphans returns pending tasks older than the grace period that never
	// received a job id, i.e. the enqueue step failed after the row was written.
	FindOrphans(ctx context.Context, olderThan time.Duration) ([]*Task, error)
}

// CreateTaskParams carries the immutable attributes of a new task.
type CreateTaskParams struct {
	Type         TaskType
	Priority     Priority
	Payload      json.RawMessage
	QueueName    string
	ScheduledFor *time.Time
}
