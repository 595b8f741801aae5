package taskqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeadLetterQueue is the reserved queue name holding exhausted tasks for
// operator review. It is terminal: jobs placed on it are never retried.
const DeadLetterQueue = "dead_letter"

// TaskType identifies the kind of work a task carries and fixes the queue
// the task is routed to for its whole lifetime.
type TaskType string

const (
	TaskTypeGrading TaskType = "grading"
	TaskTypeReport  TaskType = "report"
	TaskTypeMedia   TaskType = "media"
)

// Valid checks if the task type is one of the registered kinds.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeGrading, TaskTypeReport, TaskTypeMedia:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusActive     TaskStatus = "active"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusDeadLetter TaskStatus = "dead_letter"
)

// Priority is an advisory dispatch-ordering hint. It is immutable per task
// instance and never a hard guarantee: a broker may interleave lower-priority
// work that was already in flight.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"

	PriorityDefault = PriorityMedium
)

// Valid checks if the priority is one of the known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Task is the durable record of one unit of asynchronous work.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	Type         TaskType        `json:"type"`
	Status       TaskStatus      `json:"status"`
	Priority     Priority        `json:"priority"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	JobID        *string         `json:"job_id,omitempty"`
	QueueName    string          `json:"queue_name"`
	Error        *string         `json:"error,omitempty"`
	Attempts     int             `json:"attempts"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Results is populated by Store.Get; empty until the task completes.
	Results []TaskResult `json:"results,omitempty"`
}

// TaskResult is the output of one successful task execution. Failed attempts
// produce no result rows.
type TaskResult struct {
	ID               uuid.UUID       `json:"id"`
	TaskID           uuid.UUID       `json:"task_id"`
	Result           json.RawMessage `json:"result,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	ProcessingTimeMs *int64          `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Job is the broker-bound representation of a task submission. The broker
// assigns its own job identifier on enqueue; the task id travels inside the
// job payload so workers can correlate deliveries back to the store.
type Job struct {
	TaskID      uuid.UUID
	Type        TaskType
	Queue       string
	Payload     json.RawMessage
	Priority    Priority
	Weight      int
	MaxAttempts int
	BaseBackoff time.Duration
	Delay       time.Duration
}

// Delivery is one attempt of a job handed to a ProcessFunc by a Consumer.
// Attempt is 1-based and monotonically increasing across redeliveries.
type Delivery struct {
	JobID       string
	TaskID      uuid.UUID
	Type        TaskType
	Queue       string
	Payload     json.RawMessage
	Attempt     int
	MaxAttempts int
}

// Enqueued is returned by the dispatcher after a task was persisted and its
// job accepted by the broker.
type Enqueued struct {
	TaskID uuid.UUID `json:"task_id"`
	JobID  string    `json:"job_id"`
}

// DeadLetterRecord is the descriptive payload placed on the dead-letter queue
// for operator visibility when a task is escalated.
type DeadLetterRecord struct {
	TaskID        uuid.UUID       `json:"task_id"`
	OriginalQueue string          `json:"original_queue"`
	OriginalJobID string          `json:"original_job_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error"`
}

// QueueStats is a point-in-time sample of one queue's job counts.
type QueueStats struct {
	Name      string `json:"name"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Delayed   int    `json:"delayed"`
}

// Outcome classifies a finished job execution.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// JobOutcome is published by workers after every handler invocation. Metrics
// collection consumes it independently from store updates.
type JobOutcome struct {
	TaskID   uuid.UUID
	Queue    string
	Outcome  Outcome
	Duration time.Duration
}

// ListFilter narrows and paginates Store.List results.
type ListFilter struct {
	Page     int
	PageSize int
	Status   *TaskStatus
	Type     *TaskType
}

// TaskPage is one page of tasks ordered by creation time, newest first.
type TaskPage struct {
	Data       []*Task `json:"data"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
}
