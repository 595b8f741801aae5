package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenlms/taskengine/pkg/pg"
	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

// PostgresStore implements taskqueue.Store on top of a pgx connection pool.
// Status transitions are guarded with compare-and-set UPDATEs on the expected
// current status, which keeps concurrent at-least-once deliveries from
// double-completing a task or losing failure counts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool. The schema is
// managed by the goose migrations under migrations/.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pgx pool cannot be nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const taskColumns = `id, type, status, priority, payload, job_id, queue_name, error, attempts, scheduled_for, created_at, updated_at`

// Healthcheck returns a connectivity check over the store's pool, suitable
// for readiness endpoints.
func (s *PostgresStore) Healthcheck() func(context.Context) error {
	return pg.Healthcheck(s.pool)
}

// Create implements taskqueue.Store
func (s *PostgresStore) Create(ctx context.Context, params taskqueue.CreateTaskParams) (*taskqueue.Task, error) {
	now := time.Now().UTC()
	task := &taskqueue.Task{
		ID:           uuid.New(),
		Type:         params.Type,
		Status:       taskqueue.TaskStatusPending,
		Priority:     params.Priority,
		Payload:      params.Payload,
		QueueName:    params.QueueName,
		ScheduledFor: params.ScheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, type, status, priority, payload, queue_name, attempts, scheduled_for, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $8)`,
		task.ID, task.Type, task.Status, task.Priority, task.Payload, task.QueueName, task.ScheduledFor, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	return task, nil
}

// Get implements taskqueue.Store
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*taskqueue.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, taskqueue.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, result, metadata, processing_time_ms, created_at
		 FROM task_results WHERE task_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for task %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var res taskqueue.TaskResult
		if err := rows.Scan(&res.ID, &res.TaskID, &res.Result, &res.Metadata, &res.ProcessingTimeMs, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		task.Results = append(task.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task results: %w", err)
	}

	return task, nil
}

// List implements taskqueue.Store
func (s *PostgresStore) List(ctx context.Context, filter taskqueue.ListFilter) (*taskqueue.TaskPage, error) {
	if filter.Page < 1 {
		return nil, taskqueue.ErrInvalidPage
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		return nil, taskqueue.ErrInvalidPageSize
	}

	where := ""
	args := []any{}
	appendCond := func(cond string, val any) {
		args = append(args, val)
		if where == "" {
			where = fmt.Sprintf(" WHERE %s $%d", cond, len(args))
		} else {
			where += fmt.Sprintf(" AND %s $%d", cond, len(args))
		}
	}
	if filter.Status != nil {
		appendCond("status =", *filter.Status)
	}
	if filter.Type != nil {
		appendCond("type =", *filter.Type)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	query := fmt.Sprintf(`SELECT `+taskColumns+` FROM tasks`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	page := &taskqueue.TaskPage{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		Total:      total,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		page.Data = append(page.Data, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	return page, nil
}

// SetJobID implements taskqueue.Store
func (s *PostgresStore) SetJobID(ctx context.Context, id uuid.UUID, jobID, queueName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET job_id = $2, queue_name = $3, updated_at = now() WHERE id = $1`,
		id, jobID, queueName)
	if err != nil {
		return fmt.Errorf("failed to set job id for task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return taskqueue.ErrTaskNotFound
	}
	return nil
}

// MarkActive implements taskqueue.Store
func (s *PostgresStore) MarkActive(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id,
		`UPDATE tasks SET status = 'active', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`)
}

// RecordSuccess implements taskqueue.Store
func (s *PostgresStore) RecordSuccess(ctx context.Context, id uuid.UUID, result, metadata json.RawMessage, processingTime time.Duration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE tasks SET status = 'completed', error = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}

	var millis *int64
	if processingTime > 0 {
		v := processingTime.Milliseconds()
		millis = &v
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO task_results (id, task_id, result, metadata, processing_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.New(), id, result, metadata, millis); err != nil {
		return fmt.Errorf("failed to insert result for task %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit result for task %s: %w", id, err)
	}
	return nil
}

// RecordFailure implements taskqueue.Store
func (s *PostgresStore) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, attempts int, willRetry bool) error {
	next := taskqueue.TaskStatusFailed
	if willRetry {
		next = taskqueue.TaskStatusPending
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, error = $3, attempts = GREATEST(attempts, $4), updated_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id, next, errMsg, attempts)
	if err != nil {
		return fmt.Errorf("failed to record failure for task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// MarkDeadLetter implements taskqueue.Store
func (s *PostgresStore) MarkDeadLetter(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = 'dead_letter', error = $2, updated_at = now()
		 WHERE id = $1 AND status = 'failed'`,
		id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to dead-letter task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// FindOrphans implements taskqueue.Store
func (s *PostgresStore) FindOrphans(ctx context.Context, olderThan time.Duration) ([]*taskqueue.Task, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'pending' AND job_id IS NULL AND created_at < $1
		 ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find orphaned tasks: %w", err)
	}
	defer rows.Close()

	var orphans []*taskqueue.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan orphaned task: %w", err)
		}
		orphans = append(orphans, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orphaned tasks: %w", err)
	}
	return orphans, nil
}

// transition runs a compare-and-set UPDATE and maps a zero-row result to
// ErrTaskNotFound or ErrStaleTaskState.
func (s *PostgresStore) transition(ctx context.Context, id uuid.UUID, query string) error {
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// staleOrMissing distinguishes a CAS miss from a missing row.
func (s *PostgresStore) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to probe task %s: %w", id, err)
	}
	if !exists {
		return taskqueue.ErrTaskNotFound
	}
	return taskqueue.ErrStaleTaskState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*taskqueue.Task, error) {
	var task taskqueue.Task
	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.Status,
		&task.Priority,
		&task.Payload,
		&task.JobID,
		&task.QueueName,
		&task.Error,
		&task.Attempts,
		&task.ScheduledFor,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
