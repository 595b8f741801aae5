package taskqueue

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store for tests and local development. It enforces
// the same compare-and-set transition rules as the PostgreSQL store.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[uuid.UUID]*Task
	results map[uuid.UUID][]TaskResult
	order   []uuid.UUID
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[uuid.UUID]*Task),
		results: make(map[uuid.UUID][]TaskResult),
		now:     time.Now,
	}
}

// Create implements Store
func (ms *MemoryStore) Create(ctx context.Context, params CreateTaskParams) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	task := &Task{
		ID:           uuid.New(),
		Type:         params.Type,
		Status:       TaskStatusPending,
		Priority:     params.Priority,
		Payload:      slices.Clone(params.Payload),
		QueueName:    params.QueueName,
		ScheduledFor: params.ScheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ms.tasks[task.ID] = task
	ms.order = append(ms.order, task.ID)

	return ms.cloneLocked(task), nil
}

// Get implements Store
func (ms *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return ms.cloneLocked(task), nil
}

// List implements Store
func (ms *MemoryStore) List(ctx context.Context, filter ListFilter) (*TaskPage, error) {
	if filter.Page < 1 {
		return nil, ErrInvalidPage
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		return nil, ErrInvalidPageSize
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	matched := make([]*Task, 0, len(ms.order))
	for _, id := range ms.order {
		task := ms.tasks[id]
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && task.Type != *filter.Type {
			continue
		}
		matched = append(matched, task)
	}

	// Newest first; creation order breaks ties deterministically.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	totalPages := (total + filter.PageSize - 1) / filter.PageSize
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := min(start+filter.PageSize, total)

	page := &TaskPage{
		Data:       make([]*Task, 0, end-start),
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		Total:      total,
		TotalPages: totalPages,
	}
	for _, task := range matched[start:end] {
		page.Data = append(page.Data, ms.cloneLocked(task))
	}

	return page, nil
}

// SetJobID implements Store
func (ms *MemoryStore) SetJobID(ctx context.Context, id uuid.UUID, jobID, queueName string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	task.JobID = &jobID
	task.QueueName = queueName
	task.UpdatedAt = ms.now()
	return nil
}

// MarkActive implements Store
func (ms *MemoryStore) MarkActive(ctx context.Context, id uuid.UUID) error {
	return ms.transition(id, TaskStatusPending, func(task *Task) {
		task.Status = TaskStatusActive
	})
}

// RecordSuccess implements Store
func (ms *MemoryStore) RecordSuccess(ctx context.Context, id uuid.UUID, result, metadata json.RawMessage, processingTime time.Duration) error {
	return ms.transition(id, TaskStatusActive, func(task *Task) {
		task.Status = TaskStatusCompleted
		task.Error = nil

		res := TaskResult{
			ID:        uuid.New(),
			TaskID:    id,
			Result:    slices.Clone(result),
			Metadata:  slices.Clone(metadata),
			CreatedAt: ms.now(),
		}
		if processingTime > 0 {
			millis := processingTime.Milliseconds()
			res.ProcessingTimeMs = &millis
		}
		ms.results[id] = append(ms.results[id], res)
	})
}

// RecordFailure implements Store
func (ms *MemoryStore) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, attempts int, willRetry bool) error {
	return ms.transition(id, TaskStatusActive, func(task *Task) {
		if willRetry {
			task.Status = TaskStatusPending
		} else {
			task.Status = TaskStatusFailed
		}
		task.Error = &errMsg
		if attempts > task.Attempts {
			task.Attempts = attempts
		}
	})
}

// MarkDeadLetter implements Store
func (ms *MemoryStore) MarkDeadLetter(ctx context.Context, id uuid.UUID, errMsg string) error {
	return ms.transition(id, TaskStatusFailed, func(task *Task) {
		task.Status = TaskStatusDeadLetter
		task.Error = &errMsg
	})
}

// FindOrphans implements Store
func (ms *MemoryStore) FindOrphans(ctx context.Context, olderThan time.Duration) ([]*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	cutoff := ms.now().Add(-olderThan)
	var orphans []*Task
	for _, id := range ms.order {
		task := ms.tasks[id]
		if task.Status == TaskStatusPending && task.JobID == nil && task.CreatedAt.Before(cutoff) {
			orphans = append(orphans, ms.cloneLocked(task))
		}
	}
	return orphans, nil
}

// transition applies a mutation under the compare-and-set rule: the task must
// currently be in the expected status, otherwise ErrStaleTaskState.
func (ms *MemoryStore) transition(id uuid.UUID, expected TaskStatus, mutate func(*Task)) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if task.Status != expected {
		return ErrStaleTaskState
	}
	mutate(task)
	task.UpdatedAt = ms.now()
	return nil
}

// cloneLocked copies a task with its results; callers must hold the mutex.
func (ms *MemoryStore) cloneLocked(task *Task) *Task {
	cp := *task
	cp.Payload = slices.Clone(task.Payload)
	if results, ok := ms.results[task.ID]; ok {
		cp.Results = slices.Clone(results)
	}
	return &cp
}
