package taskqueue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

type deadLetterHarness struct {
	store      *taskqueue.MemoryStore
	broker     *stubBroker
	dispatcher *taskqueue.Dispatcher
	deadletter *taskqueue.DeadLetter
}

func newDeadLetterHarness(t *testing.T) *deadLetterHarness {
	t.Helper()

	broker := &stubBroker{}
	dispatcher, store := newTestDispatcher(t, broker)
	deadletter, err := taskqueue.NewDeadLetter(store, broker, dispatcher)
	require.NoError(t, err)

	return &deadLetterHarness{store: store, broker: broker, dispatcher: dispatcher, deadletter: deadletter}
}

// failTask walks a freshly dispatched task to the failed state.
func (h *deadLetterHarness) failTask(t *testing.T, errMsg string) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	enq, err := h.dispatcher.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{"submission_id":"s-9"}`))
	require.NoError(t, err)
	require.NoError(t, h.store.MarkActive(ctx, enq.TaskID))
	require.NoError(t, h.store.RecordFailure(ctx, enq.TaskID, errMsg, 5, false))
	return enq.TaskID
}

func TestDeadLetter_Move(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("escalates failed task", func(t *testing.T) {
		t.Parallel()

		h := newDeadLetterHarness(t)
		taskID := h.failTask(t, "grader unavailable")

		require.NoError(t, h.deadletter.Move(ctx, taskID, "exhausted all attempts"))

		task, err := h.store.Get(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.TaskStatusDeadLetter, task.Status)
		require.NotNil(t, task.Error)
		assert.Equal(t, "exhausted all attempts", *task.Error)

		job := h.broker.lastJob()
		require.NotNil(t, job)
		assert.Equal(t, taskqueue.DeadLetterQueue, job.Queue)
		assert.Equal(t, 1, job.MaxAttempts)

		var record taskqueue.DeadLetterRecord
		require.NoError(t, json.Unmarshal(job.Payload, &record))
		assert.Equal(t, taskID, record.TaskID)
		assert.Equal(t, "grading", record.OriginalQueue)
		assert.Equal(t, "exhausted all attempts", record.Error)
		assert.JSONEq(t, `{"submission_id":"s-9"}`, string(record.Payload))
	})

	t.Run("rejects non-failed task", func(t *testing.T) {
		t.Parallel()

		h := newDeadLetterHarness(t)
		enq, err := h.dispatcher.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{}`))
		require.NoError(t, err)

		err = h.deadletter.Move(ctx, enq.TaskID, "still pending")
		assert.ErrorIs(t, err, taskqueue.ErrStaleTaskState)
	})

	t.Run("unknown task", func(t *testing.T) {
		t.Parallel()

		h := newDeadLetterHarness(t)
		err := h.deadletter.Move(ctx, uuid.New(), "missing")
		assert.ErrorIs(t, err, taskqueue.ErrTaskNotFound)
	})
}

func TestDeadLetter_Retry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("forks a new task", func(t *testing.T) {
		t.Parallel()

		h := newDeadLetterHarness(t)
		taskID := h.failTask(t, "grader unavailable")
		require.NoError(t, h.deadletter.Move(ctx, taskID, "escalated"))

		enq, err := h.deadletter.Retry(ctx, taskID)
		require.NoError(t, err)
		assert.NotEqual(t, taskID, enq.TaskID, "retry must fork a fresh task id")

		fresh, err := h.store.Get(ctx, enq.TaskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.TaskStatusPending, fresh.Status)
		assert.Equal(t, taskqueue.TaskTypeGrading, fresh.Type)
		assert.Zero(t, fresh.Attempts)
		assert.JSONEq(t, `{"submission_id":"s-9"}`, string(fresh.Payload))

		// The original stays as an audit record.
		original, err := h.store.Get(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.TaskStatusDeadLetter, original.Status)
	})

	t.Run("preserves priority", func(t *testing.T) {
		t.Parallel()

		h := newDeadLetterHarness(t)
		enq, err := h.dispatcher.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{}`),
			taskqueue.WithPriority(taskqueue.PriorityCritical))
		require.NoError(t, err)
		require.NoError(t, h.store.MarkActive(ctx, enq.TaskID))
		require.NoError(t, h.store.RecordFailure(ctx, enq.TaskID, "boom", 5, false))
		require.NoError(t, h.deadletter.Move(ctx, enq.TaskID, "escalated"))

		retried, err := h.deadletter.Retry(ctx, enq.TaskID)
		require.NoError(t, err)

		fresh, err := h.store.Get(ctx, retried.TaskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.PriorityCritical, fresh.Priority)
	})

	t.Run("rejects task that is not dead-lettered", func(t *testing.T) {
		t.Parallel()

		h := newDeadLetterHarness(t)
		taskID := h.failTask(t, "boom")

		_, err := h.deadletter.Retry(ctx, taskID)
		assert.ErrorIs(t, err, taskqueue.ErrNotDeadLettered)
	})

	t.Run("unknown task", func(t *testing.T) {
		t.Parallel()

		h := newDeadLetterHarness(t)
		_, err := h.deadletter.Retry(ctx, uuid.New())
		assert.ErrorIs(t, err, taskqueue.ErrTaskNotFound)
	})
}
