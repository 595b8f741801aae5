package taskqueue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

func newTestEngine(t *testing.T) (*taskqueue.Engine, *taskqueue.MemoryStore) {
	t.Helper()

	store := taskqueue.NewMemoryStore()
	broker := taskqueue.NewMemoryBroker()
	engine, err := taskqueue.New(store, broker)
	require.NoError(t, err)
	return engine, store
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()

		_, err := taskqueue.New(nil, taskqueue.NewMemoryBroker())
		assert.ErrorIs(t, err, taskqueue.ErrStoreNil)
	})

	t.Run("nil broker", func(t *testing.T) {
		t.Parallel()

		_, err := taskqueue.New(taskqueue.NewMemoryStore(), nil)
		assert.ErrorIs(t, err, taskqueue.ErrBrokerNil)
	})

	t.Run("custom routes", func(t *testing.T) {
		t.Parallel()

		engine, err := taskqueue.New(taskqueue.NewMemoryStore(), taskqueue.NewMemoryBroker(),
			taskqueue.WithRoutes(taskqueue.Route{
				Type: taskqueue.TaskTypeGrading, Queue: "essays", MaxAttempts: 2, BaseBackoff: time.Second,
			}))
		require.NoError(t, err)
		assert.Equal(t, []string{"essays"}, engine.Router().Queues())
	})

	t.Run("invalid routes rejected", func(t *testing.T) {
		t.Parallel()

		_, err := taskqueue.New(taskqueue.NewMemoryStore(), taskqueue.NewMemoryBroker(),
			taskqueue.WithRoutes(
				taskqueue.Route{Type: taskqueue.TaskTypeGrading, Queue: "a", MaxAttempts: 1},
				taskqueue.Route{Type: taskqueue.TaskTypeGrading, Queue: "b", MaxAttempts: 1},
			))
		assert.ErrorIs(t, err, taskqueue.ErrDuplicateRoute)
	})
}

func TestEngine_GetTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("defaults page and size", func(t *testing.T) {
		t.Parallel()

		engine, _ := newTestEngine(t)
		for range 3 {
			_, err := engine.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{}`))
			require.NoError(t, err)
		}

		page, err := engine.GetTasks(ctx, taskqueue.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 20, page.PageSize)
		assert.Equal(t, 3, page.Total)
	})

	t.Run("propagates filter errors", func(t *testing.T) {
		t.Parallel()

		engine, _ := newTestEngine(t)
		_, err := engine.GetTasks(ctx, taskqueue.ListFilter{Page: -1})
		assert.ErrorIs(t, err, taskqueue.ErrInvalidPage)
	})
}

func TestEngine_MarkTaskAsFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("retries while budget remains", func(t *testing.T) {
		t.Parallel()

		engine, store := newTestEngine(t)
		enq, err := engine.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{}`))
		require.NoError(t, err)
		require.NoError(t, store.MarkActive(ctx, enq.TaskID))

		// Grading allows five attempts; the second failure keeps it retryable.
		require.NoError(t, engine.MarkTaskAsFailed(ctx, enq.TaskID, "grader timeout", 2))

		task, err := engine.GetTaskByID(ctx, enq.TaskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.TaskStatusPending, task.Status)
	})

	t.Run("final attempt fails the task", func(t *testing.T) {
		t.Parallel()

		engine, store := newTestEngine(t)
		enq, err := engine.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{}`))
		require.NoError(t, err)
		require.NoError(t, store.MarkActive(ctx, enq.TaskID))

		require.NoError(t, engine.MarkTaskAsFailed(ctx, enq.TaskID, "grader timeout", 5))

		task, err := engine.GetTaskByID(ctx, enq.TaskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.TaskStatusFailed, task.Status)
		assert.Equal(t, 5, task.Attempts)
	})

	t.Run("attempt counts are capped at the route budget", func(t *testing.T) {
		t.Parallel()

		engine, store := newTestEngine(t)
		enq, err := engine.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{}`))
		require.NoError(t, err)
		require.NoError(t, store.MarkActive(ctx, enq.TaskID))

		// Grading allows five attempts; an inflated report must not persist more.
		require.NoError(t, engine.MarkTaskAsFailed(ctx, enq.TaskID, "grader timeout", 7))

		task, err := engine.GetTaskByID(ctx, enq.TaskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.TaskStatusFailed, task.Status)
		assert.Equal(t, 5, task.Attempts)
	})
}

func TestEngine_SaveTaskResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, store := newTestEngine(t)

	enq, err := engine.AddTask(ctx, taskqueue.TaskTypeReport, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, store.MarkActive(ctx, enq.TaskID))

	require.NoError(t, engine.SaveTaskResult(ctx, enq.TaskID,
		json.RawMessage(`{"url":"s3://reports/1.pdf"}`), nil, 340*time.Millisecond))

	task, err := engine.GetTaskByID(ctx, enq.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskStatusCompleted, task.Status)
	require.Len(t, task.Results, 1)
	assert.JSONEq(t, `{"url":"s3://reports/1.pdf"}`, string(task.Results[0].Result))
}

func TestEngine_DeadLetterFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, store := newTestEngine(t)

	enq, err := engine.AddTask(ctx, taskqueue.TaskTypeMedia, []byte(`{"video_id":"v-7"}`))
	require.NoError(t, err)
	require.NoError(t, store.MarkActive(ctx, enq.TaskID))
	require.NoError(t, engine.MarkTaskAsFailed(ctx, enq.TaskID, "codec error", 3))

	require.NoError(t, engine.MoveToDeadLetterQueue(ctx, enq.TaskID, "codec error"))

	task, err := engine.GetTaskByID(ctx, enq.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskStatusDeadLetter, task.Status)

	retried, err := engine.RetryDeadLetterTask(ctx, enq.TaskID)
	require.NoError(t, err)
	assert.NotEqual(t, enq.TaskID, retried.TaskID)

	fresh, err := engine.GetTaskByID(ctx, retried.TaskID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"video_id":"v-7"}`, string(fresh.Payload))
}

func TestEngine_QueueStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.AddTask(ctx, taskqueue.TaskTypeGrading, []byte(`{}`))
	require.NoError(t, err)

	stats, err := engine.QueueStats(ctx)
	require.NoError(t, err)

	names := make([]string, 0, len(stats))
	for _, s := range stats {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"grading", "report", "media", taskqueue.DeadLetterQueue}, names)

	for _, s := range stats {
		if s.Name == "grading" {
			assert.Equal(t, 1, s.Waiting)
		}
	}
}
