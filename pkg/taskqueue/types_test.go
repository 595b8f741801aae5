package taskqueue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

func TestTaskType_Valid(t *testing.T) {
	t.Parallel()

	t.Run("registered types", func(t *testing.T) {
		t.Parallel()

		assert.True(t, taskqueue.TaskTypeGrading.Valid())
		assert.True(t, taskqueue.TaskTypeReport.Valid())
		assert.True(t, taskqueue.TaskTypeMedia.Valid())
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		assert.False(t, taskqueue.TaskType("email").Valid())
		assert.False(t, taskqueue.TaskType("").Valid())
	})
}

func TestPriority_Valid(t *testing.T) {
	t.Parallel()

	t.Run("known levels", func(t *testing.T) {
		t.Parallel()

		assert.True(t, taskqueue.PriorityLow.Valid())
		assert.True(t, taskqueue.PriorityMedium.Valid())
		assert.True(t, taskqueue.PriorityHigh.Valid())
		assert.True(t, taskqueue.PriorityCritical.Valid())
	})

	t.Run("unknown level", func(t *testing.T) {
		t.Parallel()

		assert.False(t, taskqueue.Priority("urgent").Valid())
		assert.False(t, taskqueue.Priority("").Valid())
	})

	t.Run("default is medium", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, taskqueue.PriorityMedium, taskqueue.PriorityDefault)
	})
}
