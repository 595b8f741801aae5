package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/taskengine/pkg/config"
	"github.com/lumenlms/taskengine/pkg/metrics"
	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

// statsBroker serves canned stats per queue.
type statsBroker struct {
	stats map[string]taskqueue.QueueStats
	err   error
}

func (b *statsBroker) Enqueue(ctx context.Context, job *taskqueue.Job) (string, error) {
	return "", errors.New("not implemented")
}

func (b *statsBroker) QueueStats(ctx context.Context, queue string) (taskqueue.QueueStats, error) {
	if b.err != nil {
		return taskqueue.QueueStats{}, b.err
	}
	return b.stats[queue], nil
}

func (b *statsBroker) PruneCompleted(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	return 0, nil
}

// gaugeValue digs one labeled gauge sample out of a gathered registry.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, m := range family.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				got[l.GetName()] = l.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("no sample for %s%v", name, labels)
	return 0
}

func hasMetric(families []*dto.MetricFamily, name string) bool {
	for _, f := range families {
		if f.GetName() == name {
			return true
		}
	}
	return false
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("nil broker", func(t *testing.T) {
		t.Parallel()

		_, err := metrics.NewCollector(nil, []string{"grading"}, metrics.Config{},
			metrics.WithRegisterer(prometheus.NewRegistry()))
		assert.ErrorIs(t, err, taskqueue.ErrBrokerNil)
	})

	t.Run("no queues", func(t *testing.T) {
		t.Parallel()

		_, err := metrics.NewCollector(&statsBroker{}, nil, metrics.Config{},
			metrics.WithRegisterer(prometheus.NewRegistry()))
		assert.Error(t, err)
	})

	t.Run("registers all gauges", func(t *testing.T) {
		t.Parallel()

		reg := prometheus.NewRegistry()
		c, err := metrics.NewCollector(&statsBroker{}, []string{"grading"}, metrics.Config{},
			metrics.WithRegisterer(reg))
		require.NoError(t, err)
		require.NotNil(t, c)
	})
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	var cfg metrics.Config
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 10*time.Second, cfg.SampleInterval)
}

func TestCollector_Sample(t *testing.T) {
	t.Parallel()

	t.Run("populates gauges per queue", func(t *testing.T) {
		t.Parallel()

		broker := &statsBroker{stats: map[string]taskqueue.QueueStats{
			"grading": {Name: "grading", Waiting: 4, Active: 2, Completed: 10, Failed: 1, Delayed: 3},
			"report":  {Name: "report", Waiting: 1},
		}}

		reg := prometheus.NewRegistry()
		c, err := metrics.NewCollector(broker, []string{"grading", "report"}, metrics.Config{},
			metrics.WithRegisterer(reg))
		require.NoError(t, err)

		require.NoError(t, c.Sample(context.Background()))

		grading := map[string]string{"queue": "grading"}
		assert.Equal(t, 4.0, gaugeValue(t, reg, "queue_waiting_jobs", grading))
		assert.Equal(t, 2.0, gaugeValue(t, reg, "queue_active_jobs", grading))
		assert.Equal(t, 10.0, gaugeValue(t, reg, "queue_completed_jobs", grading))
		assert.Equal(t, 1.0, gaugeValue(t, reg, "queue_failed_jobs", grading))
		assert.Equal(t, 3.0, gaugeValue(t, reg, "queue_delayed_jobs", grading))

		assert.Equal(t, 1.0, gaugeValue(t, reg, "queue_waiting_jobs", map[string]string{"queue": "report"}))
	})

	t.Run("surfaces broker errors", func(t *testing.T) {
		t.Parallel()

		broker := &statsBroker{err: errors.New("redis down")}
		reg := prometheus.NewRegistry()
		c, err := metrics.NewCollector(broker, []string{"grading"}, metrics.Config{}, metrics.WithRegisterer(reg))
		require.NoError(t, err)

		assert.Error(t, c.Sample(context.Background()))
	})
}

func TestCollector_Observe(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(&statsBroker{}, []string{"grading"}, metrics.Config{}, metrics.WithRegisterer(reg))
	require.NoError(t, err)

	c.Observe(taskqueue.JobOutcome{
		TaskID:   uuid.New(),
		Queue:    "grading",
		Outcome:  taskqueue.OutcomeCompleted,
		Duration: 250 * time.Millisecond,
	})
	c.Observe(taskqueue.JobOutcome{
		TaskID:   uuid.New(),
		Queue:    "grading",
		Outcome:  taskqueue.OutcomeFailed,
		Duration: 40 * time.Millisecond,
	})

	assert.Equal(t, 250.0, gaugeValue(t, reg, "job_processing_time_ms",
		map[string]string{"queue": "grading", "status": "completed"}))
	assert.Equal(t, 40.0, gaugeValue(t, reg, "job_processing_time_ms",
		map[string]string{"queue": "grading", "status": "failed"}))
}

func TestCollector_Watch(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(&statsBroker{}, []string{"grading"}, metrics.Config{}, metrics.WithRegisterer(reg))
	require.NoError(t, err)

	outcomes := make(chan taskqueue.JobOutcome, 1)
	c.Watch(outcomes)

	outcomes <- taskqueue.JobOutcome{
		Queue:    "grading",
		Outcome:  taskqueue.OutcomeCompleted,
		Duration: 100 * time.Millisecond,
	}
	close(outcomes)
	c.Stop()

	assert.Equal(t, 100.0, gaugeValue(t, reg, "job_processing_time_ms",
		map[string]string{"queue": "grading", "status": "completed"}))
}

func TestCollector_StartSamplesPeriodically(t *testing.T) {
	t.Parallel()

	broker := &statsBroker{stats: map[string]taskqueue.QueueStats{
		"grading": {Name: "grading", Waiting: 7},
	}}
	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(broker, []string{"grading"},
		metrics.Config{SampleInterval: 5 * time.Millisecond},
		metrics.WithRegisterer(reg))
	require.NoError(t, err)

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool {
		families, err := reg.Gather()
		if err != nil || !hasMetric(families, "queue_waiting_jobs") {
			return false
		}
		return gaugeValue(t, reg, "queue_waiting_jobs", map[string]string{"queue": "grading"}) == 7.0
	}, 2*time.Second, 5*time.Millisecond)
}
