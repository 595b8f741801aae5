package metrics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

// Collector samples queue depths on a fixed interval and records per-job
// processing times from worker outcome streams. It only populates gauges on
// a prometheus registry; the scrape transport is the embedding service's
// concern.
type Collector struct {
	broker   taskqueue.Broker
	queues   []string
	interval time.Duration
	log      *slog.Logger

	waiting   *prometheus.GaugeVec
	active    *prometheus.GaugeVec
	completed *prometheus.GaugeVec
	failed    *prometheus.GaugeVec
	delayed   *prometheus.GaugeVec
	procTime  *prometheus.GaugeVec

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// NewCollector creates a collector for the given queues. The sampling cadence
// comes from cfg.SampleInterval; a zero config falls back to ten seconds.
func NewCollector(broker taskqueue.Broker, queues []string, cfg Config, opts ...Option) (*Collector, error) {
	if broker == nil {
		return nil, taskqueue.ErrBrokerNil
	}
	if len(queues) == 0 {
		return nil, errors.New("at least one queue is required")
	}

	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	options := &collectorOptions{
		registerer: prometheus.DefaultRegisterer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	factory := promauto.With(options.registerer)
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"queue"})
	}

	return &Collector{
		broker:    broker,
		queues:    queues,
		interval:  interval,
		log:       options.logger,
		waiting:   gauge("queue_waiting_jobs", "Jobs ready for dequeue, by queue."),
		active:    gauge("queue_active_jobs", "Jobs currently being processed, by queue."),
		completed: gauge("queue_completed_jobs", "Completed job records retained by the broker, by queue."),
		failed:    gauge("queue_failed_jobs", "Jobs that exhausted their retry budget, by queue."),
		delayed:   gauge("queue_delayed_jobs", "Jobs waiting out a schedule or retry delay, by queue."),
		procTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "job_processing_time_ms",
			Help: "Last observed job processing time in milliseconds, by queue and outcome.",
		}, []string{"queue", "status"}),
	}, nil
}

// Start launches the periodic sampling loop.
func (c *Collector) Start(ctx context.Context) {
	c.done = make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				if err := c.Sample(ctx); err != nil {
					c.log.Error("queue stats sampling failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Watch consumes a worker's outcome stream until it is closed, recording the
// processing time of every finished job.
func (c *Collector) Watch(outcomes <-chan taskqueue.JobOutcome) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for o := range outcomes {
			c.Observe(o)
		}
	}()
}

// Observe records one job outcome.
func (c *Collector) Observe(o taskqueue.JobOutcome) {
	c.procTime.WithLabelValues(o.Queue, string(o.Outcome)).Set(float64(o.Duration.Milliseconds()))
}

// Sample takes one snapshot of every configured queue.
func (c *Collector) Sample(ctx context.Context) error {
	var errs []error
	for _, q := range c.queues {
		stats, err := c.broker.QueueStats(ctx, q)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.waiting.WithLabelValues(q).Set(float64(stats.Waiting))
		c.active.WithLabelValues(q).Set(float64(stats.Active))
		c.completed.WithLabelValues(q).Set(float64(stats.Completed))
		c.failed.WithLabelValues(q).Set(float64(stats.Failed))
		c.delayed.WithLabelValues(q).Set(float64(stats.Delayed))
	}
	return errors.Join(errs...)
}

// Stop halts sampling and waits for watch goroutines to drain their closed
// channels.
func (c *Collector) Stop() {
	c.once.Do(func() {
		if c.done != nil {
			close(c.done)
		}
	})
	c.wg.Wait()
}
