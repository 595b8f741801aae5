package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	redispkg "github.com/lumenlms/taskengine/pkg/redis"
	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

// priorities orders the sub-queues of one logical queue, most urgent first.
// Each logical queue fans out into one Redis queue per priority level; the
// consumer services them in strict priority order, which keeps the dispatch
// weights advisory the way the engine promises.
var priorities = []taskqueue.Priority{
	taskqueue.PriorityCritical,
	taskqueue.PriorityHigh,
	taskqueue.PriorityMedium,
	taskqueue.PriorityLow,
}

// Broker implements taskqueue.Broker and taskqueue.Consumer on Redis via
// asynq. Retry scheduling, delayed visibility, and the archived set of
// exhausted jobs all live broker-side; this package only translates between
// the engine's job model and the asynq wire format.
type Broker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redisOpt  asynq.RedisConnOpt
	policy    *taskqueue.RetryPolicy
	retention time.Duration
	conc      int
	log       *slog.Logger

	mu      sync.Mutex
	servers map[string]*asynq.Server

	healthClient interface{ Close() error }
	healthcheck  func(ctx context.Context) error
}

// jobPayload is the wire envelope carried by every broker job. The base
// backoff travels with the job so the server-side retry delay function can
// compute the exponential schedule without a routing table.
type jobPayload struct {
	TaskID        string          `json:"task_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	BaseBackoffMs int64           `json:"base_backoff_ms,omitempty"`
}

// New connects to Redis (with ping retry) and builds the broker.
func New(ctx context.Context, cfg Config, opts ...Option) (*Broker, error) {
	options := &brokerOptions{
		policy: taskqueue.DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %w", taskqueue.ErrBrokerUnavailable, err)
	}

	// Verify connectivity up front so a misconfigured broker fails at startup
	// rather than on the first enqueue.
	client, err := redispkg.Connect(ctx, redispkg.Config{
		ConnectionURL:  cfg.RedisURL,
		ConnectTimeout: cfg.ConnectTimeout,
		RetryAttempts:  cfg.ConnectRetries,
		RetryInterval:  cfg.ConnectRetryInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", taskqueue.ErrBrokerUnavailable, err)
	}

	return &Broker{
		client:       asynq.NewClient(redisOpt),
		inspector:    asynq.NewInspector(redisOpt),
		redisOpt:     redisOpt,
		policy:       options.policy,
		retention:    cfg.CompletedRetention,
		conc:         cfg.Concurrency,
		log:          options.logger,
		servers:      make(map[string]*asynq.Server),
		healthClient: client,
		healthcheck:  redispkg.Healthcheck(client),
	}, nil
}

// Enqueue implements taskqueue.Broker
func (b *Broker) Enqueue(ctx context.Context, job *taskqueue.Job) (string, error) {
	if job == nil {
		return "", errors.New("job cannot be nil")
	}

	payload, err := json.Marshal(jobPayload{
		TaskID:        job.TaskID.String(),
		Type:          string(job.Type),
		Payload:       job.Payload,
		BaseBackoffMs: job.BaseBackoff.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(subQueue(job.Queue, job.Priority)),
		asynq.MaxRetry(job.MaxAttempts - 1),
	}
	if b.retention > 0 {
		opts = append(opts, asynq.Retention(b.retention))
	}
	if job.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(job.Delay))
	}

	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(string(job.Type), payload), opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", taskqueue.ErrBrokerUnavailable, err)
	}

	return info.ID, nil
}

// QueueStats implements taskqueue.Broker by aggregating the priority
// sub-queues of one logical queue. Jobs waiting out a retry backoff count as
// delayed together with scheduled ones.
func (b *Broker) QueueStats(ctx context.Context, queue string) (taskqueue.QueueStats, error) {
	stats := taskqueue.QueueStats{Name: queue}

	existing, err := b.inspector.Queues()
	if err != nil {
		return stats, fmt.Errorf("%w: %w", taskqueue.ErrBrokerUnavailable, err)
	}
	present := make(map[string]bool, len(existing))
	for _, q := range existing {
		present[q] = true
	}

	for _, p := range priorities {
		name := subQueue(queue, p)
		if !present[name] {
			continue
		}
		info, err := b.inspector.GetQueueInfo(name)
		if err != nil {
			return stats, fmt.Errorf("%w: failed to inspect queue %q: %w", taskqueue.ErrBrokerUnavailable, name, err)
		}
		stats.Waiting += info.Pending
		stats.Active += info.Active
		stats.Delayed += info.Scheduled + info.Retry
		stats.Completed += info.Completed
		stats.Failed += info.Archived
	}

	return stats, nil
}

// PruneCompleted implements taskqueue.Broker. Completed job records also
// expire on their own through the retention option set at enqueue; the sweep
// exists for deployments running with retention disabled.
func (b *Broker) PruneCompleted(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	pruned := 0

	for _, p := range priorities {
		name := subQueue(queue, p)
		for page := 1; ; page++ {
			tasks, err := b.inspector.ListCompletedTasks(name, asynq.PageSize(100), asynq.Page(page))
			if err != nil {
				// Sub-queue does not exist until something was enqueued on it.
				break
			}
			if len(tasks) == 0 {
				break
			}
			for _, t := range tasks {
				if !t.CompletedAt.IsZero() && t.CompletedAt.Before(cutoff) {
					if err := b.inspector.DeleteTask(name, t.ID); err != nil {
						b.log.Warn("failed to prune completed job",
							slog.String("queue", name),
							slog.String("job_id", t.ID),
							slog.String("error", err.Error()))
						continue
					}
					pruned++
				}
			}
			if len(tasks) < 100 {
				break
			}
		}
	}

	return pruned, nil
}

// Healthcheck pings Redis.
func (b *Broker) Healthcheck(ctx context.Context) error {
	return b.healthcheck(ctx)
}

// Close stops any consumers still running and releases the enqueue-side
// connections.
func (b *Broker) Close() error {
	b.mu.Lock()
	servers := b.servers
	b.servers = make(map[string]*asynq.Server)
	b.mu.Unlock()

	for _, srv := range servers {
		srv.Shutdown()
	}

	err := b.client.Close()
	if cerr := b.healthClient.Close(); err == nil {
		err = cerr
	}
	return err
}

func subQueue(queue string, p taskqueue.Priority) string {
	return fmt.Sprintf("%s:%s", queue, p)
}

// parseTaskID tolerates malformed envelopes so one bad job cannot wedge a
// consumer: the delivery is surfaced with a zero task id and fails fast in
// the worker.
func parseTaskID(raw string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
