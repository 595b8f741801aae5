package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

// Start implements taskqueue.Consumer: it runs one asynq server over the
// priority sub-queues of the given logical queue, in strict priority order.
func (b *Broker) Start(ctx context.Context, queue string, fn taskqueue.ProcessFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.servers[queue]; exists {
		return fmt.Errorf("consumer for queue %q already started", queue)
	}

	weights := make(map[string]int, len(priorities))
	for i, p := range priorities {
		weights[subQueue(queue, p)] = len(priorities) - i
	}

	srv := asynq.NewServer(b.redisOpt, asynq.Config{
		Concurrency:    b.conc,
		Queues:         weights,
		StrictPriority: true,
		RetryDelayFunc: b.retryDelay,
		Logger:         &slogAdapter{log: b.log.With(slog.String("queue", queue))},
		LogLevel:       asynq.WarnLevel,
	})

	if err := srv.Start(b.handler(queue, fn)); err != nil {
		return fmt.Errorf("%w: failed to start consumer for queue %q: %w", taskqueue.ErrBrokerUnavailable, queue, err)
	}

	b.servers[queue] = srv
	return nil
}

// Shutdown implements taskqueue.Consumer: it stops the named queue's server,
// waiting for in-flight deliveries. Servers of other queues started from the
// same broker keep running; Close stops whatever is left.
func (b *Broker) Shutdown(queue string) {
	b.mu.Lock()
	srv := b.servers[queue]
	delete(b.servers, queue)
	b.mu.Unlock()

	if srv != nil {
		srv.Shutdown()
	}
}

// handler adapts asynq deliveries to the engine's ProcessFunc. Handler-not-
// found failures are marked skip-retry so the broker archives them instead of
// redelivering work no handler can serve.
func (b *Broker) handler(queue string, fn taskqueue.ProcessFunc) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var p jobPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed job payload: %v: %w", err, asynq.SkipRetry)
		}

		jobID, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		err := fn(ctx, taskqueue.Delivery{
			JobID:       jobID,
			TaskID:      parseTaskID(p.TaskID),
			Type:        taskqueue.TaskType(p.Type),
			Queue:       queue,
			Payload:     p.Payload,
			Attempt:     retried + 1,
			MaxAttempts: maxRetry + 1,
		})
		if err != nil && errors.Is(err, taskqueue.ErrHandlerNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	})
}

// retryDelay computes the exponential backoff for the next attempt from the
// base carried in the job envelope. n is the number of retries consumed so
// far, so the delay after the first failure is exactly the base.
func (b *Broker) retryDelay(n int, _ error, t *asynq.Task) time.Duration {
	base := time.Second
	var p jobPayload
	if err := json.Unmarshal(t.Payload(), &p); err == nil && p.BaseBackoffMs > 0 {
		base = time.Duration(p.BaseBackoffMs) * time.Millisecond
	}
	return b.policy.Backoff(n+1, base)
}
