package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBroker implements Broker and Consumer in-process for tests and local
// development. It honors the same semantics the Redis-backed broker provides:
// weight-ordered dispatch, delayed visibility, backoff retries up to the job's
// attempt budget, and per-queue stats.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][]*memoryJob
	seq    uint64

	pollInterval time.Duration
	concurrency  int

	consumers map[string]*memoryConsumer
}

// memoryConsumer is one queue's consumer group: the goroutines spawned by a
// single Start call, stopped together by Shutdown of that queue.
type memoryConsumer struct {
	done chan struct{}
	wg   sync.WaitGroup
}

type memoryJobState string

const (
	memoryJobWaiting   memoryJobState = "waiting"
	memoryJobActive    memoryJobState = "active"
	memoryJobCompleted memoryJobState = "completed"
	memoryJobFailed    memoryJobState = "failed"
)

type memoryJob struct {
	id          string
	job         Job
	seq         uint64
	state       memoryJobState
	attempt     int
	readyAt     time.Time
	completedAt time.Time
}

// MemoryBrokerOption configures a MemoryBroker
type MemoryBrokerOption func(*MemoryBroker)

// WithPollInterval sets how often consumer loops look for eligible jobs.
func WithPollInterval(d time.Duration) MemoryBrokerOption {
	return func(b *MemoryBroker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithConcurrency sets how many consumer goroutines each Start call spawns.
func WithConcurrency(n int) MemoryBrokerOption {
	return func(b *MemoryBroker) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker(opts ...MemoryBrokerOption) *MemoryBroker {
	b := &MemoryBroker{
		queues:       make(map[string][]*memoryJob),
		pollInterval: 50 * time.Millisecond,
		concurrency:  1,
		consumers:    make(map[string]*memoryConsumer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue implements Broker
func (b *MemoryBroker) Enqueue(ctx context.Context, job *Job) (string, error) {
	if job == nil {
		return "", errors.New("job cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	j := &memoryJob{
		id:      uuid.NewString(),
		job:     *job,
		seq:     b.seq,
		state:   memoryJobWaiting,
		readyAt: time.Now().Add(job.Delay),
	}
	b.queues[job.Queue] = append(b.queues[job.Queue], j)

	return j.id, nil
}

// QueueStats implements Broker
func (b *MemoryBroker) QueueStats(ctx context.Context, queue string) (QueueStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := QueueStats{Name: queue}
	now := time.Now()
	for _, j := range b.queues[queue] {
		switch j.state {
		case memoryJobWaiting:
			if j.readyAt.After(now) {
				stats.Delayed++
			} else {
				stats.Waiting++
			}
		case memoryJobActive:
			stats.Active++
		case memoryJobCompleted:
			stats.Completed++
		case memoryJobFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// PruneCompleted implements Broker
func (b *MemoryBroker) PruneCompleted(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := b.queues[queue][:0]
	pruned := 0
	for _, j := range b.queues[queue] {
		if j.state == memoryJobCompleted && j.completedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, j)
	}
	b.queues[queue] = kept
	return pruned, nil
}

// Start implements Consumer: it spawns polling goroutines feeding eligible
// jobs of the queue to fn, highest priority (lowest weight) first. A queue
// can only have one running consumer group.
func (b *MemoryBroker) Start(ctx context.Context, queue string, fn ProcessFunc) error {
	b.mu.Lock()
	if _, exists := b.consumers[queue]; exists {
		b.mu.Unlock()
		return fmt.Errorf("consumer for queue %q already started", queue)
	}
	c := &memoryConsumer{done: make(chan struct{})}
	b.consumers[queue] = c
	b.mu.Unlock()

	for range b.concurrency {
		c.wg.Add(1)
		go b.consume(ctx, c, queue, fn)
	}
	return nil
}

// Shutdown implements Consumer. It stops the named queue's consumer group and
// waits for its in-flight deliveries; consumers of other queues keep running.
func (b *MemoryBroker) Shutdown(queue string) {
	b.mu.Lock()
	c := b.consumers[queue]
	delete(b.consumers, queue)
	b.mu.Unlock()

	if c == nil {
		return
	}
	close(c.done)
	c.wg.Wait()
}

func (b *MemoryBroker) consume(ctx context.Context, c *memoryConsumer, queue string, fn ProcessFunc) {
	defer c.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			for {
				j, delivery := b.claim(queue)
				if j == nil {
					break
				}
				b.settle(j, fn(ctx, delivery))
			}
		}
	}
}

// claim picks the best eligible waiting job: lowest weight wins, enqueue order
// breaks ties. Advisory only, like any real broker under concurrent delivery.
func (b *MemoryBroker) claim(queue string) (*memoryJob, Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var best *memoryJob
	for _, j := range b.queues[queue] {
		if j.state != memoryJobWaiting || j.readyAt.After(now) {
			continue
		}
		if best == nil || j.job.Weight < best.job.Weight ||
			(j.job.Weight == best.job.Weight && j.seq < best.seq) {
			best = j
		}
	}
	if best == nil {
		return nil, Delivery{}
	}

	best.state = memoryJobActive
	best.attempt++

	return best, Delivery{
		JobID:       best.id,
		TaskID:      best.job.TaskID,
		Type:        best.job.Type,
		Queue:       queue,
		Payload:     best.job.Payload,
		Attempt:     best.attempt,
		MaxAttempts: best.job.MaxAttempts,
	}
}

// settle finalizes a delivery: success completes the job, failure either
// schedules the backoff retry or exhausts the job.
func (b *MemoryBroker) settle(j *memoryJob, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		j.state = memoryJobCompleted
		j.completedAt = time.Now()
		return
	}

	if errors.Is(err, ErrHandlerNotFound) || j.attempt >= j.job.MaxAttempts {
		j.state = memoryJobFailed
		return
	}

	// Exponential backoff: base doubled per completed attempt.
	j.state = memoryJobWaiting
	j.readyAt = time.Now().Add(j.job.BaseBackoff << (j.attempt - 1))
}
