package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumenlms/taskengine/pkg/taskqueue"
)

// Dispatcher re-publishes a persisted task to its broker queue.
type Dispatcher interface {
	Enqueue(ctx context.Context, task *taskqueue.Task) (jobID string, err error)
}

// Runner owns the background jobs that keep the store and the broker
// consistent: a reconciliation sweep that re-enqueues pending tasks whose
// broker job was lost before publish, and a prune that drops completed job
// records past their retention window.
type Runner struct {
	store      taskqueue.Store
	broker     taskqueue.Broker
	dispatcher Dispatcher
	queues     []string
	log        *slog.Logger

	orphanGrace    time.Duration
	retention      time.Duration
	reconcileEvery string
	pruneSchedule  string

	cron *cron.Cron
}

// NewRunner wires the maintenance jobs from the given config; zero config
// fields fall back to the documented defaults. The jobs do not run until
// Start is called.
func NewRunner(store taskqueue.Store, broker taskqueue.Broker, dispatcher Dispatcher, queues []string, cfg Config, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, taskqueue.ErrStoreNil
	}
	if broker == nil {
		return nil, taskqueue.ErrBrokerNil
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if len(queues) == 0 {
		return nil, errors.New("at least one queue is required")
	}

	r := &Runner{
		store:          store,
		broker:         broker,
		dispatcher:     dispatcher,
		queues:         queues,
		log:            slog.Default(),
		orphanGrace:    time.Minute,
		retention:      7 * 24 * time.Hour,
		reconcileEvery: "@every 1m",
		pruneSchedule:  "0 3 * * *",
	}
	if cfg.OrphanGrace > 0 {
		r.orphanGrace = cfg.OrphanGrace
	}
	if cfg.Retention > 0 {
		r.retention = cfg.Retention
	}
	if cfg.ReconcileSchedule != "" {
		r.reconcileEvery = cfg.ReconcileSchedule
	}
	if cfg.PruneSchedule != "" {
		r.pruneSchedule = cfg.PruneSchedule
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start registers the cron entries and launches the scheduler.
func (r *Runner) Start(ctx context.Context) error {
	r.cron = cron.New()

	if _, err := r.cron.AddFunc(r.reconcileEvery, func() {
		if err := r.ReconcileOnce(ctx); err != nil {
			r.log.Error("reconciliation sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return err
	}

	if _, err := r.cron.AddFunc(r.pruneSchedule, func() {
		if err := r.PruneOnce(ctx); err != nil {
			r.log.Error("broker prune failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any running job to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// ReconcileOnce re-enqueues every pending task that was persisted but never
// made it to the broker. The grace period keeps the sweep from racing tasks
// that are mid-publish.
func (r *Runner) ReconcileOnce(ctx context.Context) error {
	orphans, err := r.store.FindOrphans(ctx, r.orphanGrace)
	if err != nil {
		return err
	}

	var errs []error
	for _, task := range orphans {
		if _, err := r.dispatcher.Enqueue(ctx, task); err != nil {
			errs = append(errs, err)
			r.log.Error("failed to re-enqueue orphaned task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		r.log.Info("re-enqueued orphaned task",
			slog.String("task_id", task.ID.String()),
			slog.String("queue", task.QueueName))
	}

	if len(orphans) > 0 {
		r.log.Info("reconciliation sweep finished",
			slog.Int("orphans", len(orphans)),
			slog.Int("failures", len(errs)))
	}
	return errors.Join(errs...)
}

// PruneOnce removes completed job records older than the retention window
// from every configured queue.
func (r *Runner) PruneOnce(ctx context.Context) error {
	var errs []error
	for _, q := range r.queues {
		n, err := r.broker.PruneCompleted(ctx, q, r.retention)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n > 0 {
			r.log.Info("pruned completed jobs", slog.String("queue", q), slog.Int("count", n))
		}
	}
	return errors.Join(errs...)
}
