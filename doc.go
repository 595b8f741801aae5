// Package taskengine is a durable, priority-aware task execution toolkit for
// LMS backends. Callers submit units of asynchronous work (grading, report
// generation, media processing) that survive process restarts, retry transient
// failures with exponential backoff, and escalate permanently failing work to
// a dead-letter channel for operator review.
//
// The module is a set of composable packages rather than a framework:
//
//   - pkg/taskqueue: the engine core. Task types, the status state machine,
//     queue routing, retry policy, dispatcher, worker, and dead-letter
//     handling, all behind Store and Broker interfaces. Ships an in-memory
//     store and broker for tests and local development.
//   - pkg/taskstore: PostgreSQL Store implementation on jackc/pgx/v5 with
//     compare-and-set status transitions.
//   - pkg/broker: Redis-backed Broker and Consumer on hibiken/asynq with
//     per-priority sub-queues and broker-side retry scheduling.
//   - pkg/metrics: prometheus gauges sampled from broker queue stats and the
//     worker outcome stream.
//   - pkg/maintenance: cron jobs that re-enqueue orphaned tasks and prune
//     expired broker records.
//   - pkg/pg, pkg/redis, pkg/logger, pkg/config: connection, logging, and
//     configuration plumbing shared by the packages above.
//
// A minimal deployment wires one Engine for submission plus one Worker per
// queue:
//
//	store, _ := taskstore.NewPostgresStore(pool)
//	brk, _ := broker.New(ctx, brokerCfg)
//	engine, _ := taskqueue.New(store, brk)
//
//	enq, _ := engine.AddTask(ctx, taskqueue.TaskTypeGrading, payload,
//		taskqueue.WithPriority(taskqueue.PriorityHigh))
//
//	worker, _ := taskqueue.NewWorker("grading", store, brk)
//	worker.Register(taskqueue.TaskTypeGrading, gradingHandler)
//	_ = worker.Start(ctx)
package taskengine
