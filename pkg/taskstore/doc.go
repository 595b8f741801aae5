// Package taskstore provides the PostgreSQL implementation of
// taskqueue.Store. Tasks and their results live in the tasks and
// task_results tables (see migrations/); every status transition is an
// optimistic compare-and-set on the expected current status.
package taskstore
