// Package maintenance runs the periodic jobs that keep the task store and the
// broker consistent. The reconciliation sweep finds pending tasks that were
// persisted but never published to the broker, a window that opens when the
// process crashes between the store insert and the broker enqueue, and
// re-publishes them. The prune job deletes completed job records older than
// the retention window so broker memory stays bounded.
package maintenance
