// Package metrics exposes queue depth gauges and per-job processing times as
// prometheus metrics: queue_waiting_jobs, queue_active_jobs,
// queue_completed_jobs, queue_failed_jobs, queue_delayed_jobs labeled by
// queue, and job_processing_time_ms labeled by queue and outcome.
package metrics
