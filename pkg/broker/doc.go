// Package broker implements taskqueue.Broker and taskqueue.Consumer on Redis
// via asynq. Each logical queue fans out into one Redis queue per priority
// level, serviced in strict priority order; retries, delayed visibility, and
// the archived set of exhausted jobs are handled broker-side.
package broker
