// Package dispatch provides the hand-off between job submission and job
// processing: an at-least-once delivery mechanism de-duplicated by job id.
//
// Two realizations share the contract: a store-backed task queue drained by
// an in-process worker pool (the default), and an HTTP push client for an
// external durable task queue that calls the worker endpoint back.
package dispatch

import "context"

// Dispatcher persists an intent to process a job. Implementations guarantee
// the worker is eventually invoked at least once per enqueued job; duplicate
// enqueues for a job that is already pending or executing are no-ops.
type Dispatcher interface {
	Enqueue(ctx context.Context, jobID string) error
}

// JobProcessor is the single worker entry point deliveries land on. It must
// be idempotent under repeated delivery.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}
