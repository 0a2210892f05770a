// Package workflow drives dubbing jobs through the pipeline.
//
// The Manager owns a FIFO admission queue and a fixed pool of workers
// (pipeline.max_concurrent_jobs). Each worker runs one job at a time through
// extract, transcribe, translate, synthesize, assemble and combine, then the
// optional quality gate. Every collaborator call goes through the recovery
// controller and the dependency's circuit breaker. Cancellation, shutdown and
// the per-job timeout are checked between stages and inside the synthesis
// fan-out.
//
// Job state lives in the injected queue.Store; the Manager is the only writer
// while a job runs and control operations (CancelJob, RetryJob) go through the
// same per-job atomic mutations. State changes are published on an EventBus
// for presentation layers.
package workflow
