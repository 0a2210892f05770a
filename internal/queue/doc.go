// Package queue models dubbing jobs and holds them in a concurrency-safe,
// in-memory registry.
//
// Status is a single fine-grained enum (queued, per-stage processing states,
// completed, failed, cancelled) with IsActive/IsTerminal/Phase predicates for
// consumers that only need coarse grouping. The Store hands out deep-copied
// snapshots and funnels every change through Mutate, which serializes updates
// per job id. Cancel/ResetForRetry/Complete encode the only legal terminal
// transitions; control errors are NotFoundError and TransitionError.
//
// Durable history lives in the archive package; this package never persists.
package queue
