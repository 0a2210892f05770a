// Package breaker implements per-dependency circuit breakers.
//
// A breaker opens after a run of consecutive failures, fails calls fast with
// services.ErrCircuitOpen during the cooldown, then admits a single half-open
// trial whose outcome closes or re-opens it. State and counters are atomics so
// any worker can report an outcome without coordination.
package breaker
