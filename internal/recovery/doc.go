// Package recovery wraps collaborator calls with error classification and a
// bounded retry policy.
//
// Errors are dispatched on their services.Kind tag: transient failures retry
// with exponential backoff and jitter, quota failures (and open circuits)
// switch to a fallback operation when one exists, resource exhaustion stops
// immediately and flags the job for manual intervention, and anything
// unclassified is retried once. Each call passes through the dependency's
// circuit breaker when one is attached.
package recovery
