// Package api defines the wire format of the daemon's HTTP API and a client
// for it. DTOs translate queue, workflow and archive models into
// transport-friendly shapes so the CLI never couples to internal types.
//
// # Key Types
//
// Job: transport form of a dubbing job with progress, cost and artifacts.
//
// Stats / Health: aggregates from the workflow manager.
//
// Event / EventsResponse: incremental job events with a resume cursor.
//
// HistoryEntry: one archived terminal attempt.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds and
// durations are exposed as fractional seconds.
package api
