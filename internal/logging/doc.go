// Package logging assembles structured slog loggers and formatting helpers used
// across the dubbing daemon and CLI.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code automatically tags log
// lines with job IDs, stage names, worker slots, and correlation IDs. NewNop
// gives tests and optional wiring a logger that cannot fail.
package logging
