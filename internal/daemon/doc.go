// Package daemon coordinates the long-running dubbing process.
//
// It wires configuration, the workflow manager, the history archive and the
// HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. Startup runs local preflight checks before workers are
// launched; shutdown drains the manager within the configured grace period.
//
// The HTTP API (chi) exposes job submission and control, statistics, health,
// incremental events and a websocket event stream. Every /api route requires
// a bearer token when one is configured.
//
// Keep orchestration logic here: job execution lives in internal/workflow
// while the daemon focuses on startup, shutdown, and transport.
package daemon
