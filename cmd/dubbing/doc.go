// Package main hosts the dubbing CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into HTTP calls
// against the daemon API, runs preflight checks, and scaffolds configuration.
// Configuration resolution and API client construction live in
// commandContext so subcommands only deal with presentation.
package main
