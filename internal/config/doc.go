// Package config loads, normalizes, and validates dubbing daemon configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies DUBBING_* environment overrides on
// top. The Config type centralizes every knob the daemon and CLI need, and
// PipelineConfig hands the workflow manager an immutable snapshot of the
// orchestration settings.
package config
