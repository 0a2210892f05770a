// Package notifications delivers job events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Individual events
// (completion, failure, breaker trips) can be switched off in the
// [notifications] section.
//
// Workflow code depends only on the Service interface.
package notifications
