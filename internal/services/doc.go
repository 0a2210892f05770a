// Package services defines shared utilities consumed by the pipeline stages
// and the collaborator adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker slots, and
//     correlation identifiers for logging.
//   - Sentinel error markers for each collaborator family plus the Wrap helper
//     that keeps stage context in the message.
//   - Error kinds (transient, quota, resource) attached where an error is
//     raised, so recovery dispatches on structure instead of message text.
//
// Adapters under services/ (ffmpeg, remote) implement the stage contracts on
// top of these helpers.
package services
