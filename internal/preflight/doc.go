// Package preflight provides readiness checks for the filesystem, binaries
// and collaborator services the dubbing daemon depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunLocal at startup and refuses to start when the temp
//     directory is unusable, has less than MinFreeBytes free, or ffmpeg is
//     missing.
//   - The CLI "dubbing check" command uses RunAll, which also probes the
//     /health endpoint of every configured service.
package preflight
