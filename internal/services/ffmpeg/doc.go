// Package ffmpeg adapts the ffmpeg and ffprobe binaries to the workflow's
// media contracts: audio extraction (stage.VideoProcessor), dubbed track
// assembly (stage.AudioAssembler) and muxing (stage.VideoAssembler).
//
// Commands run through a CommandRunner so tests can capture arguments
// without executing binaries. Failures caused by a full disk are tagged as
// resource errors; deadline expiry is tagged transient; everything else is
// left unclassified.
package ffmpeg
