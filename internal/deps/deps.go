// Package deps resolves the media binaries the pipeline shells out to.
package deps

import (
	"path/filepath"
	"strings"
)

// Status reports whether a media binary resolves.
type Status struct {
	Name        string
	Command     string
	Description string
	Available   bool
	Detail      string
}

// FFprobeFor returns the ffprobe command paired with ffmpegBinary. A
// configured ffmpeg path implies an ffprobe next to it; a bare name implies
// ffprobe from PATH.
func FFprobeFor(ffmpegBinary string) string {
	ffmpegBinary = strings.TrimSpace(ffmpegBinary)
	if !strings.ContainsRune(ffmpegBinary, filepath.Separator) {
		return "ffprobe"
	}
	return filepath.Join(filepath.Dir(ffmpegBinary), "ffprobe")
}

// MediaTools resolves ffmpeg and its paired ffprobe.
func MediaTools(ffmpegBinary string) []Status {
	return []Status{ResolveFFmpeg(ffmpegBinary), ResolveFFprobe(ffmpegBinary)}
}

// Missing returns the statuses that did not resolve.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available {
			out = append(out, s)
		}
	}
	return out
}
