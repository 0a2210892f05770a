package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveFFmpeg reports the ffmpeg binary media operations will execute.
//
// An absolute or relative configured path is used as-is when it exists and
// is executable; a bare name is resolved from PATH.
func ResolveFFmpeg(configured string) Status {
	command := strings.TrimSpace(configured)
	if command == "" {
		command = "ffmpeg"
	}
	return Resolve("FFmpeg", "Required for audio extraction, assembly and muxing", command)
}

// ResolveFFprobe reports the ffprobe binary paired with the configured ffmpeg.
func ResolveFFprobe(configuredFFmpeg string) Status {
	return Resolve("FFprobe", "Required to inspect input streams and durations", FFprobeFor(configuredFFmpeg))
}

// Resolve reports whether command is runnable. Commands containing a path
// separator must exist and be executable; bare names are looked up in PATH.
func Resolve(name, description, command string) Status {
	result := Status{Name: name, Description: description, Command: command}

	if strings.ContainsRune(command, filepath.Separator) {
		info, err := os.Stat(command)
		if err != nil || !isExecutable(info) {
			result.Detail = fmt.Sprintf("binary %q not executable", command)
			return result
		}
		result.Available = true
		return result
	}

	resolved, err := exec.LookPath(command)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", command)
		return result
	}
	result.Command = resolved
	result.Available = true
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
