package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"dubbing/internal/deps"
	"dubbing/internal/services"
	"dubbing/internal/stage"
)

// CommandRunner executes name with args and returns combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Service runs ffmpeg for the media stages.
type Service struct {
	ffmpeg  string
	ffprobe string
	runner  CommandRunner
}

// Option customizes a Service.
type Option func(*Service)

// WithCommandRunner replaces process execution (used by tests).
func WithCommandRunner(runner CommandRunner) Option {
	return func(s *Service) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// WithFFprobe overrides the ffprobe binary. By default it is resolved next to
// the ffmpeg binary.
func WithFFprobe(binary string) Option {
	return func(s *Service) {
		if strings.TrimSpace(binary) != "" {
			s.ffprobe = strings.TrimSpace(binary)
		}
	}
}

// NewService builds an ffmpeg adapter for binary ("ffmpeg" when empty).
func NewService(binary string, opts ...Option) *Service {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	s := &Service{
		ffmpeg:  binary,
		ffprobe: deps.FFprobeFor(binary),
		runner:  execRunner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// ExtractAudio writes a mono 16 kHz WAV of the video's first audio stream.
func (s *Service) ExtractAudio(ctx context.Context, video, workDir string) (stage.AudioHandle, error) {
	info, err := s.probe(ctx, video)
	if err != nil {
		return stage.AudioHandle{}, fmt.Errorf("inspect source: %w", err)
	}
	if info.AudioStreamCount() == 0 {
		return stage.AudioHandle{}, fmt.Errorf("source %s has no audio stream", video)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return stage.AudioHandle{}, classifyFS("create work directory", err)
	}

	dest := filepath.Join(workDir, "source-audio.wav")
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if output, err := s.runner(ctx, s.ffmpeg, args...); err != nil {
		return stage.AudioHandle{}, classify("ffmpeg extract", err, output)
	}

	duration := info.Duration()
	if extracted, err := s.probe(ctx, dest); err == nil && extracted.Duration() > 0 {
		duration = extracted.Duration()
	}
	return stage.AudioHandle{Path: dest, Duration: duration}, nil
}

// Assemble places each segment at its start offset and mixes them into one
// WAV track.
func (s *Service) Assemble(ctx context.Context, segments []stage.AudioSegment, workDir string) (stage.AudioTrack, error) {
	if len(segments) == 0 {
		return stage.AudioTrack{}, errors.New("assemble: no synthesized segments")
	}
	ordered := append([]stage.AudioSegment(nil), segments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	dest := filepath.Join(workDir, "dubbed-track.wav")
	args := buildAssembleArgs(ordered, dest)
	if output, err := s.runner(ctx, s.ffmpeg, args...); err != nil {
		return stage.AudioTrack{}, classify("ffmpeg assemble", err, output)
	}

	var end time.Duration
	for _, seg := range ordered {
		end = max(end, seg.Start+seg.Duration)
	}
	return stage.AudioTrack{Path: dest, Duration: end}, nil
}

func buildAssembleArgs(segments []stage.AudioSegment, dest string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, seg := range segments {
		args = append(args, "-i", seg.Path)
	}

	var filter strings.Builder
	for i, seg := range segments {
		delay := seg.Start.Milliseconds()
		fmt.Fprintf(&filter, "[%d:a]adelay=%d:all=1[a%d];", i, delay, i)
	}
	for i := range segments {
		fmt.Fprintf(&filter, "[a%d]", i)
	}
	fmt.Fprintf(&filter, "amix=inputs=%d:normalize=0[out]", len(segments))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-ac", "1",
		"-ar", "24000",
		"-c:a", "pcm_s16le",
		dest,
	)
	return args
}

// Combine muxes track into video, copying the video stream. The result is
// written next to the source as <name>.dubbed<ext>.
func (s *Service) Combine(ctx context.Context, video string, track stage.AudioTrack, outputDir string) (string, error) {
	if strings.TrimSpace(track.Path) == "" {
		return "", errors.New("combine: dubbed track missing")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", classifyFS("create output directory", err)
	}
	ext := filepath.Ext(video)
	if ext == "" {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	dest := filepath.Join(outputDir, base+".dubbed"+ext)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-i", track.Path,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		dest,
	}
	if output, err := s.runner(ctx, s.ffmpeg, args...); err != nil {
		return "", classify("ffmpeg combine", err, output)
	}
	return dest, nil
}

// HealthCheck reports whether ffmpeg and ffprobe both resolve.
func (s *Service) HealthCheck(context.Context) stage.Health {
	for _, status := range []deps.Status{deps.ResolveFFmpeg(s.ffmpeg), deps.Resolve("FFprobe", "", s.ffprobe)} {
		if !status.Available {
			return stage.Unhealthy("ffmpeg", status.Detail)
		}
	}
	return stage.Healthy("ffmpeg")
}

// classify converts a failed command into a tagged error that carries the
// tool output.
func classify(op string, err error, output []byte) error {
	detail := strings.TrimSpace(string(output))
	wrapped := err
	if detail != "" {
		wrapped = fmt.Errorf("%w: %s", err, detail)
	}
	wrapped = fmt.Errorf("%s: %w", op, wrapped)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Tag(services.KindTransient, wrapped)
	case errors.Is(err, syscall.ENOSPC), strings.Contains(strings.ToLower(detail), "no space left on device"):
		return services.Tag(services.KindResource, wrapped)
	default:
		return wrapped
	}
}

func classifyFS(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return services.Tag(services.KindResource, wrapped)
	}
	return wrapped
}
