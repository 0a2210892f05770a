package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Probe is the subset of ffprobe JSON output the adapters use.
type Probe struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes a single stream in the media container.
type ProbeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// AudioStreamCount returns the number of audio streams discovered.
func (p Probe) AudioStreamCount() int {
	return p.countStreams("audio")
}

// VideoStreamCount returns the number of video streams discovered.
func (p Probe) VideoStreamCount() int {
	return p.countStreams("video")
}

func (p Probe) countStreams(kind string) int {
	count := 0
	for _, stream := range p.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// Duration returns the container duration, or 0 when unavailable or invalid.
func (p Probe) Duration() time.Duration {
	cleaned := strings.TrimSpace(p.Format.Duration)
	if cleaned == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func (s *Service) probe(ctx context.Context, path string) (Probe, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Probe{}, errors.New("ffprobe: empty path")
	}
	output, err := s.runner(ctx, s.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Probe{}, classify("ffprobe", err, output)
	}
	var result Probe
	if err := json.Unmarshal(output, &result); err != nil {
		return Probe{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}
