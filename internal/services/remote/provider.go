package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"dubbing/internal/services"
	"dubbing/internal/stage"
)

const defaultSpeed = 1.0

type synthesizeRequest struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Voice      string  `json:"speaker_wav,omitempty"`
	Speed      float64 `json:"speed"`
	SegmentRef string  `json:"segment_ref,omitempty"`
}

// synthesizeResponse is the provider bridge envelope.
type synthesizeResponse struct {
	Success     bool    `json:"success"`
	AudioData   string  `json:"audio_data"`
	AudioLength float64 `json:"audio_length"`
	TextLength  int     `json:"text_length"`
	Language    string  `json:"language"`
	Error       string  `json:"error"`
}

// provider is one synthesis backend.
type provider struct {
	id       string
	fallback string
	client   *client
}

func (p *provider) synthesize(ctx context.Context, req stage.SynthesisRequest, workDir string) (stage.AudioSegment, int, error) {
	text := strings.TrimSpace(req.Segment.Translated)
	chars := utf8.RuneCountInString(text)
	if text == "" {
		return stage.AudioSegment{}, 0, fmt.Errorf("%s: segment %d has no text", p.id, req.Segment.Index)
	}
	speed := req.Speed
	if speed <= 0 {
		speed = defaultSpeed
	}

	var resp synthesizeResponse
	payload := synthesizeRequest{
		Text:       text,
		Language:   req.Language,
		Voice:      req.Voice,
		Speed:      speed,
		SegmentRef: fmt.Sprintf("%s/%d", req.JobID, req.Segment.Index),
	}
	if err := p.client.postJSON(ctx, "/synthesize", payload, &resp); err != nil {
		return stage.AudioSegment{}, chars, err
	}
	if !resp.Success {
		return stage.AudioSegment{}, chars, bridgeError(p.id, resp.Error)
	}
	if resp.TextLength > 0 {
		chars = resp.TextLength
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioData)
	if err != nil {
		return stage.AudioSegment{}, chars, fmt.Errorf("%s: decode audio: %w", p.id, err)
	}
	if len(audio) == 0 {
		return stage.AudioSegment{}, chars, fmt.Errorf("%s: empty audio for segment %d", p.id, req.Segment.Index)
	}

	path := filepath.Join(workDir, fmt.Sprintf("seg-%04d-%s.wav", req.Segment.Index, p.id))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return stage.AudioSegment{}, chars, services.Tag(services.KindResource, fmt.Errorf("%s: write audio: %w", p.id, err))
	}

	duration := seconds(resp.AudioLength)
	if duration <= 0 {
		duration = req.Segment.End - req.Segment.Start
	}
	return stage.AudioSegment{
		Index:    req.Segment.Index,
		Path:     path,
		Start:    req.Segment.Start,
		Duration: duration,
		Provider: p.id,
	}, chars, nil
}

// bridgeError maps an in-band failure message to a classified error.
func bridgeError(providerID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "synthesis failed"
	}
	err := fmt.Errorf("%s: %s", providerID, message)
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "quota"), strings.Contains(lower, "rate limit"):
		return services.Tag(services.KindQuota, fmt.Errorf("%w: %w", services.ErrQuotaExceeded, err))
	case strings.Contains(lower, "out of memory"), strings.Contains(lower, "no space"):
		return services.Tag(services.KindResource, err)
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "unavailable"):
		return services.Tag(services.KindTransient, err)
	}
	return fmt.Errorf("%w: %w", services.ErrSynthesis, err)
}

func elapsedSince(start time.Time) time.Duration {
	d := time.Since(start)
	if d < 0 {
		return 0
	}
	return d
}
