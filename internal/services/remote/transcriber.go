package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dubbing/internal/language"
	"dubbing/internal/stage"
)

type transcribeRequest struct {
	AudioPath string `json:"audio_path"`
}

type transcribeResponse struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Segments   []struct {
		Index int     `json:"index"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

type translateSegment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type translateRequest struct {
	SourceLanguage string             `json:"source_language"`
	TargetLanguage string             `json:"target_language"`
	Segments       []translateSegment `json:"segments"`
}

type translateResponse struct {
	Segments []translateSegment `json:"segments"`
}

// Transcriber talks to the speech recognition and translation services.
type Transcriber struct {
	transcription *client
	translation   *client
}

// NewTranscriber builds a transcriber. translationURL defaults to
// transcriptionURL when empty.
func NewTranscriber(transcriptionURL, translationURL string, opts ...ClientOption) *Transcriber {
	o := applyClientOptions(opts)
	if strings.TrimSpace(translationURL) == "" {
		translationURL = transcriptionURL
	}
	return &Transcriber{
		transcription: newClient("transcription", transcriptionURL, o.apiKey, o.timeout, o.httpClient),
		translation:   newClient("translation", translationURL, o.apiKey, o.timeout, o.httpClient),
	}
}

// Transcribe sends the extracted audio path for recognition.
func (t *Transcriber) Transcribe(ctx context.Context, audio stage.AudioHandle) (stage.Transcription, error) {
	if strings.TrimSpace(audio.Path) == "" {
		return stage.Transcription{}, errors.New("transcribe: audio path required")
	}
	var resp transcribeResponse
	if err := t.transcription.postJSON(ctx, "/transcribe", transcribeRequest{AudioPath: audio.Path}, &resp); err != nil {
		return stage.Transcription{}, err
	}

	source := language.ToISO2(resp.Language)
	if source == "" {
		source = strings.TrimSpace(resp.Language)
	}
	out := stage.Transcription{Language: source, Confidence: resp.Confidence}
	for i, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		index := seg.Index
		if index == 0 && i > 0 {
			index = i
		}
		out.Segments = append(out.Segments, stage.Segment{
			Index: index,
			Start: seconds(seg.Start),
			End:   seconds(seg.End),
			Text:  text,
		})
	}
	sort.SliceStable(out.Segments, func(i, j int) bool { return out.Segments[i].Index < out.Segments[j].Index })
	if len(out.Segments) == 0 {
		return stage.Transcription{}, errors.New("transcribe: no speech recognised")
	}
	return out, nil
}

// Translate translates every segment into targetLanguage, keeping timing.
func (t *Transcriber) Translate(ctx context.Context, tr stage.Transcription, targetLanguage string) (stage.Translation, error) {
	req := translateRequest{
		SourceLanguage: tr.Language,
		TargetLanguage: targetLanguage,
		Segments:       make([]translateSegment, 0, len(tr.Segments)),
	}
	for _, seg := range tr.Segments {
		req.Segments = append(req.Segments, translateSegment{Index: seg.Index, Text: seg.Text})
	}

	var resp translateResponse
	if err := t.translation.postJSON(ctx, "/translate", req, &resp); err != nil {
		return stage.Translation{}, err
	}

	translated := make(map[int]string, len(resp.Segments))
	for _, seg := range resp.Segments {
		translated[seg.Index] = strings.TrimSpace(seg.Text)
	}
	out := stage.Translation{
		SourceLanguage: tr.Language,
		TargetLanguage: targetLanguage,
		Segments:       make([]stage.TranslatedSegment, 0, len(tr.Segments)),
	}
	for _, seg := range tr.Segments {
		text, ok := translated[seg.Index]
		if !ok || text == "" {
			return stage.Translation{}, fmt.Errorf("translate: segment %d missing from response", seg.Index)
		}
		out.Segments = append(out.Segments, stage.TranslatedSegment{
			Index:      seg.Index,
			Start:      seg.Start,
			End:        seg.End,
			Original:   seg.Text,
			Translated: text,
		})
	}
	return out, nil
}

// HealthCheck reports transcription service readiness.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	health := t.transcription.health(ctx)
	if !health.Ready || t.translation.baseURL == t.transcription.baseURL {
		return health
	}
	if tr := t.translation.health(ctx); !tr.Ready {
		return stage.Unhealthy("transcription", "translation: "+tr.Detail)
	}
	return health
}
