package stage

import (
	"context"
	"time"
)

// AudioHandle references audio extracted from the source video.
type AudioHandle struct {
	Path     string
	Duration time.Duration
}

// Segment is one timed span of recognised speech.
type Segment struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcription is the output of speech recognition.
type Transcription struct {
	Segments   []Segment
	Language   string
	Confidence float64
}

// TranslatedSegment pairs the original text with its translation.
type TranslatedSegment struct {
	Index      int
	Start      time.Duration
	End        time.Duration
	Original   string
	Translated string
}

// Translation is the output of the translation step.
type Translation struct {
	SourceLanguage string
	TargetLanguage string
	Segments       []TranslatedSegment
}

// SynthesisRequest is one segment handed to the speech router.
type SynthesisRequest struct {
	JobID    string
	Segment  TranslatedSegment
	Language string
	Voice    string
	Speed    float64
}

// AudioSegment is synthesized speech for one translated segment.
type AudioSegment struct {
	Index    int
	Path     string
	Start    time.Duration
	Duration time.Duration
	Provider string
}

// AudioTrack is the assembled dubbed audio.
type AudioTrack struct {
	Path     string
	Duration time.Duration
}

// QualityReport is the verdict of the quality gate.
type QualityReport struct {
	PassesThreshold bool
	OverallScore    float64
	Issues          []string
	Recommendations []string
}

// Usage reports consumption for one collaborator call.
type Usage struct {
	JobID      string
	Provider   string
	Characters int
	Duration   time.Duration
	Calls      int
	Errors     int
}

// Usage kinds passed to CostAccountant.RecordUsage.
const (
	UsageSynthesis     = "synthesis"
	UsageTranscription = "transcription"
	UsageTranslation   = "translation"
	UsageCompute       = "compute"
)

// UsageReporter receives usage for every synthesis call, successful or not.
type UsageReporter func(Usage)

// VideoProcessor extracts the audio track from a source video.
type VideoProcessor interface {
	ExtractAudio(ctx context.Context, video, workDir string) (AudioHandle, error)
}

// Transcriber recognises and translates speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioHandle) (Transcription, error)
	Translate(ctx context.Context, transcription Transcription, targetLanguage string) (Translation, error)
}

// SpeechRouter picks a synthesis provider per segment and performs synthesis.
type SpeechRouter interface {
	SelectProvider(ctx context.Context, req SynthesisRequest) (string, error)
	Synthesize(ctx context.Context, req SynthesisRequest, provider, workDir string, report UsageReporter) (AudioSegment, error)
	// Fallback names the provider to use when provider is out of quota.
	Fallback(provider string) (string, bool)
	Providers() []string
}

// AudioAssembler stitches synthesized segments into one track.
type AudioAssembler interface {
	Assemble(ctx context.Context, segments []AudioSegment, workDir string) (AudioTrack, error)
}

// VideoAssembler muxes the dubbed track into the final video.
type VideoAssembler interface {
	Combine(ctx context.Context, video string, track AudioTrack, outputDir string) (string, error)
}

// QualityGate validates the final output.
type QualityGate interface {
	Validate(ctx context.Context, outputVideo string) (QualityReport, error)
}

// CostMetrics is the accumulated cost of one job.
type CostMetrics struct {
	Characters  int
	ComputeTime time.Duration
	APICalls    int
	Errors      int
	TotalUSD    float64
}

// CostAccountant records usage and prices it per job.
type CostAccountant interface {
	RecordUsage(ctx context.Context, kind string, usage Usage)
	CostFor(jobID string) CostMetrics
}

// Dependencies bundles the collaborators the workflow manager drives.
type Dependencies struct {
	Video      VideoProcessor
	Transcribe Transcriber
	Speech     SpeechRouter
	Audio      AudioAssembler
	Assembly   VideoAssembler
	Quality    QualityGate
	Cost       CostAccountant
}

