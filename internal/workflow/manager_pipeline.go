package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"dubbing/internal/breaker"
	"dubbing/internal/queue"
	"dubbing/internal/recovery"
	"dubbing/internal/services"
	"dubbing/internal/stage"
)

func (m *Manager) extractAudio(ctx context.Context, run *jobRun, state *pipelineState) error {
	var audio stage.AudioHandle
	start := m.now()
	outcome, err := m.recovery.Run(ctx, recovery.Operation{
		Name:    "extract audio",
		Breaker: m.breakers.Get(breaker.DependencyAssembly),
		Call: func(ctx context.Context) (err error) {
			audio, err = m.deps.Video.ExtractAudio(ctx, run.input, run.workDir)
			return err
		},
	})
	m.recordUsage(ctx, stage.UsageCompute, stage.Usage{JobID: run.jobID, Duration: m.now().Sub(start), Calls: outcome.Attempts, Errors: failures(outcome, err)})
	if err != nil {
		return services.Wrap(services.ErrVideoProcessing, "extract", "", "", err)
	}
	state.audio = audio
	return m.updateArtifacts(run, func(a *queue.Artifacts) { a.AudioPath = audio.Path })
}

func (m *Manager) transcribe(ctx context.Context, run *jobRun, state *pipelineState) error {
	var transcript stage.Transcription
	start := m.now()
	outcome, err := m.recovery.Run(ctx, recovery.Operation{
		Name:    "transcribe audio",
		Breaker: m.breakers.Get(breaker.DependencyTranscription),
		Call: func(ctx context.Context) (err error) {
			transcript, err = m.deps.Transcribe.Transcribe(ctx, state.audio)
			return err
		},
	})
	m.recordUsage(ctx, stage.UsageTranscription, stage.Usage{JobID: run.jobID, Duration: m.now().Sub(start), Calls: outcome.Attempts, Errors: failures(outcome, err)})
	if err != nil {
		return services.Wrap(services.ErrTranscription, "transcribe", "", "", err)
	}
	state.transcript = transcript
	return m.updateArtifacts(run, func(a *queue.Artifacts) {
		a.SourceLanguage = transcript.Language
		a.TranscriptConfidence = transcript.Confidence
		a.SegmentCount = len(transcript.Segments)
	})
}

func (m *Manager) translate(ctx context.Context, run *jobRun, state *pipelineState) error {
	var translation stage.Translation
	start := m.now()
	outcome, err := m.recovery.Run(ctx, recovery.Operation{
		Name:    "translate transcript",
		Breaker: m.breakers.Get(breaker.DependencyTranscription),
		Call: func(ctx context.Context) (err error) {
			translation, err = m.deps.Transcribe.Translate(ctx, state.transcript, run.language)
			return err
		},
	})
	m.recordUsage(ctx, stage.UsageTranslation, stage.Usage{JobID: run.jobID, Duration: m.now().Sub(start), Calls: outcome.Attempts, Errors: failures(outcome, err)})
	if err != nil {
		return services.Wrap(services.ErrTranscription, "translate", "", "", err)
	}
	if translation.TargetLanguage == "" {
		translation.TargetLanguage = run.language
	}
	state.translation = translation
	return nil
}

// synthesizeSpeech fans segments out to the speech router with bounded
// concurrency. Results keep segment order regardless of completion order.
func (m *Manager) synthesizeSpeech(ctx context.Context, run *jobRun, state *pipelineState) error {
	segments := state.translation.Segments
	results := make([]stage.AudioSegment, len(segments))
	total := len(segments)
	index := slices.IndexFunc(m.plan, func(st pipelineStage) bool { return st.name == stageNameOf(ctx) })

	var (
		completed   atomic.Int64
		providersMu sync.Mutex
		providers   = make(map[string]struct{})
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.cfg.SynthesisConcurrency)

	var dispatchErr error
	for i, segment := range segments {
		if err := m.checkpoint(groupCtx, run); err != nil {
			dispatchErr = err
			break
		}
		group.Go(func() error {
			if err := m.checkpoint(groupCtx, run); err != nil {
				return err
			}
			req := stage.SynthesisRequest{
				JobID:    run.jobID,
				Segment:  segment,
				Language: state.translation.TargetLanguage,
			}
			out, err := m.synthesizeSegment(groupCtx, run, req)
			if err != nil {
				return fmt.Errorf("segment %d: %w", segment.Index, err)
			}
			results[i] = out

			providersMu.Lock()
			providers[out.Provider] = struct{}{}
			providersMu.Unlock()

			done := completed.Add(1)
			if index >= 0 && total > 0 {
				_, _ = m.advance(run, progressAfter(m.plan, index, float64(done)/float64(total)))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return services.Wrap(services.ErrSynthesis, "synthesize", "", "", err)
	}
	if dispatchErr != nil {
		return dispatchErr
	}

	state.segments = results
	used := make([]string, 0, len(providers))
	for provider := range providers {
		if provider != "" {
			used = append(used, provider)
		}
	}
	slices.Sort(used)
	return m.updateArtifacts(run, func(a *queue.Artifacts) {
		a.SynthesizedSegments = len(results)
		a.ProvidersUsed = used
	})
}

func (m *Manager) synthesizeSegment(ctx context.Context, run *jobRun, req stage.SynthesisRequest) (stage.AudioSegment, error) {
	provider, err := m.deps.Speech.SelectProvider(ctx, req)
	if err != nil {
		return stage.AudioSegment{}, fmt.Errorf("select provider: %w", err)
	}
	provider = strings.TrimSpace(provider)

	var (
		mu  sync.Mutex
		out stage.AudioSegment
	)
	op := m.synthesisOperation(run, req, provider, map[string]struct{}{}, func(seg stage.AudioSegment) {
		mu.Lock()
		out = seg
		mu.Unlock()
	})
	if _, err := m.recovery.Run(ctx, op); err != nil {
		return stage.AudioSegment{}, err
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// synthesisOperation builds the recovery chain for provider and its fallbacks.
func (m *Manager) synthesisOperation(run *jobRun, req stage.SynthesisRequest, provider string, seen map[string]struct{}, store func(stage.AudioSegment)) recovery.Operation {
	seen[provider] = struct{}{}
	op := recovery.Operation{
		Name:    "synthesize via " + provider,
		Breaker: m.breakers.Get(breaker.SynthesisDependency(provider)),
		Call: func(ctx context.Context) error {
			report := func(usage stage.Usage) {
				usage.JobID = run.jobID
				if usage.Provider == "" {
					usage.Provider = provider
				}
				m.recordUsage(ctx, stage.UsageSynthesis, usage)
			}
			seg, err := m.deps.Speech.Synthesize(ctx, req, provider, run.workDir, report)
			if err != nil {
				return err
			}
			if seg.Provider == "" {
				seg.Provider = provider
			}
			store(seg)
			return nil
		},
	}
	if fallback, ok := m.deps.Speech.Fallback(provider); ok {
		fallback = strings.TrimSpace(fallback)
		if _, loop := seen[fallback]; fallback != "" && !loop {
			next := m.synthesisOperation(run, req, fallback, seen, store)
			op.Fallback = &next
		}
	}
	return op
}

func (m *Manager) assembleAudio(ctx context.Context, run *jobRun, state *pipelineState) error {
	var track stage.AudioTrack
	start := m.now()
	outcome, err := m.recovery.Run(ctx, recovery.Operation{
		Name:    "assemble audio track",
		Breaker: m.breakers.Get(breaker.DependencyAssembly),
		Call: func(ctx context.Context) (err error) {
			track, err = m.deps.Audio.Assemble(ctx, state.segments, run.workDir)
			return err
		},
	})
	m.recordUsage(ctx, stage.UsageCompute, stage.Usage{JobID: run.jobID, Duration: m.now().Sub(start), Calls: outcome.Attempts, Errors: failures(outcome, err)})
	if err != nil {
		return services.Wrap(services.ErrAssembly, "assemble", "audio", "", err)
	}
	state.track = track
	return m.updateArtifacts(run, func(a *queue.Artifacts) { a.AudioTrackPath = track.Path })
}

func (m *Manager) combineVideo(ctx context.Context, run *jobRun, state *pipelineState) error {
	var output string
	start := m.now()
	outputDir := filepath.Dir(run.input)
	outcome, err := m.recovery.Run(ctx, recovery.Operation{
		Name:    "combine video",
		Breaker: m.breakers.Get(breaker.DependencyAssembly),
		Call: func(ctx context.Context) (err error) {
			output, err = m.deps.Assembly.Combine(ctx, run.input, state.track, outputDir)
			return err
		},
	})
	m.recordUsage(ctx, stage.UsageCompute, stage.Usage{JobID: run.jobID, Duration: m.now().Sub(start), Calls: outcome.Attempts, Errors: failures(outcome, err)})
	if err != nil {
		return services.Wrap(services.ErrAssembly, "assemble", "video", "", err)
	}
	state.output = output
	return nil
}

// qualityError fails an otherwise successful job.
type qualityError struct {
	issues []string
}

func (e *qualityError) Error() string {
	if len(e.issues) == 0 {
		return "Quality validation failed"
	}
	return "Quality validation failed: " + strings.Join(e.issues, "; ")
}

func (e *qualityError) Unwrap() error { return services.ErrQualityValidation }

func (m *Manager) validateQuality(ctx context.Context, run *jobRun, state *pipelineState) error {
	var report stage.QualityReport
	_, err := m.recovery.Run(ctx, recovery.Operation{
		Name: "validate quality",
		Call: func(ctx context.Context) (err error) {
			report, err = m.deps.Quality.Validate(ctx, state.output)
			return err
		},
	})
	if err != nil {
		return services.Wrap(services.ErrQualityValidation, "quality", "validate", "", err)
	}
	if err := m.updateArtifacts(run, func(a *queue.Artifacts) {
		a.QualityScore = report.OverallScore
		a.QualityIssues = append([]string(nil), report.Issues...)
		a.QualityRecommendation = append([]string(nil), report.Recommendations...)
	}); err != nil {
		return err
	}
	if !report.PassesThreshold {
		return &qualityError{issues: report.Issues}
	}
	return nil
}

// failures counts failed calls in a recovery outcome.
func failures(outcome recovery.Outcome, err error) int {
	if err == nil {
		return max(outcome.Attempts-1, 0)
	}
	return outcome.Attempts
}

func stageNameOf(ctx context.Context) string {
	name, _ := services.StageFromContext(ctx)
	return name
}
