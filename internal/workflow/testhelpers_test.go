package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dubbing/internal/config"
	"dubbing/internal/cost"
	"dubbing/internal/notifications"
	"dubbing/internal/queue"
	"dubbing/internal/services"
	"dubbing/internal/stage"
	"dubbing/internal/testsupport"
	"dubbing/internal/workflow"
)

// stubPipeline implements every collaborator contract. Hooks receive the
// 1-based call number for their operation and may return an error.
type stubPipeline struct {
	mu       sync.Mutex
	calls    map[string]int
	hooks    map[string]func(call int) error
	segments int
	quality  stage.QualityReport

	fallbacks map[string]string
	provider  string

	extractGate  chan struct{}
	assembleGate chan struct{}
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	synthDelay func(index int) time.Duration
	assembled  []stage.AudioSegment
	advance    func()
}

func newStubPipeline() *stubPipeline {
	return &stubPipeline{
		calls:     make(map[string]int),
		hooks:     make(map[string]func(int) error),
		segments:  3,
		quality:   stage.QualityReport{PassesThreshold: true, OverallScore: 0.92},
		fallbacks: make(map[string]string),
		provider:  "cloud",
	}
}

func (p *stubPipeline) on(op string, hook func(call int) error) {
	p.mu.Lock()
	p.hooks[op] = hook
	p.mu.Unlock()
}

func (p *stubPipeline) record(op string) error {
	p.mu.Lock()
	p.calls[op]++
	call := p.calls[op]
	hook := p.hooks[op]
	p.mu.Unlock()
	if hook != nil {
		return hook(call)
	}
	return nil
}

func (p *stubPipeline) callCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *stubPipeline) ExtractAudio(ctx context.Context, video, workDir string) (stage.AudioHandle, error) {
	current := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.maxInFlight.Load()
		if current <= peak || p.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	if err := p.record("extract"); err != nil {
		return stage.AudioHandle{}, err
	}
	if p.extractGate != nil {
		select {
		case <-p.extractGate:
		case <-ctx.Done():
			return stage.AudioHandle{}, ctx.Err()
		}
	}
	if p.advance != nil {
		p.advance()
	}
	return stage.AudioHandle{Path: filepath.Join(workDir, "audio.wav"), Duration: time.Minute}, nil
}

func (p *stubPipeline) Transcribe(ctx context.Context, audio stage.AudioHandle) (stage.Transcription, error) {
	if err := p.record("transcribe"); err != nil {
		return stage.Transcription{}, err
	}
	segments := make([]stage.Segment, p.segments)
	for i := range segments {
		segments[i] = stage.Segment{
			Index: i,
			Start: time.Duration(i) * time.Second,
			End:   time.Duration(i+1) * time.Second,
			Text:  fmt.Sprintf("line %d", i),
		}
	}
	return stage.Transcription{Segments: segments, Language: "en", Confidence: 0.9}, nil
}

func (p *stubPipeline) Translate(ctx context.Context, tr stage.Transcription, target string) (stage.Translation, error) {
	if err := p.record("translate"); err != nil {
		return stage.Translation{}, err
	}
	out := stage.Translation{SourceLanguage: tr.Language, TargetLanguage: target}
	for _, seg := range tr.Segments {
		out.Segments = append(out.Segments, stage.TranslatedSegment{
			Index:      seg.Index,
			Start:      seg.Start,
			End:        seg.End,
			Original:   seg.Text,
			Translated: "translated " + seg.Text,
		})
	}
	return out, nil
}

func (p *stubPipeline) SelectProvider(ctx context.Context, req stage.SynthesisRequest) (string, error) {
	return p.provider, nil
}

func (p *stubPipeline) Synthesize(ctx context.Context, req stage.SynthesisRequest, provider, workDir string, report stage.UsageReporter) (stage.AudioSegment, error) {
	if p.synthDelay != nil {
		select {
		case <-time.After(p.synthDelay(req.Segment.Index)):
		case <-ctx.Done():
			return stage.AudioSegment{}, ctx.Err()
		}
	}
	err := p.record("synthesize:" + provider)
	usage := stage.Usage{Provider: provider, Characters: len(req.Segment.Translated), Calls: 1}
	if err != nil {
		usage.Characters = 0
		usage.Errors = 1
	}
	report(usage)
	if err != nil {
		return stage.AudioSegment{}, err
	}
	return stage.AudioSegment{
		Index:    req.Segment.Index,
		Path:     filepath.Join(workDir, fmt.Sprintf("seg-%03d.wav", req.Segment.Index)),
		Start:    req.Segment.Start,
		Duration: req.Segment.End - req.Segment.Start,
		Provider: provider,
	}, nil
}

func (p *stubPipeline) Fallback(provider string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.fallbacks[provider]
	return next, ok
}

func (p *stubPipeline) Providers() []string {
	return []string{p.provider}
}

func (p *stubPipeline) Assemble(ctx context.Context, segments []stage.AudioSegment, workDir string) (stage.AudioTrack, error) {
	if err := p.record("assemble"); err != nil {
		return stage.AudioTrack{}, err
	}
	if p.assembleGate != nil {
		select {
		case <-p.assembleGate:
		case <-ctx.Done():
			return stage.AudioTrack{}, ctx.Err()
		}
	}
	p.mu.Lock()
	p.assembled = append([]stage.AudioSegment(nil), segments...)
	p.mu.Unlock()
	return stage.AudioTrack{Path: filepath.Join(workDir, "dub.wav"), Duration: time.Minute}, nil
}

func (p *stubPipeline) Combine(ctx context.Context, video string, track stage.AudioTrack, outputDir string) (string, error) {
	if err := p.record("combine"); err != nil {
		return "", err
	}
	return filepath.Join(outputDir, "dubbed-"+filepath.Base(video)), nil
}

func (p *stubPipeline) Validate(ctx context.Context, output string) (stage.QualityReport, error) {
	if err := p.record("quality"); err != nil {
		return stage.QualityReport{}, err
	}
	return p.quality, nil
}

func (p *stubPipeline) dependencies(acct stage.CostAccountant) stage.Dependencies {
	return stage.Dependencies{
		Video:      p,
		Transcribe: p,
		Speech:     p,
		Audio:      p,
		Assembly:   p,
		Quality:    p,
		Cost:       acct,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	manager  *workflow.Manager
	pipeline *stubPipeline
	acct     *cost.Accountant
	notifier *recordingNotifier
}

func newHarness(t *testing.T, pipeline *stubPipeline, cfgOpts []testsupport.ConfigOption, opts ...workflow.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	store := queue.NewStore()
	acct := cost.NewAccountant(cost.Pricing{PerCharacter: map[string]float64{"cloud": 0.001, "local": 0}, ComputePerMinute: 0.01}, nil)
	notifier := &recordingNotifier{}

	base := []workflow.Option{
		workflow.WithNotifier(notifier),
		workflow.WithSleeper(func(time.Duration) {}),
	}
	manager, err := workflow.NewManager(cfg, store, pipeline.dependencies(acct), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	return &harness{cfg: cfg, store: store, manager: manager, pipeline: pipeline, acct: acct, notifier: notifier}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) submit(t *testing.T, input string) queue.Job {
	t.Helper()
	job, err := h.manager.ProcessVideo(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}
	return job
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitForStatus(t *testing.T, id string, status queue.Status) queue.Job {
	t.Helper()
	var job queue.Job
	waitFor(t, fmt.Sprintf("job %s to reach %s", id, status), func() bool {
		var err error
		job, err = h.manager.GetJobStatus(id)
		return err == nil && job.Status == status
	})
	return job
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	waitFor(t, "workers to go idle", func() bool {
		return h.manager.ActiveJobCount() == 0 && h.manager.QueueLength() == 0
	})
}

func transientErr(msg string) error {
	return services.Tag(services.KindTransient, errors.New(msg))
}
