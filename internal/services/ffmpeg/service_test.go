package ffmpeg

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"dubbing/internal/services"
	"dubbing/internal/stage"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []recordedCall
	probe  string
	output []byte
	err    error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{name: name, args: append([]string(nil), args...)})
	f.mu.Unlock()
	if strings.HasSuffix(name, "ffprobe") {
		return []byte(f.probe), nil
	}
	return f.output, f.err
}

func (f *fakeRunner) commands(name string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, call := range f.calls {
		if filepath.Base(call.name) == name {
			out = append(out, call)
		}
	}
	return out
}

const probeWithAudio = `{"streams":[{"index":0,"codec_type":"video"},{"index":1,"codec_type":"audio"}],"format":{"duration":"93.5"}}`

func TestExtractAudioBuildsMonoWav(t *testing.T) {
	runner := &fakeRunner{probe: probeWithAudio}
	svc := NewService("/opt/ffmpeg/bin/ffmpeg", WithCommandRunner(runner.run))
	workDir := t.TempDir()

	audio, err := svc.ExtractAudio(context.Background(), "/videos/talk.mp4", workDir)
	if err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	if audio.Path != filepath.Join(workDir, "source-audio.wav") {
		t.Fatalf("unexpected audio path %q", audio.Path)
	}
	if audio.Duration != 93500*time.Millisecond {
		t.Fatalf("unexpected duration %v", audio.Duration)
	}

	probes := runner.commands("ffprobe")
	if len(probes) != 2 || probes[0].name != "/opt/ffmpeg/bin/ffprobe" {
		t.Fatalf("expected ffprobe next to ffmpeg, got %+v", probes)
	}
	extract := runner.commands("ffmpeg")
	if len(extract) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(extract))
	}
	args := strings.Join(extract[0].args, " ")
	for _, want := range []string{"-i /videos/talk.mp4", "-map 0:a:0", "-ac 1", "-ar 16000", "-c:a pcm_s16le"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in args %q", want, args)
		}
	}
}

func TestExtractAudioRequiresAudioStream(t *testing.T) {
	runner := &fakeRunner{probe: `{"streams":[{"index":0,"codec_type":"video"}],"format":{"duration":"10"}}`}
	svc := NewService("", WithCommandRunner(runner.run))

	_, err := svc.ExtractAudio(context.Background(), "/videos/silent.mp4", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "no audio stream") {
		t.Fatalf("expected missing audio error, got %v", err)
	}
	if len(runner.commands("ffmpeg")) != 0 {
		t.Fatal("expected no extraction when source has no audio")
	}
}

func TestDiskFullIsResourceError(t *testing.T) {
	runner := &fakeRunner{
		probe:  probeWithAudio,
		output: []byte("Error writing trailer: No space left on device"),
		err:    errors.New("exit status 1"),
	}
	svc := NewService("ffmpeg", WithCommandRunner(runner.run))

	_, err := svc.ExtractAudio(context.Background(), "/videos/a.mp4", t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := services.KindOf(err); kind != services.KindResource {
		t.Fatalf("expected resource kind, got %q (%v)", kind, err)
	}
	if !strings.Contains(err.Error(), "No space left on device") {
		t.Fatalf("expected tool output in error, got %v", err)
	}
}

func TestClassifyKinds(t *testing.T) {
	if kind := services.KindOf(classify("op", context.DeadlineExceeded, nil)); kind != services.KindTransient {
		t.Fatalf("expected transient for deadline, got %q", kind)
	}
	if kind := services.KindOf(classify("op", errors.New("exit status 1"), []byte("Invalid data found"))); kind != services.KindUnclassified {
		t.Fatalf("expected unclassified, got %q", kind)
	}
}

func TestAssembleDelaysSegmentsInOrder(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService("ffmpeg", WithCommandRunner(runner.run))
	workDir := t.TempDir()

	segments := []stage.AudioSegment{
		{Index: 1, Path: "/w/seg-1.wav", Start: 2500 * time.Millisecond, Duration: time.Second},
		{Index: 0, Path: "/w/seg-0.wav", Start: 0, Duration: 2 * time.Second},
	}
	track, err := svc.Assemble(context.Background(), segments, workDir)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if track.Duration != 3500*time.Millisecond {
		t.Fatalf("unexpected track duration %v", track.Duration)
	}

	args := runner.commands("ffmpeg")[0].args
	first := slices.Index(args, "/w/seg-0.wav")
	second := slices.Index(args, "/w/seg-1.wav")
	if first < 0 || second < first {
		t.Fatalf("expected inputs ordered by index, got %v", args)
	}
	filter := args[slices.Index(args, "-filter_complex")+1]
	want := "[0:a]adelay=0:all=1[a0];[1:a]adelay=2500:all=1[a1];[a0][a1]amix=inputs=2:normalize=0[out]"
	if filter != want {
		t.Fatalf("unexpected filter\n got %s\nwant %s", filter, want)
	}
}

func TestAssembleRequiresSegments(t *testing.T) {
	svc := NewService("ffmpeg", WithCommandRunner((&fakeRunner{}).run))
	if _, err := svc.Assemble(context.Background(), nil, t.TempDir()); err == nil {
		t.Fatal("expected error for empty segment list")
	}
}

func TestCombineWritesNextToSource(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService("ffmpeg", WithCommandRunner(runner.run))
	outDir := t.TempDir()

	out, err := svc.Combine(context.Background(), "/videos/lecture.mkv", stage.AudioTrack{Path: "/w/dub.wav"}, outDir)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if out != filepath.Join(outDir, "lecture.dubbed.mkv") {
		t.Fatalf("unexpected output %q", out)
	}
	args := strings.Join(runner.commands("ffmpeg")[0].args, " ")
	if !strings.Contains(args, "-map 0:v -map 1:a -c:v copy") {
		t.Fatalf("unexpected combine args %q", args)
	}
}

func TestProbeDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"12.5": 12500 * time.Millisecond,
		"":     0,
		"bad":  0,
		"-3":   0,
	}
	for raw, want := range cases {
		if got := (Probe{Format: ProbeFormat{Duration: raw}}).Duration(); got != want {
			t.Fatalf("Duration(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestHealthCheckReportsMissingBinary(t *testing.T) {
	svc := NewService("definitely-not-a-real-ffmpeg")
	health := svc.HealthCheck(context.Background())
	if health.Ready {
		t.Fatalf("expected unhealthy report, got %+v", health)
	}
}
