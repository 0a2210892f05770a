package remote_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dubbing/internal/config"
	"dubbing/internal/services"
	"dubbing/internal/services/remote"
	"dubbing/internal/stage"
)

func TestTranscribeParsesSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["audio_path"] != "/tmp/audio.wav" {
			t.Errorf("unexpected audio path %q", body["audio_path"])
		}
		_, _ = w.Write([]byte(`{"language":"eng","confidence":0.9,"segments":[
			{"index":1,"start":2.5,"end":4,"text":" second "},
			{"index":0,"start":0,"end":2.5,"text":"first"},
			{"index":2,"start":4,"end":5,"text":"   "}]}`))
	}))
	defer server.Close()

	tr := remote.NewTranscriber(server.URL, "", remote.WithAPIKey("secret"))
	got, err := tr.Transcribe(context.Background(), stage.AudioHandle{Path: "/tmp/audio.wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Language != "en" || len(got.Segments) != 2 {
		t.Fatalf("unexpected transcription %+v", got)
	}
	if got.Segments[0].Text != "first" || got.Segments[1].Text != "second" {
		t.Fatalf("segments not ordered: %+v", got.Segments)
	}
	if got.Segments[1].Start != 2500*time.Millisecond || got.Segments[1].End != 4*time.Second {
		t.Fatalf("unexpected timing %+v", got.Segments[1])
	}
}

func TestTranslateKeepsTiming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			TargetLanguage string `json:"target_language"`
			Segments       []struct {
				Index int    `json:"index"`
				Text  string `json:"text"`
			} `json:"segments"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.TargetLanguage != "bn" {
			t.Errorf("unexpected target %q", req.TargetLanguage)
		}
		out := map[string]any{"segments": []map[string]any{}}
		for _, seg := range req.Segments {
			out["segments"] = append(out["segments"].([]map[string]any), map[string]any{"index": seg.Index, "text": "bn:" + seg.Text})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	tr := remote.NewTranscriber("http://unused.invalid", server.URL)
	in := stage.Transcription{Language: "en", Segments: []stage.Segment{
		{Index: 0, Start: 0, End: time.Second, Text: "hello"},
		{Index: 1, Start: time.Second, End: 3 * time.Second, Text: "world"},
	}}
	got, err := tr.Translate(context.Background(), in, "bn")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(got.Segments) != 2 || got.Segments[1].Translated != "bn:world" || got.Segments[1].End != 3*time.Second {
		t.Fatalf("unexpected translation %+v", got)
	}
	if got.SourceLanguage != "en" || got.TargetLanguage != "bn" {
		t.Fatalf("unexpected languages %+v", got)
	}
}

func TestTranslateMissingSegmentFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"segments":[{"index":0,"text":"ok"}]}`))
	}))
	defer server.Close()

	tr := remote.NewTranscriber(server.URL, "")
	in := stage.Transcription{Segments: []stage.Segment{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}}
	if _, err := tr.Translate(context.Background(), in, "bn"); err == nil || !strings.Contains(err.Error(), "segment 1") {
		t.Fatalf("expected missing segment error, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   services.Kind
		quota  bool
	}{
		{http.StatusTooManyRequests, services.KindQuota, true},
		{http.StatusServiceUnavailable, services.KindTransient, false},
		{http.StatusBadGateway, services.KindTransient, false},
		{http.StatusInsufficientStorage, services.KindResource, false},
		{http.StatusBadRequest, services.KindUnclassified, false},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		gate := remote.NewQualityGate(server.URL)
		_, err := gate.Validate(context.Background(), "/videos/out.mp4")
		server.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if got := services.KindOf(err); got != tc.kind {
			t.Fatalf("status %d: expected kind %s, got %s (%v)", tc.status, tc.kind, got, err)
		}
		if errors.Is(err, services.ErrQuotaExceeded) != tc.quota {
			t.Fatalf("status %d: unexpected quota match for %v", tc.status, err)
		}
		var statusErr *remote.StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != tc.status {
			t.Fatalf("status %d: expected StatusError, got %v", tc.status, err)
		}
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	gate := remote.NewQualityGate(url, remote.WithTimeout(time.Second))
	_, err := gate.Validate(context.Background(), "/videos/out.mp4")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := services.KindOf(err); got != services.KindTransient {
		t.Fatalf("expected transient, got %s (%v)", got, err)
	}
}

func TestQualityGateReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/validate":
			_, _ = w.Write([]byte(`{"passes_threshold":false,"overall_score":0.42,"issues":[" lip sync drift ",""],"recommendations":["re-time segment 3"]}`))
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	gate := remote.NewQualityGate(server.URL)
	report, err := gate.Validate(context.Background(), "/videos/out.mp4")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.PassesThreshold || report.OverallScore != 0.42 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Issues) != 1 || report.Issues[0] != "lip sync drift" {
		t.Fatalf("unexpected issues %v", report.Issues)
	}
	if h := gate.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy, got %+v", h)
	}
}

func TestHealthCheckUnconfigured(t *testing.T) {
	gate := remote.NewQualityGate("")
	if h := gate.HealthCheck(context.Background()); h.Ready || h.Detail != "endpoint not configured" {
		t.Fatalf("unexpected health %+v", h)
	}
}

func newProviderServer(t *testing.T, id string, handler func(w http.ResponseWriter, text string)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path != "/synthesize" {
			t.Errorf("%s: unexpected path %s", id, r.URL.Path)
		}
		var req struct {
			Text  string  `json:"text"`
			Speed float64 `json:"speed"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Speed != 1.0 {
			t.Errorf("%s: expected default speed, got %v", id, req.Speed)
		}
		handler(w, req.Text)
	}))
	t.Cleanup(server.Close)
	return server
}

func routerConfig(providers ...config.Provider) *config.Config {
	cfg := config.Default()
	cfg.Services.RouterURL = ""
	cfg.Services.Providers = providers
	return &cfg
}

func TestRouterSynthesizeWritesAudioAndReportsUsage(t *testing.T) {
	audio := []byte("RIFF....WAVEfmt ")
	server := newProviderServer(t, "cloud", func(w http.ResponseWriter, text string) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"audio_data":   base64.StdEncoding.EncodeToString(audio),
			"audio_length": 1.5,
			"text_length":  len([]rune(text)),
			"language":     "bn",
		})
	})

	router, err := remote.NewRouter(routerConfig(config.Provider{ID: "cloud", URL: server.URL}), nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	req := stage.SynthesisRequest{
		JobID:    "job-1",
		Language: "bn",
		Segment:  stage.TranslatedSegment{Index: 3, Start: 2 * time.Second, End: 4 * time.Second, Translated: "নমস্কার"},
	}
	provider, err := router.SelectProvider(context.Background(), req)
	if err != nil || provider != "cloud" {
		t.Fatalf("SelectProvider = %q, %v", provider, err)
	}

	var usage []stage.Usage
	workDir := t.TempDir()
	seg, err := router.Synthesize(context.Background(), req, provider, workDir, func(u stage.Usage) { usage = append(usage, u) })
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if seg.Index != 3 || seg.Start != 2*time.Second || seg.Duration != 1500*time.Millisecond || seg.Provider != "cloud" {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if filepath.Base(seg.Path) != "seg-0003-cloud.wav" {
		t.Fatalf("unexpected path %s", seg.Path)
	}
	data, err := os.ReadFile(seg.Path)
	if err != nil || string(data) != string(audio) {
		t.Fatalf("audio not written: %v", err)
	}
	if len(usage) != 1 || usage[0].Characters != 7 || usage[0].Calls != 1 || usage[0].Errors != 0 || usage[0].JobID != "job-1" {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestRouterQuotaFailureReportsError(t *testing.T) {
	server := newProviderServer(t, "cloud", func(w http.ResponseWriter, _ string) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "monthly quota exhausted"})
	})
	local := newProviderServer(t, "local", func(w http.ResponseWriter, _ string) {})

	router, err := remote.NewRouter(routerConfig(
		config.Provider{ID: "cloud", URL: server.URL, Fallback: "local"},
		config.Provider{ID: "local", URL: local.URL},
	), nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	var usage []stage.Usage
	req := stage.SynthesisRequest{JobID: "job-2", Segment: stage.TranslatedSegment{Index: 0, Translated: "hi"}}
	_, err = router.Synthesize(context.Background(), req, "cloud", t.TempDir(), func(u stage.Usage) { usage = append(usage, u) })
	if !errors.Is(err, services.ErrQuotaExceeded) || services.KindOf(err) != services.KindQuota {
		t.Fatalf("expected quota error, got %v", err)
	}
	if len(usage) != 1 || usage[0].Errors != 1 || usage[0].Characters != 0 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if fb, ok := router.Fallback("cloud"); !ok || fb != "local" {
		t.Fatalf("Fallback(cloud) = %q, %v", fb, ok)
	}
	if _, ok := router.Fallback("local"); ok {
		t.Fatal("local should have no fallback")
	}
	if got := router.Providers(); len(got) != 2 || got[0] != "cloud" || got[1] != "local" {
		t.Fatalf("unexpected providers %v", got)
	}
}

func TestRouterUsesRoutingService(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	routing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Providers []string `json:"providers"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		seen = req.Providers
		mu.Unlock()
		_, _ = w.Write([]byte(`{"provider":"LOCAL"}`))
	}))
	defer routing.Close()

	cfg := routerConfig(config.Provider{ID: "cloud", URL: "http://cloud.invalid"}, config.Provider{ID: "local", URL: "http://local.invalid"})
	cfg.Services.RouterURL = routing.URL
	router, err := remote.NewRouter(cfg, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	got, err := router.SelectProvider(context.Background(), stage.SynthesisRequest{Segment: stage.TranslatedSegment{Translated: "x"}})
	if err != nil || got != "local" {
		t.Fatalf("SelectProvider = %q, %v", got, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("routing service saw providers %v", seen)
	}
}

func TestRouterFallsBackToDefaultWhenRoutingFails(t *testing.T) {
	routing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer routing.Close()

	cfg := routerConfig(config.Provider{ID: "cloud", URL: "http://cloud.invalid"})
	cfg.Services.RouterURL = routing.URL
	router, err := remote.NewRouter(cfg, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	got, err := router.SelectProvider(context.Background(), stage.SynthesisRequest{})
	if err != nil || got != "cloud" {
		t.Fatalf("SelectProvider = %q, %v", got, err)
	}
}

func TestNewRouterRejectsBadProviders(t *testing.T) {
	if _, err := remote.NewRouter(routerConfig(), nil); err == nil {
		t.Fatal("expected error for no providers")
	}
	if _, err := remote.NewRouter(routerConfig(config.Provider{ID: "a"}, config.Provider{ID: "A"}), nil); err == nil {
		t.Fatal("expected error for duplicate providers")
	}
}
