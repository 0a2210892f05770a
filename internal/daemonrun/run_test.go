package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"dubbing/internal/config"
	"dubbing/internal/testsupport"
)

func TestBuildDependenciesWiresAdapters(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProviders(
		config.Provider{ID: "cloud", URL: "http://cloud.invalid", Fallback: "local"},
		config.Provider{ID: "local", URL: "http://local.invalid"},
	))
	cfg.Services.TranscriptionURL = "http://asr.invalid"

	deps, err := buildDependencies(cfg, nil, nil)
	if err != nil {
		t.Fatalf("buildDependencies: %v", err)
	}
	if err := deps.Validate(); err != nil {
		t.Fatalf("dependencies incomplete: %v", err)
	}
	if deps.Quality != nil {
		t.Fatal("quality gate should be nil without quality_url")
	}
	if got := deps.Speech.Providers(); len(got) != 2 || got[0] != "cloud" {
		t.Fatalf("unexpected providers %v", got)
	}

	cfg.Services.QualityURL = "http://qa.invalid"
	deps, err = buildDependencies(cfg, nil, nil)
	if err != nil || deps.Quality == nil {
		t.Fatalf("expected quality gate, got %v (%v)", deps.Quality, err)
	}
}

func TestBuildDependenciesRequiresProviders(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProviders())
	if _, err := buildDependencies(cfg, nil, nil); err == nil || !strings.Contains(err.Error(), "provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dubbingd.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file %q", data)
	}
}
