package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"dubbing/internal/api"
)

type fakeDaemon struct {
	mu       sync.Mutex
	token    string
	jobs     map[string]api.Job
	order    []string
	requests []string
	health   api.Health
	history  []api.HistoryEntry
}

func newFakeDaemon(t *testing.T, token string) (*fakeDaemon, *httptest.Server) {
	t.Helper()
	fd := &fakeDaemon{
		token: token,
		jobs:  make(map[string]api.Job),
		health: api.Health{
			Healthy:  true,
			Running:  true,
			Breakers: []api.Breaker{{Name: "transcription", State: "closed"}},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(fd.serve))
	t.Cleanup(srv.Close)
	return fd, srv
}

func (fd *fakeDaemon) addJob(job api.Job) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.jobs[job.ID] = job
	fd.order = append(fd.order, job.ID)
}

func (fd *fakeDaemon) serve(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.requests = append(fd.requests, r.Method+" "+r.URL.RequestURI())

	if fd.token != "" && r.Header.Get("Authorization") != "Bearer "+fd.token {
		writeTestJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case r.Method == http.MethodPost && path == "/jobs":
		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeTestJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		lang := req.TargetLanguage
		if lang == "" {
			lang = "bn"
		}
		job := api.Job{ID: fmt.Sprintf("job-%d", len(fd.order)+1), Status: "queued", Phase: "pending", InputVideo: req.InputVideo, TargetLanguage: lang}
		fd.jobs[job.ID] = job
		fd.order = append(fd.order, job.ID)
		writeTestJSON(w, http.StatusCreated, api.JobResponse{Job: job})
	case r.Method == http.MethodGet && path == "/jobs":
		wanted := r.URL.Query()["status"]
		var out []api.Job
		for _, id := range fd.order {
			job := fd.jobs[id]
			if len(wanted) > 0 && !containsString(wanted, job.Status) {
				continue
			}
			out = append(out, job)
		}
		writeTestJSON(w, http.StatusOK, api.JobListResponse{Jobs: out})
	case strings.HasPrefix(path, "/jobs/"):
		fd.serveJob(w, r, strings.TrimPrefix(path, "/jobs/"))
	case path == "/stats":
		writeTestJSON(w, http.StatusOK, api.Stats{
			QueueLength:    len(fd.order),
			TotalJobs:      len(fd.order),
			SuccessRate:    0.5,
			StatusCounts:   map[string]int{"queued": 1, "completed": 1},
			TotalCostUSD:   0.125,
			CostByProvider: map[string]float64{"cloud": 0.125},
		})
	case path == "/health":
		status := http.StatusOK
		if !fd.health.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeTestJSON(w, status, fd.health)
	case path == "/history":
		writeTestJSON(w, http.StatusOK, api.HistoryResponse{Entries: fd.history})
	default:
		writeTestJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "not found"})
	}
}

func (fd *fakeDaemon) serveJob(w http.ResponseWriter, r *http.Request, rest string) {
	id, action, _ := strings.Cut(rest, "/")
	job, ok := fd.jobs[id]
	if !ok {
		writeTestJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "Job " + id + " not found"})
		return
	}
	switch action {
	case "":
		writeTestJSON(w, http.StatusOK, api.JobResponse{Job: job})
	case "cancel":
		if job.Phase == "terminal" {
			writeTestJSON(w, http.StatusConflict, api.ErrorResponse{Error: "Cannot cancel job in " + job.Status + " status"})
			return
		}
		job.Status, job.Phase = "cancelled", "terminal"
		fd.jobs[id] = job
		writeTestJSON(w, http.StatusOK, api.JobResponse{Job: job})
	case "retry":
		if job.Status != "failed" {
			writeTestJSON(w, http.StatusConflict, api.ErrorResponse{Error: "Can only retry failed jobs. Current status: " + job.Status})
			return
		}
		job.Status, job.Phase = "queued", "pending"
		fd.jobs[id] = job
		writeTestJSON(w, http.StatusOK, api.JobResponse{Job: job})
	default:
		writeTestJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "not found"})
	}
}

func (fd *fakeDaemon) lastRequest() string {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if len(fd.requests) == 0 {
		return ""
	}
	return fd.requests[len(fd.requests)-1]
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// writeTestConfig writes a minimal config rooted in a temp directory and
// returns its path.
func writeTestConfig(t *testing.T, token string) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	content := fmt.Sprintf(
		"[paths]\ntemp_dir = %q\nlog_dir = %q\narchive_path = %q\napi_token = %q\n",
		filepath.Join(base, "tmp"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "history.db"),
		token,
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiURL != "" {
		flags = append(flags, "--api", apiURL)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
