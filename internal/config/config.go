package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	TempDir     string `toml:"temp_dir" env:"TEMP_DIR"`
	LogDir      string `toml:"log_dir" env:"LOG_DIR"`
	ArchivePath string `toml:"archive_path" env:"ARCHIVE_PATH"`
	APIBind     string `toml:"api_bind" env:"API_BIND"`
	APIToken    string `toml:"api_token" env:"API_TOKEN"`
}

// Pipeline contains the orchestration knobs applied to every job.
type Pipeline struct {
	MaxConcurrentJobs       int            `toml:"max_concurrent_jobs" env:"MAX_CONCURRENT_JOBS"`
	JobTimeoutSeconds       int            `toml:"job_timeout_seconds" env:"JOB_TIMEOUT_SECONDS"`
	RetryAttempts           int            `toml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	EnableQualityValidation bool           `toml:"enable_quality_validation" env:"ENABLE_QUALITY_VALIDATION"`
	SynthesisConcurrency    int            `toml:"synthesis_concurrency" env:"SYNTHESIS_CONCURRENCY"`
	TargetLanguage          string         `toml:"target_language" env:"TARGET_LANGUAGE"`
	ShutdownGraceSeconds    int            `toml:"shutdown_grace_seconds" env:"SHUTDOWN_GRACE_SECONDS"`
	StageWeights            map[string]int `toml:"stage_weights"`
}

// Retry contains backoff settings for stage retries.
type Retry struct {
	BaseDelayMS int     `toml:"base_delay_ms" env:"BASE_DELAY_MS"`
	MaxDelayMS  int     `toml:"max_delay_ms" env:"MAX_DELAY_MS"`
	Jitter      float64 `toml:"jitter" env:"JITTER"`
}

// Breaker contains circuit breaker thresholds shared by every dependency.
type Breaker struct {
	FailureThreshold int `toml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	CooldownSeconds  int `toml:"cooldown_seconds" env:"COOLDOWN_SECONDS"`
}

// Health contains thresholds used by the health reporter.
type Health struct {
	MaxFailureRate float64 `toml:"max_failure_rate" env:"MAX_FAILURE_RATE"`
	MinSamples     int     `toml:"min_samples" env:"MIN_SAMPLES"`
}

// Provider describes one speech synthesis provider.
type Provider struct {
	ID           string  `toml:"id" env:"ID"`
	URL          string  `toml:"url" env:"URL"`
	APIKey       string  `toml:"api_key" env:"API_KEY"`
	Fallback     string  `toml:"fallback" env:"FALLBACK"`
	PricePerChar float64 `toml:"price_per_char" env:"PRICE_PER_CHAR"`
}

// Services contains endpoints for the external collaborators.
type Services struct {
	TranscriptionURL      string     `toml:"transcription_url" env:"TRANSCRIPTION_URL"`
	TranslationURL        string     `toml:"translation_url" env:"TRANSLATION_URL"`
	QualityURL            string     `toml:"quality_url" env:"QUALITY_URL"`
	RouterURL             string     `toml:"router_url" env:"ROUTER_URL"`
	RequestTimeoutSeconds int        `toml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`
	FFmpegBinary          string     `toml:"ffmpeg_binary" env:"FFMPEG_BINARY"`
	ComputePricePerMinute float64    `toml:"compute_price_per_minute"`
	Providers             []Provider `toml:"providers" envPrefix:"PROVIDERS_"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	OnCompletion   bool   `toml:"on_completion"`
	OnFailure      bool   `toml:"on_failure"`
	OnBreaker      bool   `toml:"on_breaker"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"FORMAT"`
	Level  string `toml:"level" env:"LEVEL"`
}

// Config encapsulates all configuration values for the dubbing daemon.
//
// Configuration sections by subsystem:
//   - Paths: scratch space, logs, history database and API bind address
//   - Pipeline: worker pool size, timeouts, retries and quality gating
//   - Retry: exponential backoff tuning
//   - Breaker: circuit breaker thresholds
//   - Health: failure-rate threshold for the health report
//   - Services: collaborator endpoints and synthesis providers
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//
// Every scalar may be overridden from the environment using the DUBBING_
// prefix and the section name, e.g. DUBBING_PIPELINE_MAX_CONCURRENT_JOBS.
type Config struct {
	Paths         Paths         `toml:"paths" envPrefix:"PATHS_"`
	Pipeline      Pipeline      `toml:"pipeline" envPrefix:"PIPELINE_"`
	Retry         Retry         `toml:"retry" envPrefix:"RETRY_"`
	Breaker       Breaker       `toml:"breaker" envPrefix:"BREAKER_"`
	Health        Health        `toml:"health" envPrefix:"HEALTH_"`
	Services      Services      `toml:"services" envPrefix:"SERVICES_"`
	Notifications Notifications `toml:"notifications" envPrefix:"NOTIFICATIONS_"`
	Logging       Logging       `toml:"logging" envPrefix:"LOGGING_"`
}

// PipelineConfig is the immutable per-process view consumed by the workflow manager.
type PipelineConfig struct {
	MaxConcurrentJobs       int
	JobTimeout              time.Duration
	RetryAttempts           int
	TempDirectory           string
	EnableQualityValidation bool
	SynthesisConcurrency    int
	TargetLanguage          string
	ShutdownGrace           time.Duration
	StageWeights            map[string]int
}

// PipelineConfig returns the orchestration settings as a detached value.
func (c *Config) PipelineConfig() PipelineConfig {
	weights := make(map[string]int, len(c.Pipeline.StageWeights))
	for k, v := range c.Pipeline.StageWeights {
		weights[k] = v
	}
	return PipelineConfig{
		MaxConcurrentJobs:       c.Pipeline.MaxConcurrentJobs,
		JobTimeout:              time.Duration(c.Pipeline.JobTimeoutSeconds) * time.Second,
		RetryAttempts:           c.Pipeline.RetryAttempts,
		TempDirectory:           c.Paths.TempDir,
		EnableQualityValidation: c.Pipeline.EnableQualityValidation,
		SynthesisConcurrency:    c.Pipeline.SynthesisConcurrency,
		TargetLanguage:          c.Pipeline.TargetLanguage,
		ShutdownGrace:           time.Duration(c.Pipeline.ShutdownGraceSeconds) * time.Second,
		StageWeights:            weights,
	}
}

// RetryBackoff returns the base and cap delays for stage retries.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond, time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

// BreakerCooldown returns the open-state duration for circuit breakers.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Breaker.CooldownSeconds) * time.Second
}

// RequestTimeout returns the HTTP timeout for collaborator calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Services.RequestTimeoutSeconds) * time.Second
}

// Provider returns the provider entry with the given id.
func (c *Config) Provider(id string) (Provider, bool) {
	for _, p := range c.Services.Providers {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return Provider{}, false
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, "", false, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dubbing.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.TempDir, c.Paths.LogDir}
	if c.Paths.ArchivePath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.ArchivePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for media operations.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Services.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
