// Package daemonrun builds the production object graph for the dubbing
// daemon and runs it until the context is cancelled or a signal arrives.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dubbing/internal/archive"
	"dubbing/internal/config"
	"dubbing/internal/cost"
	"dubbing/internal/daemon"
	"dubbing/internal/deps"
	"dubbing/internal/logging"
	"dubbing/internal/notifications"
	"dubbing/internal/queue"
	"dubbing/internal/services/ffmpeg"
	"dubbing/internal/services/remote"
	"dubbing/internal/stage"
	"dubbing/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// PIDFile returns the path of the daemon pid file for cfg.
func PIDFile(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "dubbingd.pid")
}

// Run starts the dubbing daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	sessionID := uuid.NewString()
	logger = logger.With(logging.String("session_id", sessionID))

	logDependencySnapshot(logger, cfg)
	pidPath := PIDFile(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	history, err := archive.Open(signalCtx, cfg.Paths.ArchivePath, logger)
	if err != nil {
		logger.Error("open history archive", logging.Error(err))
		return err
	}

	accountant := cost.NewAccountant(cost.PricingFromConfig(cfg), logger)
	dependencies, err := buildDependencies(cfg, logger, accountant)
	if err != nil {
		_ = history.Close()
		return err
	}

	manager, err := workflow.NewManager(cfg, queue.NewStore(), dependencies,
		workflow.WithLogger(logger),
		workflow.WithNotifier(notifications.NewService(cfg)),
		workflow.WithObserver(history.Observe),
	)
	if err != nil {
		_ = history.Close()
		return fmt.Errorf("create workflow manager: %w", err)
	}

	d, err := daemon.New(cfg, logger, manager,
		daemon.WithArchive(history),
		daemon.WithCostSummary(accountant),
	)
	if err != nil {
		_ = history.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.Hint("run `dubbing check` and fix the reported problems"),
			logging.Impact("no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("dubbing daemon shutting down", logging.EventType("daemon_shutdown"))

	grace := cfg.PipelineConfig().ShutdownGrace + 5*time.Second
	stopCtx, stopCancel := context.WithTimeout(context.Background(), grace)
	defer stopCancel()
	return d.Stop(stopCtx)
}

func buildDependencies(cfg *config.Config, logger *slog.Logger, accountant *cost.Accountant) (stage.Dependencies, error) {
	video := ffmpeg.NewService(cfg.FFmpegBinary())
	clientOpts := []remote.ClientOption{remote.WithTimeout(cfg.RequestTimeout())}

	router, err := remote.NewRouter(cfg, logger, clientOpts...)
	if err != nil {
		return stage.Dependencies{}, fmt.Errorf("speech router: %w", err)
	}
	out := stage.Dependencies{
		Video:      video,
		Transcribe: remote.NewTranscriber(cfg.Services.TranscriptionURL, cfg.Services.TranslationURL, clientOpts...),
		Speech:     router,
		Audio:      video,
		Assembly:   video,
		Cost:       accountant,
	}
	if strings.TrimSpace(cfg.Services.QualityURL) != "" {
		out.Quality = remote.NewQualityGate(cfg.Services.QualityURL, clientOpts...)
	}
	return out, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	tools := deps.MediaTools(cfg.FFmpegBinary())
	providers := make([]string, 0, len(cfg.Services.Providers))
	for _, p := range cfg.Services.Providers {
		providers = append(providers, p.ID)
	}
	logger.Info("dependency snapshot",
		logging.EventType("dependency_snapshot"),
		logging.Bool("ffmpeg_available", tools[0].Available),
		logging.String("ffmpeg_binary", tools[0].Command),
		logging.Bool("ffprobe_available", tools[1].Available),
		logging.String("ffprobe_binary", tools[1].Command),
		logging.Bool("transcription_configured", strings.TrimSpace(cfg.Services.TranscriptionURL) != ""),
		logging.Bool("quality_gate_configured", strings.TrimSpace(cfg.Services.QualityURL) != ""),
		logging.Bool("router_configured", strings.TrimSpace(cfg.Services.RouterURL) != ""),
		logging.String("providers", strings.Join(providers, ",")),
		logging.Int("max_concurrent_jobs", cfg.Pipeline.MaxConcurrentJobs),
	)
}
