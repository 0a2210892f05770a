package config

import (
	"fmt"
	"strings"

	"dubbing/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	c.normalizeServices()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ArchivePath, err = expandPath(c.Paths.ArchivePath); err != nil {
		return fmt.Errorf("paths.archive_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizePipeline() error {
	lang := strings.TrimSpace(c.Pipeline.TargetLanguage)
	if lang == "" {
		lang = defaultTargetLanguage
	}
	canonical, err := language.Canonical(lang)
	if err != nil {
		return fmt.Errorf("pipeline.target_language: %w", err)
	}
	c.Pipeline.TargetLanguage = canonical

	if c.Pipeline.StageWeights == nil {
		c.Pipeline.StageWeights = make(map[string]int, len(stageWeightKeys))
	}
	normalized := make(map[string]int, len(stageWeightKeys))
	for key, value := range c.Pipeline.StageWeights {
		normalized[strings.ToLower(strings.TrimSpace(key))] = value
	}
	for _, key := range stageWeightKeys {
		if _, ok := normalized[key]; !ok {
			normalized[key] = 1
		}
	}
	c.Pipeline.StageWeights = normalized
	return nil
}

func (c *Config) normalizeServices() {
	c.Services.TranscriptionURL = strings.TrimRight(strings.TrimSpace(c.Services.TranscriptionURL), "/")
	c.Services.TranslationURL = strings.TrimRight(strings.TrimSpace(c.Services.TranslationURL), "/")
	c.Services.QualityURL = strings.TrimRight(strings.TrimSpace(c.Services.QualityURL), "/")
	c.Services.RouterURL = strings.TrimRight(strings.TrimSpace(c.Services.RouterURL), "/")
	if c.Services.TranslationURL == "" {
		c.Services.TranslationURL = c.Services.TranscriptionURL
	}
	if c.Services.RequestTimeoutSeconds <= 0 {
		c.Services.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	for i := range c.Services.Providers {
		p := &c.Services.Providers[i]
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		p.URL = strings.TrimRight(strings.TrimSpace(p.URL), "/")
		p.Fallback = strings.ToLower(strings.TrimSpace(p.Fallback))
		p.APIKey = strings.TrimSpace(p.APIKey)
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
