package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateBreaker(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxConcurrentJobs < 1 {
		return errors.New("pipeline.max_concurrent_jobs must be at least 1")
	}
	if c.Pipeline.RetryAttempts < 1 {
		return errors.New("pipeline.retry_attempts must be at least 1")
	}
	if c.Pipeline.JobTimeoutSeconds <= 0 {
		return errors.New("pipeline.job_timeout_seconds must be positive")
	}
	if c.Pipeline.SynthesisConcurrency < 1 {
		return errors.New("pipeline.synthesis_concurrency must be at least 1")
	}
	if c.Pipeline.ShutdownGraceSeconds < 0 {
		return errors.New("pipeline.shutdown_grace_seconds must be zero or positive")
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		return errors.New("paths.temp_dir must be set")
	}
	return ensurePositiveMap("pipeline.stage_weights", c.Pipeline.StageWeights)
}

func (c *Config) validateRetry() error {
	if c.Retry.BaseDelayMS <= 0 {
		return errors.New("retry.base_delay_ms must be positive")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be greater than or equal to retry.base_delay_ms")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("retry.jitter must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if c.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.CooldownSeconds <= 0 {
		return errors.New("breaker.cooldown_seconds must be positive")
	}
	return nil
}

func (c *Config) validateHealth() error {
	if c.Health.MaxFailureRate < 0 || c.Health.MaxFailureRate > 1 {
		return errors.New("health.max_failure_rate must be between 0 and 1")
	}
	if c.Health.MinSamples < 0 {
		return errors.New("health.min_samples must be zero or positive")
	}
	return nil
}

func (c *Config) validateProviders() error {
	seen := make(map[string]struct{}, len(c.Services.Providers))
	for i, p := range c.Services.Providers {
		if p.ID == "" {
			return fmt.Errorf("services.providers[%d].id must be set", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("services.providers: duplicate id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.PricePerChar < 0 {
			return fmt.Errorf("services.providers[%d].price_per_char must be zero or positive", i)
		}
	}
	for _, p := range c.Services.Providers {
		if p.Fallback == "" {
			continue
		}
		if p.Fallback == p.ID {
			return fmt.Errorf("services.providers: %q cannot fall back to itself", p.ID)
		}
		if _, ok := seen[p.Fallback]; !ok {
			return fmt.Errorf("services.providers: %q falls back to unknown provider %q", p.ID, p.Fallback)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(field string, values map[string]int) error {
	for key, value := range values {
		if value < 0 {
			return fmt.Errorf("%s.%s must be zero or positive", field, key)
		}
	}
	total := 0
	for _, value := range values {
		total += value
	}
	if total == 0 {
		return fmt.Errorf("%s must contain at least one positive weight", field)
	}
	return nil
}
