package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks a configuration with defaults applied.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Renderer.Binary == "" {
		errs = append(errs, errors.New("renderer.binary must not be empty"))
	}
	if cfg.Renderer.DebugTimeout < 0 {
		errs = append(errs, fmt.Errorf("renderer.debug_timeout must be positive, got %s", cfg.Renderer.DebugTimeout))
	}
	if cfg.Renderer.FinalTimeout < 0 {
		errs = append(errs, fmt.Errorf("renderer.final_timeout must be positive, got %s", cfg.Renderer.FinalTimeout))
	}
	if cfg.Watch.Stability < 0 {
		errs = append(errs, fmt.Errorf("watch.stability must not be negative, got %s", cfg.Watch.Stability))
	}
	if _, err := filepath.Match(cfg.Watch.TemplatePattern, ""); err != nil {
		errs = append(errs, fmt.Errorf("watch.template_pattern %q: %w", cfg.Watch.TemplatePattern, err))
	}
	if cfg.Watch.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("watch.queue_size must be at least 1, got %d", cfg.Watch.QueueSize))
	}
	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts))
	}
	for _, ext := range cfg.Staging.StyleExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("staging.style_extensions entry %q must start with a dot", ext))
		}
	}

	return errors.Join(errs...)
}
