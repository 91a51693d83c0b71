package config

import (
	"os"
	"time"
)

// Default configuration values.
const (
	DefaultRoot            = "/workspace/shared"
	DefaultRequestsDir     = "test-requests"
	DefaultProcessedDir    = "processed"
	DefaultResultsDir      = "test-results"
	DefaultTemplatesDir    = "templates"
	DefaultDocumentsDir    = "test-documents"
	DefaultOutputDir       = "output-pdfs"
	DefaultStatusDir       = "status"
	DefaultFiltersDir      = "filters"
	DefaultRendererBinary  = "pandoc"
	DefaultEngine          = "xelatex"
	DefaultDebugTimeout    = 5 * time.Minute
	DefaultFinalTimeout    = 10 * time.Minute
	DefaultStability       = time.Second
	DefaultTemplatePattern = "*.latex"
	DefaultQueueSize       = 64
	DefaultMaxAttempts     = 3
)

// DefaultStyleExtensions are the auxiliary resources copied next to the
// staged template.
var DefaultStyleExtensions = []string{".sty"}

// applyDefaults fills in default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	applyPathDefaults(&cfg.Paths)
	applyRendererDefaults(&cfg.Renderer)
	applyWatchDefaults(&cfg.Watch)

	if cfg.Staging.BaseDir == "" {
		cfg.Staging.BaseDir = os.TempDir()
	}
	if len(cfg.Staging.StyleExtensions) == 0 {
		cfg.Staging.StyleExtensions = append([]string(nil), DefaultStyleExtensions...)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
}

func applyPathDefaults(p *PathsConfig) {
	defaults := []struct {
		field *string
		value string
	}{
		{&p.Requests, DefaultRequestsDir},
		{&p.Processed, DefaultProcessedDir},
		{&p.Results, DefaultResultsDir},
		{&p.Templates, DefaultTemplatesDir},
		{&p.Documents, DefaultDocumentsDir},
		{&p.Output, DefaultOutputDir},
		{&p.Status, DefaultStatusDir},
		{&p.Filters, DefaultFiltersDir},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}
}

func applyRendererDefaults(r *RendererConfig) {
	if r.Binary == "" {
		r.Binary = DefaultRendererBinary
	}
	if r.Engine == "" {
		r.Engine = DefaultEngine
	}
	if r.DebugTimeout == 0 {
		r.DebugTimeout = DefaultDebugTimeout
	}
	if r.FinalTimeout == 0 {
		r.FinalTimeout = DefaultFinalTimeout
	}
}

func applyWatchDefaults(w *WatchConfig) {
	if w.Stability == 0 {
		w.Stability = DefaultStability
	}
	if w.TemplatePattern == "" {
		w.TemplatePattern = DefaultTemplatePattern
	}
	if w.QueueSize == 0 {
		w.QueueSize = DefaultQueueSize
	}
}
