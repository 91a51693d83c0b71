package config

// The config package holds the texforge configuration. Values are layered:
// built-in defaults, then an optional YAML file, then command-line flags
// (applied by the cli package).

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete texforge configuration.
type Config struct {
	// Shared workspace root; relative paths below are resolved against it
	Root       string           `yaml:"root"`
	Paths      PathsConfig      `yaml:"paths"`
	Renderer   RendererConfig   `yaml:"renderer"`
	Watch      WatchConfig      `yaml:"watch"`
	Staging    StagingConfig    `yaml:"staging"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Retry      RetryConfig      `yaml:"retry"`
}

// PathsConfig names the directories of the shared workspace.
type PathsConfig struct {
	Requests  string `yaml:"requests"`
	Processed string `yaml:"processed"` // relative to Requests
	Results   string `yaml:"results"`
	Templates string `yaml:"templates"`
	Documents string `yaml:"documents"`
	Output    string `yaml:"output"`
	Status    string `yaml:"status"`
	Filters   string `yaml:"filters"`
}

// RendererConfig configures the external renderer invocation.
type RendererConfig struct {
	Binary       string        `yaml:"binary"`
	Engine       string        `yaml:"engine"`
	DebugTimeout time.Duration `yaml:"debug_timeout"`
	FinalTimeout time.Duration `yaml:"final_timeout"`
}

// WatchConfig configures the directory watcher and the request queue.
type WatchConfig struct {
	Stability       time.Duration `yaml:"stability"`
	TemplatePattern string        `yaml:"template_pattern"`
	QueueSize       int           `yaml:"queue_size"`
}

// StagingConfig configures per-test working directories.
type StagingConfig struct {
	BaseDir         string   `yaml:"base_dir"`
	StyleExtensions []string `yaml:"style_extensions"`
}

// ClassifierConfig configures additional classification rules.
type ClassifierConfig struct {
	RulesFile string `yaml:"rules_file"`
}

// RetryConfig bounds how often a request whose report or archive step
// failed is attempted again.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// Layout contains the resolved absolute directories of the shared workspace.
type Layout struct {
	Root      string
	Requests  string
	Processed string
	Results   string
	Templates string
	Documents string
	Output    string
	Status    string
	Filters   string
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults reads a config file (if path is non-empty) and applies
// default values to everything left unset.
func LoadWithDefaults(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Layout resolves the configured directories.
func (c *Config) Layout() Layout {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		root = filepath.Clean(c.Root)
	}
	resolve := func(base, p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(base, p)
	}

	requests := resolve(root, c.Paths.Requests)
	return Layout{
		Root:      root,
		Requests:  requests,
		Processed: resolve(requests, c.Paths.Processed),
		Results:   resolve(root, c.Paths.Results),
		Templates: resolve(root, c.Paths.Templates),
		Documents: resolve(root, c.Paths.Documents),
		Output:    resolve(root, c.Paths.Output),
		Status:    resolve(root, c.Paths.Status),
		Filters:   resolve(root, c.Paths.Filters),
	}
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Requests, l.Processed, l.Results, l.Templates, l.Documents, l.Output, l.Status} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
