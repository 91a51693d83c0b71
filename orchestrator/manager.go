package orchestrator

// The orchestrator package owns the lifecycle of test requests: it queues
// request files, processes them one at a time and hands the results to the
// reporter and archiver.

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/perfgo/texforge/classify"
	"github.com/perfgo/texforge/cli/pandoc"
	"github.com/perfgo/texforge/cli/render"
	"github.com/perfgo/texforge/cli/workdir"
	"github.com/perfgo/texforge/config"
	"github.com/perfgo/texforge/model"
	"github.com/perfgo/texforge/report"
	"github.com/perfgo/texforge/request"
)

// Stager prepares isolated working directories.
type Stager interface {
	Stage(templatePath, testName string) (*workdir.Staged, error)
}

// Renderer executes a composed invocation.
type Renderer interface {
	Run(ctx context.Context, inv pandoc.Invocation, workDir, debugOutput string) render.Outcome
}

// Reporter persists run reports and debug artifacts.
type Reporter interface {
	Write(req *model.Request, rep *model.RunReport) (string, error)
	CopyArtifact(src string) (string, error)
}

// Deps are the collaborators of a Manager. Nil fields are built from the
// configuration.
type Deps struct {
	Stager     Stager
	Renderer   Renderer
	Classifier *classify.Classifier
	Reporter   Reporter
	AutoFixer  AutoFixer
	Archive    func(path, processedDir string) (string, error)
	Now        func() time.Time
}

type job struct {
	path     string
	attempt  int
	reported bool
}

// Manager processes request files strictly one at a time in arrival order.
type Manager struct {
	logger      zerolog.Logger
	layout      config.Layout
	composer    pandoc.Settings
	maxAttempts int
	deps        Deps

	queue chan job

	mu      sync.Mutex
	pending map[string]struct{}

	// held for the whole of Process
	inflight sync.Mutex
}

// New creates a Manager for cfg.
func New(logger zerolog.Logger, cfg *config.Config, deps Deps) *Manager {
	layout := cfg.Layout()

	if deps.Stager == nil {
		deps.Stager = workdir.New(logger, layout.Templates, cfg.Staging.BaseDir, cfg.Staging.StyleExtensions)
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New(logger, render.Options{
			DebugTimeout: cfg.Renderer.DebugTimeout,
			FinalTimeout: cfg.Renderer.FinalTimeout,
			TemplatesDir: layout.Templates,
		})
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New()
	}
	if deps.Reporter == nil {
		deps.Reporter = report.NewReporter(logger, layout.Results, layout.Status)
	}
	if deps.AutoFixer == nil {
		deps.AutoFixer = NoopAutoFixer{}
	}
	if deps.Archive == nil {
		deps.Archive = report.Archive
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	queueSize := cfg.Watch.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	maxAttempts := cfg.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Manager{
		logger: logger,
		layout: layout,
		composer: pandoc.Settings{
			Binary:       cfg.Renderer.Binary,
			Engine:       cfg.Renderer.Engine,
			FiltersDir:   layout.Filters,
			ResourceRoot: layout.Root,
			Defaults:     pandoc.DefaultMetadata(),
		},
		maxAttempts: maxAttempts,
		deps:        deps,
		queue:       make(chan job, queueSize),
		pending:     make(map[string]struct{}),
	}
}

// Submit queues a request file. A path that is already queued or being
// processed is ignored. Submit blocks while the queue is full.
func (m *Manager) Submit(ctx context.Context, path string) error {
	path = filepath.Clean(path)

	m.mu.Lock()
	if _, ok := m.pending[path]; ok {
		m.mu.Unlock()
		m.logger.Debug().Str("path", path).Msg("Request already queued, ignoring")
		return nil
	}
	m.pending[path] = struct{}{}
	m.mu.Unlock()

	select {
	case m.queue <- job{path: path, attempt: 1}:
		m.logger.Info().
			Str("request", filepath.Base(path)).
			Int("queued", len(m.queue)).
			Msg("Test request queued")
		return nil
	case <-ctx.Done():
		m.release(path)
		return fmt.Errorf("failed to queue %s: %w", filepath.Base(path), ctx.Err())
	}
}

// Pending returns the number of requests queued or in flight.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Run consumes the queue until ctx is cancelled (returning nil) or a
// request file is rejected as fatal (returning that error).
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-m.queue:
			if err := m.handle(ctx, j); err != nil {
				return err
			}
		}
	}
}

// Process handles one request file end to end: parse, execute every test,
// write the report and archive the file.
func (m *Manager) Process(ctx context.Context, path string) error {
	_, err := m.process(ctx, job{path: filepath.Clean(path), attempt: 1})
	return err
}

// handle processes a queued job and decides whether it is retried.
// Only fatal errors are returned.
func (m *Manager) handle(ctx context.Context, j job) error {
	reported, err := m.process(ctx, j)
	switch {
	case err == nil:
		m.release(j.path)
		return nil
	case request.IsFatal(err):
		m.release(j.path)
		return err
	case ctx.Err() != nil:
		// Left in place; picked up by the startup scan next time
		m.release(j.path)
		return nil
	}

	logger := m.logger.With().Str("request", filepath.Base(j.path)).Int("attempt", j.attempt).Logger()
	if j.attempt >= m.maxAttempts {
		logger.Error().Err(err).Msg("Giving up on request, leaving file in place")
		m.release(j.path)
		return nil
	}

	next := job{path: j.path, attempt: j.attempt + 1, reported: j.reported || reported}
	select {
	case m.queue <- next:
		logger.Warn().Err(err).Msg("Request will be retried")
	default:
		logger.Error().Err(err).Msg("Queue full, cannot retry request; leaving file in place")
		m.release(j.path)
	}
	return nil
}

// process runs one attempt. reported is true once the report is durable.
func (m *Manager) process(ctx context.Context, j job) (reported bool, err error) {
	m.inflight.Lock()
	defer m.inflight.Unlock()

	logger := m.logger.With().Str("request", filepath.Base(j.path)).Logger()

	if !j.reported {
		req, err := request.Load(j.path, m.deps.Now())
		if err != nil {
			logger.Error().Err(err).Str("expected_format", request.ExpectedFormat).Msg("Rejected test request")
			return false, err
		}

		logger.Info().
			Str("request_id", req.ID).
			Str("template", req.Template).
			Int("tests", len(req.Tests)).
			Msg("Processing test request")

		rep := m.Execute(ctx, req)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		path, err := m.deps.Reporter.Write(req, rep)
		if path == "" {
			return false, fmt.Errorf("failed to write report: %w", err)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Report written, status file failed")
		}
	}

	dest, err := m.deps.Archive(j.path, m.layout.Processed)
	if err != nil {
		return true, err
	}

	logger.Info().Str("archived", dest).Msg("Test request completed")
	return true, nil
}

func (m *Manager) release(path string) {
	m.mu.Lock()
	delete(m.pending, path)
	m.mu.Unlock()
}
