package orchestrator

// This file contains the execution of a parsed request: every test case is
// staged, rendered and classified in declared order.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/perfgo/texforge/cli/pandoc"
	"github.com/perfgo/texforge/cli/workdir"
	"github.com/perfgo/texforge/model"
)

// Execute runs every test case of req and returns the finished report.
// It never fails: problems end up in the report.
func (m *Manager) Execute(ctx context.Context, req *model.Request) (rep *model.RunReport) {
	start := m.deps.Now()
	rep = &model.RunReport{
		RequestID:   req.ID,
		Status:      model.RunStatusInProgress,
		Timestamp:   start.UTC().Format(time.RFC3339),
		Template:    req.Template,
		TestResults: []model.TestResult{},
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("request_id", req.ID).Msg("Test processing failed")
			m.failReport(rep, fmt.Sprint(r))
		}
		rep.Performance.TotalDurationMS = m.deps.Now().Sub(start).Milliseconds()
	}()

	templatePath := filepath.Join(m.layout.Templates, req.Template)
	if err := checkFile(templatePath); err != nil {
		m.logger.Error().Err(err).Str("template", req.Template).Msg("Template not available")
		m.failReport(rep, fmt.Sprintf("Template not found: %s", req.Template))
		return rep
	}

	for _, tc := range req.Tests {
		if ctx.Err() != nil {
			break
		}
		m.logger.Info().Str("test", tc.Name).Str("input", tc.Input).Msg("Running test")

		result := m.runTest(ctx, req, templatePath, tc)
		m.logger.Info().
			Str("test", tc.Name).
			Str("status", string(result.Status)).
			Int64("duration_ms", result.DurationMS).
			Msg("Test finished")

		rep.TestResults = append(rep.TestResults, result)
	}

	failures := 0
	for _, r := range rep.TestResults {
		if r.Status.Failed() {
			failures++
		}
	}

	rep.Status = model.RunStatusCompleted
	rep.OverallResult = model.OverallSuccess
	if failures > 0 {
		rep.OverallResult = model.OverallPartialFailure
	}
	rep.Performance.TestsRun = len(rep.TestResults)
	rep.Performance.Failures = failures

	m.logger.Info().
		Str("request_id", req.ID).
		Str("overall", string(rep.OverallResult)).
		Int("failures", failures).
		Msg("Overall result")

	return rep
}

func (m *Manager) failReport(rep *model.RunReport, msg string) {
	rep.Status = model.RunStatusFailed
	rep.OverallResult = model.OverallError
	rep.Error = msg
}

// runTest renders a single test case. The working directory is removed and
// the duration recorded on every path out of this function.
func (m *Manager) runTest(ctx context.Context, req *model.Request, templatePath string, tc model.TestCase) (res model.TestResult) {
	start := time.Now()
	res = model.TestResult{
		Name:   tc.Name,
		Status: model.TestStatusPending,
	}

	defer func() {
		if r := recover(); r != nil {
			res.Status = model.TestStatusError
			res.Error = fmt.Sprintf("internal error: %v", r)
		}
		res.DurationMS = time.Since(start).Milliseconds()
	}()

	input := filepath.Join(m.layout.Documents, tc.Input)
	if err := checkFile(input); err != nil {
		res.Status = model.TestStatusError
		res.Error = fmt.Sprintf("Test input file not found: %s", tc.Input)
		return res
	}

	staged, err := m.deps.Stager.Stage(templatePath, tc.Name)
	if err != nil {
		res.Status = model.TestStatusError
		res.Error = err.Error()
		return res
	}
	defer func() {
		if err := staged.Release(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to remove working directory")
		}
	}()

	outputName := fmt.Sprintf("%s-%d-%s", workdir.SanitizeName(tc.Name), m.deps.Now().UnixMilli(), staged.ID)
	pdfPath := filepath.Join(m.layout.Output, outputName+".pdf")
	texPath := filepath.Join(m.layout.Output, outputName+".tex")

	inv := pandoc.Compose(m.composer, pandoc.ComposeOptions{
		Input:           input,
		Output:          pdfPath,
		Template:        staged.TemplatePath,
		WorkDir:         staged.WorkDir,
		Test:            tc,
		RequestMetadata: req.Metadata,
	})
	m.logger.Debug().Str("command", inv.String()).Msg("Composed renderer command")

	outcome := m.deps.Renderer.Run(ctx, inv, staged.WorkDir, texPath)

	if outcome.DebugAvailable {
		// The report points at the copy even when copying failed
		if _, err := m.deps.Reporter.CopyArtifact(outcome.DebugOutput); err != nil {
			m.logger.Error().Err(err).Str("tex", outcome.DebugOutput).Msg("Failed to copy .tex file")
		}
		res.TexAvailable = true
		res.TexPath = filepath.Base(texPath)
	} else {
		res.TexError = outcome.DebugError
	}

	if !outcome.Failed() {
		res.Status = model.TestStatusPass
		res.PDFPath = m.relativeToRoot(pdfPath)
		if info, err := os.Stat(pdfPath); err == nil {
			size := info.Size()
			res.PDFSizeBytes = &size
		}
		return res
	}

	res.Status = model.TestStatusFail
	res.Error = outcome.Diagnostic
	if !res.TexAvailable && res.TexError == "" {
		res.TexError = "PDF generation failed before .tex could be generated"
	}

	diagnosis := m.deps.Classifier.Classify(outcome.Diagnostic)
	res.ErrorAnalysis = &diagnosis

	if req.Options.AutoFixAttempt {
		fix := m.deps.AutoFixer.AttemptAutoFix(ctx, templatePath, outcome.Diagnostic, tc)
		res.AutoFixAttempted = fix.Attempted
		res.AutoFixResult = &fix
		if fix.Success {
			res.Status = model.TestStatusFixed
		}
	}

	return res
}

// relativeToRoot returns path relative to the shared root, or path itself
// when it lies outside of it.
func (m *Manager) relativeToRoot(path string) string {
	rel, err := filepath.Rel(m.layout.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}
