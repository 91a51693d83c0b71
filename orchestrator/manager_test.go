package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/perfgo/texforge/cli/pandoc"
	"github.com/perfgo/texforge/cli/render"
	"github.com/perfgo/texforge/config"
	"github.com/perfgo/texforge/model"
	"github.com/perfgo/texforge/report"
	"github.com/perfgo/texforge/request"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

const tightlistStderr = "! Undefined control sequence. l.42 \\tightlist\n"

// fakeRenderer stands in for the renderer process.
type fakeRenderer struct {
	mu       sync.Mutex
	calls    []pandoc.Invocation
	workDirs []string
	running  int
	maxSeen  int
	delay    time.Duration
	render   func(inv pandoc.Invocation, workDir, debugOutput string) render.Outcome
}

func (f *fakeRenderer) Run(ctx context.Context, inv pandoc.Invocation, workDir, debugOutput string) render.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.workDirs = append(f.workDirs, workDir)
	f.running++
	f.maxSeen = max(f.maxSeen, f.running)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.render != nil {
		return f.render(inv, workDir, debugOutput)
	}
	return succeed(inv, workDir, debugOutput)
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func succeed(inv pandoc.Invocation, _, debugOutput string) render.Outcome {
	if err := os.WriteFile(debugOutput, []byte(`\begin{document}`), 0644); err != nil {
		return render.Outcome{Err: err, Diagnostic: err.Error()}
	}
	if err := os.WriteFile(inv.Output, []byte("%PDF-1.5"), 0644); err != nil {
		return render.Outcome{Err: err, Diagnostic: err.Error()}
	}
	return render.Outcome{DebugAvailable: true, DebugOutput: debugOutput}
}

func failTightlist(pandoc.Invocation, string, string) render.Outcome {
	return render.Outcome{
		DebugError: "debug pass failed",
		Err:        errors.New("renderer failed with exit code 43"),
		Diagnostic: tightlistStderr,
	}
}

type testEnv struct {
	cfg      *config.Config
	layout   config.Layout
	stageDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Root = t.TempDir()
	cfg.Staging.BaseDir = t.TempDir()
	cfg.Retry.MaxAttempts = 3

	layout := cfg.Layout()
	require.NoError(t, layout.Ensure())
	require.NoError(t, os.WriteFile(filepath.Join(layout.Templates, "report.latex"), []byte(`$body$`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(layout.Templates, "brand.sty"), []byte(`\ProvidesPackage{brand}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(layout.Documents, "minimal.md"), []byte("# Hello"), 0644))

	return &testEnv{cfg: cfg, layout: layout, stageDir: cfg.Staging.BaseDir}
}

func (e *testEnv) writeRequest(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.layout.Requests, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func (e *testEnv) readReport(t *testing.T, id string) (model.RunReport, map[string]any) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.layout.Results, id+"-result.json"))
	require.NoError(t, err)

	var rep model.RunReport
	require.NoError(t, json.Unmarshal(data, &rep))
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	return rep, raw
}

func (e *testEnv) assertNoWorkDirs(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.stageDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "working directories left behind")
}

func (e *testEnv) manager(deps Deps) *Manager {
	if deps.Now == nil {
		deps.Now = func() time.Time { return fixedNow }
	}
	return New(zerolog.Nop(), e.cfg, deps)
}

func TestProcess_Success(t *testing.T) {
	env := newTestEnv(t)
	renderer := &fakeRenderer{}
	m := env.manager(Deps{Renderer: renderer})

	path := env.writeRequest(t, "smoke.json", `{"template": "report.latex", "tests": [{"name": "basic", "input": "minimal.md"}]}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "smoke")
	assert.Equal(t, "smoke", rep.RequestID)
	assert.Equal(t, model.RunStatusCompleted, rep.Status)
	assert.Equal(t, model.OverallSuccess, rep.OverallResult)
	assert.Equal(t, "2025-03-14T15:09:26Z", rep.Timestamp)
	assert.Equal(t, model.Performance{TotalDurationMS: 0, TestsRun: 1, Failures: 0}, rep.Performance)

	require.Len(t, rep.TestResults, 1)
	res := rep.TestResults[0]
	assert.Equal(t, "basic", res.Name)
	assert.Equal(t, model.TestStatusPass, res.Status)
	assert.GreaterOrEqual(t, res.DurationMS, int64(0))
	assert.Regexp(t, `^output-pdfs/basic-1741964966000-[0-9a-f]{8}\.pdf$`, res.PDFPath)
	require.NotNil(t, res.PDFSizeBytes)
	assert.Equal(t, int64(len("%PDF-1.5")), *res.PDFSizeBytes)
	assert.True(t, res.TexAvailable)
	assert.Equal(t, strings.TrimSuffix(filepath.Base(res.PDFPath), ".pdf")+".tex", res.TexPath)
	assert.FileExists(t, filepath.Join(env.layout.Results, res.TexPath))
	assert.Nil(t, res.ErrorAnalysis)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(env.layout.Processed, "smoke.json"))
	env.assertNoWorkDirs(t)
}

func TestProcess_ComposesFromStagedTemplate(t *testing.T) {
	env := newTestEnv(t)
	renderer := &fakeRenderer{
		render: func(inv pandoc.Invocation, workDir, debugOutput string) render.Outcome {
			// The staged copy and style files exist while the renderer runs
			if _, err := os.Stat(filepath.Join(workDir, "report.latex")); err != nil {
				return render.Outcome{Err: err, Diagnostic: err.Error()}
			}
			if _, err := os.Stat(filepath.Join(workDir, "brand.sty")); err != nil {
				return render.Outcome{Err: err, Diagnostic: err.Error()}
			}
			return succeed(inv, workDir, debugOutput)
		},
	}
	m := env.manager(Deps{Renderer: renderer})

	path := env.writeRequest(t, "merge.json", `{
		"template": "report.latex",
		"metadata": {"title": "B"},
		"tests": [{
			"name": "precedence",
			"input": "minimal.md",
			"metadata": {"title": "C"},
			"variables": {"title": "D"}
		}]
	}`)
	require.NoError(t, m.Process(context.Background(), path))

	require.Equal(t, 1, renderer.callCount())
	inv := renderer.calls[0]
	workDir := renderer.workDirs[0]

	assert.Equal(t, "pandoc", inv.Binary)
	assert.Equal(t, filepath.Join(env.layout.Documents, "minimal.md"), inv.Args[0])
	assert.Equal(t, []string{"--template", filepath.Join(workDir, "report.latex")}, inv.Args[1:3])
	assert.Contains(t, inv.Args, "--resource-path="+env.layout.Root+":"+workDir)
	assert.Contains(t, inv.Args, "title=D")
	assert.NotContains(t, inv.Args, "title=B")
	assert.NotContains(t, inv.Args, "title=C")

	rep, _ := env.readReport(t, "merge")
	assert.Equal(t, model.OverallSuccess, rep.OverallResult)
	assert.NoDirExists(t, workDir)
}

func TestProcess_TightlistFailure(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{render: failTightlist}})

	path := env.writeRequest(t, "tight.json", `{
		"template": "report.latex",
		"options": {"auto_fix_attempt": true},
		"notification": {"status_file": "tight.status"},
		"tests": [{"name": "lists", "input": "minimal.md"}]
	}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "tight")
	assert.Equal(t, model.RunStatusCompleted, rep.Status)
	assert.Equal(t, model.OverallPartialFailure, rep.OverallResult)
	assert.Equal(t, 1, rep.Performance.Failures)

	require.Len(t, rep.TestResults, 1)
	res := rep.TestResults[0]
	assert.Equal(t, model.TestStatusFail, res.Status)
	assert.Equal(t, tightlistStderr, res.Error)
	assert.False(t, res.TexAvailable)
	assert.Equal(t, "debug pass failed", res.TexError)
	assert.Empty(t, res.PDFPath)

	require.NotNil(t, res.ErrorAnalysis)
	assert.True(t, res.ErrorAnalysis.Recognized)
	assert.True(t, res.ErrorAnalysis.AutoFixable)
	assert.Equal(t, 0.85, res.ErrorAnalysis.Confidence)

	assert.True(t, res.AutoFixAttempted)
	require.NotNil(t, res.AutoFixResult)
	assert.False(t, res.AutoFixResult.Success)
	assert.Equal(t, "auto-fix engine not yet implemented", res.AutoFixResult.Reason)

	status, err := os.ReadFile(filepath.Join(env.layout.Status, "tight.status"))
	require.NoError(t, err)
	assert.Equal(t, "Test completed: partial_failure\nTimestamp: 2025-03-14T15:09:26Z", string(status))
	env.assertNoWorkDirs(t)
}

type fixingAutoFixer struct{}

func (fixingAutoFixer) AttemptAutoFix(context.Context, string, string, model.TestCase) model.FixResult {
	return model.FixResult{Success: true, Attempted: true}
}

func TestProcess_AutoFixSuccessMarksFixed(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{render: failTightlist}, AutoFixer: fixingAutoFixer{}})

	path := env.writeRequest(t, "fix.json", `{"template": "report.latex", "options": {"auto_fix_attempt": true}, "tests": [{"name": "a", "input": "minimal.md"}]}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "fix")
	require.Len(t, rep.TestResults, 1)
	assert.Equal(t, model.TestStatusFixed, rep.TestResults[0].Status)
	assert.Equal(t, model.OverallSuccess, rep.OverallResult)
}

func TestProcess_NoAutoFixWithoutOption(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{render: failTightlist}, AutoFixer: fixingAutoFixer{}})

	path := env.writeRequest(t, "nofix.json", `{"template": "report.latex", "tests": [{"name": "a", "input": "minimal.md"}]}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "nofix")
	res := rep.TestResults[0]
	assert.Equal(t, model.TestStatusFail, res.Status)
	assert.False(t, res.AutoFixAttempted)
	assert.Nil(t, res.AutoFixResult)
}

func TestProcess_MissingTemplate(t *testing.T) {
	env := newTestEnv(t)
	renderer := &fakeRenderer{}
	m := env.manager(Deps{Renderer: renderer})

	path := env.writeRequest(t, "nt.json", `{"template": "absent.latex", "tests": [{"name": "a", "input": "minimal.md"}]}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, raw := env.readReport(t, "nt")
	assert.Equal(t, model.RunStatusFailed, rep.Status)
	assert.Equal(t, model.OverallError, rep.OverallResult)
	assert.Contains(t, rep.Error, "absent.latex")
	assert.Equal(t, []any{}, raw["test_results"])
	assert.Zero(t, renderer.callCount())

	// Reports with an error result are archived like any other
	assert.FileExists(t, filepath.Join(env.layout.Processed, "nt.json"))
}

func TestProcess_MissingTemplateFieldIsFatal(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{}})

	path := env.writeRequest(t, "bad.json", `{"tests": [{"name": "a", "input": "minimal.md"}]}`)
	err := m.Process(context.Background(), path)
	require.Error(t, err)
	assert.True(t, request.IsFatal(err))
	assert.Contains(t, err.Error(), "missing template field")

	assert.NoFileExists(t, filepath.Join(env.layout.Results, "bad-result.json"))
	assert.FileExists(t, path)
}

func TestProcess_TestLevelErrors(t *testing.T) {
	env := newTestEnv(t)
	renderer := &fakeRenderer{}
	m := env.manager(Deps{Renderer: renderer})

	path := env.writeRequest(t, "mixed.json", `{
		"template": "report.latex",
		"tests": [
			{"name": "missing", "input": "nope.md"},
			{"name": "ok", "input": "minimal.md"}
		]
	}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "mixed")
	require.Len(t, rep.TestResults, 2)
	assert.Equal(t, "missing", rep.TestResults[0].Name)
	assert.Equal(t, model.TestStatusError, rep.TestResults[0].Status)
	assert.Equal(t, "Test input file not found: nope.md", rep.TestResults[0].Error)
	assert.Equal(t, "ok", rep.TestResults[1].Name)
	assert.Equal(t, model.TestStatusPass, rep.TestResults[1].Status)

	assert.Equal(t, model.OverallPartialFailure, rep.OverallResult)
	assert.Equal(t, model.Performance{TestsRun: 2, Failures: 1}, rep.Performance)
	assert.Equal(t, 1, renderer.callCount())
}

func TestProcess_DefaultTest(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{}})

	path := env.writeRequest(t, "empty.json", `{"template": "report.latex", "tests": []}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "empty")
	require.Len(t, rep.TestResults, 1)
	assert.Equal(t, "default", rep.TestResults[0].Name)
	assert.Equal(t, model.TestStatusPass, rep.TestResults[0].Status)
}

func TestProcess_CollidingTestNamesKeepSeparateOutputs(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{}})

	path := env.writeRequest(t, "dupes.json", `{"template": "report.latex", "tests": [
		{"name": "a b", "input": "minimal.md"},
		{"name": "a-b", "input": "minimal.md"},
		{"name": "a-b", "input": "minimal.md"}
	]}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "dupes")
	require.Len(t, rep.TestResults, 3)

	pdfs := map[string]bool{}
	texs := map[string]bool{}
	for _, res := range rep.TestResults {
		require.Equal(t, model.TestStatusPass, res.Status)
		assert.True(t, strings.HasPrefix(filepath.Base(res.PDFPath), "a-b-1741964966000-"))
		assert.FileExists(t, filepath.Join(env.layout.Results, res.TexPath))
		pdfs[res.PDFPath] = true
		texs[res.TexPath] = true
	}
	assert.Len(t, pdfs, 3)
	assert.Len(t, texs, 3)
}

func TestProcess_RendererPanicStillCleansUp(t *testing.T) {
	env := newTestEnv(t)
	renderer := &fakeRenderer{
		render: func(pandoc.Invocation, string, string) render.Outcome {
			panic("boom")
		},
	}
	m := env.manager(Deps{Renderer: renderer})

	path := env.writeRequest(t, "panic.json", `{"template": "report.latex", "tests": [{"name": "a", "input": "minimal.md"}, {"name": "b", "input": "minimal.md"}]}`)
	require.NoError(t, m.Process(context.Background(), path))

	rep, _ := env.readReport(t, "panic")
	require.Len(t, rep.TestResults, 2)
	for _, res := range rep.TestResults {
		assert.Equal(t, model.TestStatusError, res.Status)
		assert.Contains(t, res.Error, "boom")
		assert.GreaterOrEqual(t, res.DurationMS, int64(0))
	}
	env.assertNoWorkDirs(t)
}

func TestRun_SingleFlightFIFO(t *testing.T) {
	env := newTestEnv(t)
	renderer := &fakeRenderer{delay: 20 * time.Millisecond}
	m := env.manager(Deps{Renderer: renderer})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	names := []string{"r1", "r2", "r3", "r4"}
	for _, name := range names {
		path := env.writeRequest(t, name+".json", `{"template": "report.latex", "tests": [{"name": "`+name+`", "input": "minimal.md"}]}`)
		require.NoError(t, m.Submit(ctx, path))
	}

	require.Eventually(t, func() bool { return m.Pending() == 0 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	assert.Equal(t, 1, renderer.maxSeen)

	var order []string
	for _, inv := range renderer.calls {
		order = append(order, filepath.Base(inv.Output))
	}
	require.Len(t, order, len(names))
	for i, name := range names {
		assert.Regexp(t, `^`+name+`-1741964966000-[0-9a-f]{8}\.pdf$`, order[i])
	}
	for _, name := range names {
		assert.FileExists(t, filepath.Join(env.layout.Processed, name+".json"))
	}
}

func TestSubmit_IgnoresDuplicates(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{}})

	path := env.writeRequest(t, "dup.json", `{"template": "report.latex", "tests": []}`)
	require.NoError(t, m.Submit(context.Background(), path))
	require.NoError(t, m.Submit(context.Background(), path))
	assert.Equal(t, 1, m.Pending())
	assert.Len(t, m.queue, 1)
}

func TestSubmit_FullQueueHonoursContext(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Watch.QueueSize = 1
	m := env.manager(Deps{Renderer: &fakeRenderer{}})

	require.NoError(t, m.Submit(context.Background(), filepath.Join(env.layout.Requests, "a.json")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Submit(ctx, filepath.Join(env.layout.Requests, "b.json"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.Pending())
}

func TestRun_StopsOnFatalRequest(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{}})

	path := env.writeRequest(t, "broken.json", `{"template": `)
	require.NoError(t, m.Submit(context.Background(), path))

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.True(t, request.IsFatal(err))
	assert.FileExists(t, path)
}

func TestRun_ReturnsNilOnCancel(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{Renderer: &fakeRenderer{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Run(ctx))
}

type countingReporter struct {
	*report.Reporter

	mu     sync.Mutex
	writes int
}

func (c *countingReporter) Write(req *model.Request, rep *model.RunReport) (string, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Reporter.Write(req, rep)
}

func TestRun_ArchiveRetryIsBounded(t *testing.T) {
	env := newTestEnv(t)
	renderer := &fakeRenderer{}
	reporter := &countingReporter{Reporter: report.NewReporter(zerolog.Nop(), env.layout.Results, env.layout.Status)}

	var mu sync.Mutex
	archiveCalls := 0
	archive := func(string, string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		archiveCalls++
		return "", errors.New("disk on fire")
	}

	m := env.manager(Deps{Renderer: renderer, Reporter: reporter, Archive: archive})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	path := env.writeRequest(t, "stuck.json", `{"template": "report.latex", "tests": [{"name": "a", "input": "minimal.md"}]}`)
	require.NoError(t, m.Submit(ctx, path))

	require.Eventually(t, func() bool { return m.Pending() == 0 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, 3, archiveCalls)
	mu.Unlock()

	// The report is written once, only archiving is retried
	assert.Equal(t, 1, reporter.writes)
	assert.Equal(t, 1, renderer.callCount())
	assert.FileExists(t, path)
}

func TestRun_ReportRetryRerunsRequest(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Retry.MaxAttempts = 2
	renderer := &fakeRenderer{}

	// Results path occupied by a file: every report write fails
	require.NoError(t, os.RemoveAll(env.layout.Results))
	require.NoError(t, os.WriteFile(env.layout.Results, []byte("not a dir"), 0644))

	m := env.manager(Deps{Renderer: renderer})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	path := env.writeRequest(t, "nowrite.json", `{"template": "report.latex", "tests": [{"name": "a", "input": "minimal.md"}]}`)
	require.NoError(t, m.Submit(ctx, path))

	require.Eventually(t, func() bool { return m.Pending() == 0 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 2, renderer.callCount())
	assert.FileExists(t, path)
}

func TestNoopAutoFixer(t *testing.T) {
	fix := NoopAutoFixer{}.AttemptAutoFix(context.Background(), "t.latex", "err", model.TestCase{})
	assert.Equal(t, model.FixResult{Success: false, Attempted: true, Reason: "auto-fix engine not yet implemented"}, fix)
}

func TestRelativeToRoot(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(Deps{})

	assert.Equal(t, "output-pdfs/x.pdf", m.relativeToRoot(filepath.Join(env.layout.Root, "output-pdfs", "x.pdf")))
	assert.Equal(t, "/elsewhere/x.pdf", m.relativeToRoot("/elsewhere/x.pdf"))
}
