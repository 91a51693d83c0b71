package render

// This file contains the two-pass renderer execution: a debug pass producing
// intermediate LaTeX and the authoritative final pass producing the PDF.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/perfgo/texforge/cli/pandoc"
)

const (
	// DefaultDebugTimeout bounds the debug pass.
	DefaultDebugTimeout = 5 * time.Minute
	// DefaultFinalTimeout bounds the final pass.
	DefaultFinalTimeout = 10 * time.Minute

	waitDelay = 2 * time.Second
)

// Options configures a Runner.
type Options struct {
	DebugTimeout time.Duration // Zero disables the timeout
	FinalTimeout time.Duration // Zero disables the timeout
	TemplatesDir string        // Appended to TEXINPUTS after the working directory
}

// Runner executes composed renderer invocations.
type Runner struct {
	logger zerolog.Logger
	opts   Options
}

// New creates a Runner.
func New(logger zerolog.Logger, opts Options) *Runner {
	return &Runner{logger: logger, opts: opts}
}

// Result is the outcome of a single renderer process.
type Result struct {
	Stderr   string
	Err      error
	TimedOut bool
	Duration time.Duration
}

// Diagnostic returns the text a failure is classified by: captured stderr,
// or the error message when the process wrote nothing.
func (r Result) Diagnostic() string {
	if r.Err == nil {
		return ""
	}
	if strings.TrimSpace(r.Stderr) != "" {
		return r.Stderr
	}
	return r.Err.Error()
}

// Outcome is the combined result of the debug and final passes.
type Outcome struct {
	DebugAvailable bool
	DebugOutput    string // Path of the intermediate .tex when available
	DebugError     string

	Err        error  // Final pass failure, nil on success
	Diagnostic string // Final pass diagnostic text
	TimedOut   bool
}

// Failed returns true if the final pass did not succeed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Run performs the debug pass writing debugOutput, then the final pass. A
// debug failure is recorded and never prevents the final pass.
func (r *Runner) Run(ctx context.Context, inv pandoc.Invocation, workDir, debugOutput string) Outcome {
	var out Outcome

	debug := r.Exec(ctx, inv.WithOutput(debugOutput).WithoutEngine(), workDir, r.opts.DebugTimeout)
	switch {
	case debug.Err != nil:
		out.DebugError = debug.Diagnostic()
		r.logger.Info().
			Str("error", firstLine(out.DebugError)).
			Msg("Debug pass failed")
	case !fileExists(debugOutput):
		out.DebugError = "renderer produced no intermediate output"
	default:
		out.DebugAvailable = true
		out.DebugOutput = debugOutput
	}

	final := r.Exec(ctx, inv, workDir, r.opts.FinalTimeout)
	out.Err = final.Err
	out.Diagnostic = final.Diagnostic()
	out.TimedOut = final.TimedOut
	return out
}

// Exec runs one invocation in workDir. The process group is killed when
// timeout expires or ctx is cancelled; a timeout is reported like a failed
// exit with a note appended to stderr.
func (r *Runner) Exec(ctx context.Context, inv pandoc.Invocation, workDir string, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Binary, inv.Argv()...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "TEXINPUTS="+texInputs(workDir, r.opts.TemplatesDir))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	r.logger.Debug().
		Str("command", inv.String()).
		Str("work_dir", workDir).
		Msg("Running renderer")

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}

	if stdoutBuf.Len() > 0 {
		r.logger.Debug().Str("stdout", stdoutBuf.String()).Msg("Renderer output")
	}

	if err == nil {
		return res
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.Err = fmt.Errorf("renderer timed out after %s", timeout)
		res.Stderr = appendLine(res.Stderr, res.Err.Error())
		return res
	}
	if ctx.Err() != nil {
		res.Err = fmt.Errorf("renderer cancelled: %w", ctx.Err())
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Err = fmt.Errorf("renderer failed with exit code %d", exitErr.ExitCode())
		return res
	}

	res.Err = fmt.Errorf("failed to start renderer: %w", err)
	return res
}

// texInputs builds the TEXINPUTS search path. The trailing separator keeps
// the default TeX search path.
func texInputs(workDir, templatesDir string) string {
	sep := string(filepath.ListSeparator)
	parts := []string{workDir}
	if templatesDir != "" {
		parts = append(parts, templatesDir)
	}
	return strings.Join(parts, sep) + sep
}

func appendLine(text, line string) string {
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + line
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
