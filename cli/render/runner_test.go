package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfgo/texforge/cli/pandoc"
)

// Scripts standing in for the renderer. Each writes its -o target unless it
// decides to fail.
const (
	scriptPrologue = `#!/bin/sh
out=""
engine=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
    --pdf-engine=*) engine="$1" ;;
  esac
  shift
done
`
	okScript = scriptPrologue + `printf 'rendered %s\n' "$engine" > "$out"
`
	finalFailScript = scriptPrologue + `if [ -n "$engine" ]; then
  printf '%s\n' '! Undefined control sequence.' 'l.42 \tightlist' >&2
  exit 43
fi
printf 'latex\n' > "$out"
`
	debugFailScript = scriptPrologue + `if [ -z "$engine" ]; then
  printf 'debug broke\n' >&2
  exit 1
fi
printf 'pdf\n' > "$out"
`
	silentFailScript = scriptPrologue + `exit 2
`
	sleepScript = scriptPrologue + `if [ -n "$engine" ]; then
  sleep 30
fi
printf 'latex\n' > "$out"
`
	envScript = scriptPrologue + `printf '%s\n%s\n' "$TEXINPUTS" "$(pwd -P)" > "$out"
`
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-pandoc")
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func testInvocation(binary, output string) pandoc.Invocation {
	return pandoc.Invocation{
		Binary: binary,
		Args:   []string{"in.md", "--template", "t.latex", "--pdf-engine=xelatex", "--listings"},
		Output: output,
	}
}

func TestRun_Success(t *testing.T) {
	out := t.TempDir()
	runner := New(zerolog.Nop(), Options{DebugTimeout: 10 * time.Second, FinalTimeout: 10 * time.Second})

	pdf := filepath.Join(out, "x.pdf")
	tex := filepath.Join(out, "x.tex")
	outcome := runner.Run(context.Background(), testInvocation(writeScript(t, okScript), pdf), t.TempDir(), tex)

	assert.False(t, outcome.Failed())
	assert.Empty(t, outcome.Diagnostic)
	assert.True(t, outcome.DebugAvailable)
	assert.Equal(t, tex, outcome.DebugOutput)
	assert.Empty(t, outcome.DebugError)

	// The debug pass runs without an engine, the final pass with one
	texData, err := os.ReadFile(tex)
	require.NoError(t, err)
	assert.Equal(t, "rendered \n", string(texData))
	pdfData, err := os.ReadFile(pdf)
	require.NoError(t, err)
	assert.Equal(t, "rendered --pdf-engine=xelatex\n", string(pdfData))
}

func TestRun_FinalFailure(t *testing.T) {
	out := t.TempDir()
	runner := New(zerolog.Nop(), Options{})

	outcome := runner.Run(context.Background(),
		testInvocation(writeScript(t, finalFailScript), filepath.Join(out, "x.pdf")),
		t.TempDir(), filepath.Join(out, "x.tex"))

	require.True(t, outcome.Failed())
	assert.Contains(t, outcome.Err.Error(), "exit code 43")
	assert.Contains(t, outcome.Diagnostic, `\tightlist`)
	assert.Contains(t, outcome.Diagnostic, "Undefined control sequence")
	assert.False(t, outcome.TimedOut)
	assert.True(t, outcome.DebugAvailable)
}

func TestRun_DebugFailureDoesNotAbort(t *testing.T) {
	out := t.TempDir()
	runner := New(zerolog.Nop(), Options{})

	pdf := filepath.Join(out, "x.pdf")
	outcome := runner.Run(context.Background(),
		testInvocation(writeScript(t, debugFailScript), pdf),
		t.TempDir(), filepath.Join(out, "x.tex"))

	assert.False(t, outcome.Failed())
	assert.False(t, outcome.DebugAvailable)
	assert.Empty(t, outcome.DebugOutput)
	assert.Equal(t, "debug broke\n", outcome.DebugError)
	assert.FileExists(t, pdf)
}

func TestRun_SilentFailureUsesErrorMessage(t *testing.T) {
	out := t.TempDir()
	runner := New(zerolog.Nop(), Options{})

	outcome := runner.Run(context.Background(),
		testInvocation(writeScript(t, silentFailScript), filepath.Join(out, "x.pdf")),
		t.TempDir(), filepath.Join(out, "x.tex"))

	require.True(t, outcome.Failed())
	assert.Equal(t, "renderer failed with exit code 2", outcome.Diagnostic)
	assert.Equal(t, "renderer failed with exit code 2", outcome.DebugError)
}

func TestRun_Timeout(t *testing.T) {
	out := t.TempDir()
	runner := New(zerolog.Nop(), Options{DebugTimeout: 10 * time.Second, FinalTimeout: 200 * time.Millisecond})

	start := time.Now()
	outcome := runner.Run(context.Background(),
		testInvocation(writeScript(t, sleepScript), filepath.Join(out, "x.pdf")),
		t.TempDir(), filepath.Join(out, "x.tex"))

	assert.Less(t, time.Since(start), 10*time.Second)
	require.True(t, outcome.Failed())
	assert.True(t, outcome.TimedOut)
	assert.Contains(t, outcome.Diagnostic, "renderer timed out after 200ms")
	assert.True(t, outcome.DebugAvailable)
}

func TestExec_MissingBinary(t *testing.T) {
	runner := New(zerolog.Nop(), Options{})

	res := runner.Exec(context.Background(),
		testInvocation(filepath.Join(t.TempDir(), "no-such-renderer"), filepath.Join(t.TempDir(), "x.pdf")),
		t.TempDir(), time.Second)

	require.Error(t, res.Err)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Diagnostic(), "failed to start renderer")
}

func TestExec_Environment(t *testing.T) {
	workDir := t.TempDir()
	templates := t.TempDir()
	out := filepath.Join(t.TempDir(), "env.txt")
	runner := New(zerolog.Nop(), Options{TemplatesDir: templates})

	res := runner.Exec(context.Background(), testInvocation(writeScript(t, envScript), out), workDir, time.Second*10)
	require.NoError(t, res.Err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t, workDir+":"+templates+":", lines[0])
	resolved, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)
	assert.Equal(t, resolved, lines[1])
}

func TestExec_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := New(zerolog.Nop(), Options{})
	res := runner.Exec(ctx, testInvocation(writeScript(t, okScript), filepath.Join(t.TempDir(), "x.pdf")), t.TempDir(), 0)

	require.Error(t, res.Err)
	assert.False(t, res.TimedOut)
}

func TestTexInputs(t *testing.T) {
	assert.Equal(t, "/w:/t:", texInputs("/w", "/t"))
	assert.Equal(t, "/w:", texInputs("/w", ""))
}
