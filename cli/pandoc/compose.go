package pandoc

// compose.go contains utilities for building pandoc command lines from a
// test case and its layered metadata.

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/perfgo/texforge/model"
)

const (
	luaExtension    = ".lua"
	pdfEnginePrefix = "--pdf-engine="
)

// DefaultMetadata returns the lowest-precedence metadata layer.
func DefaultMetadata() model.Fields {
	return model.NewFields(
		"title", "Test Document",
		"author", "PDF Forge Test",
		"date", "2025",
		"toc", true,
		"toc-depth", "3",
		"documentclass", "book",
		"fontsize", "11pt",
		"papersize", "a4paper",
		"mainfont", "Latin Modern Roman",
		"monofont", "Latin Modern Mono",
	)
}

// Settings are the fixed parts of every invocation.
type Settings struct {
	Binary       string       // Renderer executable
	Engine       string       // PDF engine passed via --pdf-engine
	FiltersDir   string       // Directory lua filters are resolved against
	ResourceRoot string       // Shared root added to --resource-path
	Defaults     model.Fields // Built-in metadata layer
}

// ComposeOptions contains the per-test inputs of an invocation.
type ComposeOptions struct {
	Input           string         // Input document path
	Output          string         // Final deliverable path
	Template        string         // Staged template path
	WorkDir         string         // Staged working directory
	Test            model.TestCase // Test case being rendered
	RequestMetadata model.Fields   // Request-level metadata layer
}

// Invocation is a composed renderer command line.
type Invocation struct {
	Binary string
	Args   []string // Arguments without the output flag
	Output string
}

// Compose builds the renderer invocation for a test case. It has no side
// effects and returns the same invocation for the same inputs.
func Compose(s Settings, opts ComposeOptions) Invocation {
	args := []string{opts.Input, "--template", opts.Template}

	// Filters go before raw pandoc_args
	for _, filter := range opts.Test.LuaFilters {
		args = append(args, "--lua-filter="+FilterPath(s.FiltersDir, filter))
	}

	args = append(args, opts.Test.PandocArgs...)

	if s.Engine != "" {
		args = append(args, pdfEnginePrefix+s.Engine)
	}
	args = append(args, "--listings")
	args = append(args, "--resource-path="+resourcePath(s.ResourceRoot, opts.WorkDir))

	vars := model.Merge(s.Defaults, opts.RequestMetadata, opts.Test.Metadata, opts.Test.Variables)
	args = append(args, BuildVariableArgs(vars)...)

	return Invocation{
		Binary: s.Binary,
		Args:   args,
		Output: opts.Output,
	}
}

// FilterPath resolves a lua filter name, appending the .lua extension if missing.
func FilterPath(filtersDir, name string) string {
	if !strings.HasSuffix(name, luaExtension) {
		name += luaExtension
	}
	return filepath.Join(filtersDir, name)
}

// BuildVariableArgs renders merged metadata as --variable flags in key order.
// true emits a bare flag, false and null are omitted.
func BuildVariableArgs(vars model.Fields) []string {
	var args []string
	for _, key := range vars.Keys() {
		value, _ := vars.Get(key)
		switch v := value.(type) {
		case nil:
			continue
		case bool:
			if v {
				args = append(args, "--variable", key)
			}
		default:
			args = append(args, "--variable", key+"="+FormatValue(v))
		}
	}
	return args
}

// FormatValue converts a metadata value into its command-line form.
func FormatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ",")
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

func resourcePath(root, workDir string) string {
	if workDir == "" {
		return root
	}
	return root + string(filepath.ListSeparator) + workDir
}

// Argv returns the full argument list, output flag last.
func (inv Invocation) Argv() []string {
	argv := make([]string, 0, len(inv.Args)+2)
	argv = append(argv, inv.Args...)
	return append(argv, "-o", inv.Output)
}

// String returns the invocation as a shell-escaped command line, suitable for
// logs and golden files.
func (inv Invocation) String() string {
	argv := inv.Argv()
	parts := make([]string, 0, len(argv)+1)
	parts = append(parts, shellescape.Quote(inv.Binary))
	for _, arg := range argv {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

// WithOutput returns a copy of the invocation writing to output.
func (inv Invocation) WithOutput(output string) Invocation {
	inv.Args = append([]string(nil), inv.Args...)
	inv.Output = output
	return inv
}

// WithoutEngine returns a copy of the invocation without the PDF engine
// selection, so the renderer writes its intermediate LaTeX.
func (inv Invocation) WithoutEngine() Invocation {
	args := make([]string, 0, len(inv.Args))
	for _, arg := range inv.Args {
		if strings.HasPrefix(arg, pdfEnginePrefix) {
			continue
		}
		args = append(args, arg)
	}
	inv.Args = args
	return inv
}
