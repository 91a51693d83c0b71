package model

// Request represents a single template test request dropped into the
// requests directory. It is immutable once parsed.
type Request struct {
	// Request identifier, defaults to the request file name without extension
	ID string `json:"request_id,omitempty"`
	// Timestamp of the request (RFC 3339), defaults to the parse time
	Timestamp string `json:"timestamp,omitempty"`
	// Template file name inside the template store (e.g., "report.latex")
	Template string `json:"template"`
	// Test cases, executed in declared order
	Tests []TestCase `json:"tests"`
	// Request-level metadata, applied to every test case
	Metadata Fields `json:"metadata"`
	// Processing options
	Options Options `json:"options"`
	// Optional status side-file notification
	Notification *Notification `json:"notification,omitempty"`
}

// TestCase is one rendering of the request's template against an input document.
type TestCase struct {
	// Name of the test case, used for output and working directory names
	Name string `json:"name"`
	// Input document, relative to the test documents directory
	Input string `json:"input"`
	// Test-level metadata, overrides request metadata
	Metadata Fields `json:"metadata"`
	// Template variables, override all metadata layers
	Variables Fields `json:"variables"`
	// Raw renderer arguments, appended verbatim
	PandocArgs []string `json:"pandoc_args,omitempty"`
	// Lua filter names, resolved against the filters directory
	LuaFilters []string `json:"lua_filters,omitempty"`
}

// Options contains request processing options.
type Options struct {
	AutoFixAttempt bool `json:"auto_fix_attempt,omitempty"`
}

// Notification describes where to write a short status file once the
// request's report has been written.
type Notification struct {
	StatusFile string `json:"status_file"`
}

// DefaultTestCase is substituted when a request declares no tests.
func DefaultTestCase() TestCase {
	return TestCase{Name: "default", Input: "minimal.md"}
}
