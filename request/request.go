package request

// The request package parses and validates template test request files.
// Any problem with a request file is reported as a *FatalError.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/perfgo/texforge/model"
)

// ExpectedFormat is shown to users whose request was rejected.
const ExpectedFormat = `{"template": "name.latex", "tests": [{"name": "test-name", "input": "file.md"}]}`

// FatalError reports a request file that cannot be processed at all.
// It is not recoverable: the watcher stops when it encounters one.
type FatalError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	msg := fmt.Sprintf("request %s rejected: %s", filepath.Base(e.Path), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if err is or wraps a *FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// Load reads a request file and parses it with Parse.
func Load(path string, now time.Time) (*model.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FatalError{Path: path, Reason: "cannot read request file", Err: err}
	}
	return Parse(path, data, now)
}

// Parse validates request JSON and applies defaults: the id falls back to
// the file name, the timestamp to now, and an empty test list to the
// default test case.
func Parse(path string, data []byte, now time.Time) (*model.Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FatalError{Path: path, Reason: "invalid JSON in request file", Err: err}
	}

	if isAbsent(raw["template"]) {
		return nil, &FatalError{
			Path:   path,
			Reason: fmt.Sprintf("missing template field (found fields: [%s])", strings.Join(sortedKeys(raw), ", ")),
		}
	}
	if isAbsent(raw["tests"]) {
		return nil, &FatalError{Path: path, Reason: "missing tests field"}
	}

	if err := validateSchema(data); err != nil {
		return nil, &FatalError{Path: path, Reason: "request does not match the expected format", Err: err}
	}

	var req model.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &FatalError{Path: path, Reason: "invalid request structure", Err: err}
	}

	if !filepath.IsLocal(req.Template) {
		return nil, &FatalError{Path: path, Reason: fmt.Sprintf("template %q must be relative to the template store", req.Template)}
	}
	for _, tc := range req.Tests {
		if !filepath.IsLocal(tc.Input) {
			return nil, &FatalError{Path: path, Reason: fmt.Sprintf("test %q: input %q must be relative to the test documents directory", tc.Name, tc.Input)}
		}
	}

	if req.ID != "" && !validID(req.ID) {
		return nil, &FatalError{Path: path, Reason: fmt.Sprintf("request_id %q must be a plain name without path elements", req.ID)}
	}
	if req.ID == "" {
		req.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if req.Timestamp == "" {
		req.Timestamp = now.UTC().Format(time.RFC3339)
	}
	if len(req.Tests) == 0 {
		req.Tests = []model.TestCase{model.DefaultTestCase()}
	}

	return &req, nil
}

// validID reports whether id can name a file directly inside the results
// directory.
func validID(id string) bool {
	return id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// isAbsent reports whether a raw field is missing, null, or an empty string.
func isAbsent(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == `""`
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
