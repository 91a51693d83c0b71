package model

// TestStatus is the outcome of a single test case.
type TestStatus string

const (
	TestStatusPending TestStatus = "pending"
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusFixed   TestStatus = "fixed"
	TestStatusError   TestStatus = "error"
)

// Failed reports whether the status counts as a failure in the overall result.
func (s TestStatus) Failed() bool {
	return s == TestStatusFail || s == TestStatusError
}

// RunStatus is the processing state of a request.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// OverallResult summarizes all test results of a request.
type OverallResult string

const (
	OverallSuccess        OverallResult = "success"
	OverallPartialFailure OverallResult = "partial_failure"
	OverallError          OverallResult = "error"
)

// RunReport is the durable record of one processed request.
// It is written exactly once per request.
type RunReport struct {
	RequestID string    `json:"request_id"`
	Status    RunStatus `json:"status"`
	// Timestamp when processing started (RFC 3339)
	Timestamp     string        `json:"timestamp"`
	Template      string        `json:"template"`
	TestResults   []TestResult  `json:"test_results"`
	Performance   Performance   `json:"performance"`
	OverallResult OverallResult `json:"overall_result"`
	// Request-level error message, set when OverallResult is error
	Error string `json:"error,omitempty"`
}

// Performance contains aggregate timing for a request.
type Performance struct {
	TotalDurationMS int64 `json:"total_duration_ms"`
	TestsRun        int   `json:"tests_run"`
	Failures        int   `json:"failures"`
}

// TestResult is the finalized outcome of a single test case.
type TestResult struct {
	Name       string     `json:"name"`
	Status     TestStatus `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	// Diagnostic text of the failure (renderer stderr or internal error)
	Error         string     `json:"error,omitempty"`
	ErrorAnalysis *Diagnosis `json:"error_analysis,omitempty"`
	// Rendered PDF, relative to the shared root
	PDFPath      string `json:"pdf_path,omitempty"`
	PDFSizeBytes *int64 `json:"pdf_size_bytes,omitempty"`
	// Debug pass artifact
	TexAvailable bool   `json:"tex_available"`
	TexPath      string `json:"tex_path,omitempty"`
	TexError     string `json:"tex_error,omitempty"`
	// Auto-fix hook outcome
	AutoFixAttempted bool       `json:"auto_fix_attempted"`
	AutoFixResult    *FixResult `json:"auto_fix_result,omitempty"`
}

// Diagnosis is the classification of a renderer failure.
type Diagnosis struct {
	Recognized  bool    `json:"recognized"`
	Cause       string  `json:"cause"`
	Solution    string  `json:"solution"`
	Confidence  float64 `json:"confidence"`
	AutoFixable bool    `json:"auto_fixable"`
}

// FixResult is returned by an auto-fix attempt.
type FixResult struct {
	Success   bool   `json:"success"`
	Attempted bool   `json:"attempted"`
	Reason    string `json:"reason,omitempty"`
}
