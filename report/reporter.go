package report

// The report package persists run reports, archives handled request files and
// reads reports back for listing.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/perfgo/texforge/model"
)

// ResultSuffix is appended to the request id to name its report file.
const ResultSuffix = "-result.json"

// Reporter writes run reports and status side-files.
type Reporter struct {
	logger     zerolog.Logger
	resultsDir string
	statusDir  string
}

// NewReporter creates a Reporter writing reports into resultsDir and status
// files into statusDir.
func NewReporter(logger zerolog.Logger, resultsDir, statusDir string) *Reporter {
	return &Reporter{
		logger:     logger,
		resultsDir: resultsDir,
		statusDir:  statusDir,
	}
}

// ResultPath returns the report path for a request id.
func (r *Reporter) ResultPath(requestID string) string {
	return filepath.Join(r.resultsDir, requestID+ResultSuffix)
}

// Write stores the report atomically and, when the request asks for it,
// writes the status side-file. It returns the report path.
func (r *Reporter) Write(req *model.Request, rep *model.RunReport) (string, error) {
	path := r.ResultPath(rep.RequestID)
	if err := writeJSON(path, rep); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}

	r.logger.Info().
		Str("request_id", rep.RequestID).
		Str("overall", string(rep.OverallResult)).
		Str("path", path).
		Msg("Wrote run report")

	if req == nil || req.Notification == nil || req.Notification.StatusFile == "" {
		return path, nil
	}

	name := req.Notification.StatusFile
	if !filepath.IsLocal(name) {
		return path, fmt.Errorf("status file %q must be relative to the status directory", name)
	}
	content := fmt.Sprintf("Test completed: %s\nTimestamp: %s", rep.OverallResult, rep.Timestamp)
	if err := writeFile(filepath.Join(r.statusDir, name), []byte(content)); err != nil {
		return path, fmt.Errorf("failed to write status file: %w", err)
	}
	return path, nil
}

// CopyArtifact copies a debug artifact next to the reports and returns its
// base name.
func (r *Reporter) CopyArtifact(src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	name := filepath.Base(src)
	if err := writeFile(filepath.Join(r.resultsDir, name), data); err != nil {
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	return name, nil
}
