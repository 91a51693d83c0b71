package report

// This file contains loading of previously written run reports.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/perfgo/texforge/model"
)

// Entry is a run report read back from the results directory.
type Entry struct {
	Report   model.RunReport
	FullPath string
}

// LoadEntries loads every run report in resultsDir, newest first.
// Unparseable files are logged and skipped.
func LoadEntries(logger zerolog.Logger, resultsDir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var entries []Entry
	for _, d := range dirEntries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ResultSuffix) {
			continue
		}

		path := filepath.Join(resultsDir, d.Name())
		rep, err := Read(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to parse run report")
			continue
		}

		entries = append(entries, Entry{
			Report:   rep,
			FullPath: path,
		})
	}

	// RFC 3339 timestamps in UTC sort lexically
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Report.Timestamp > entries[j].Report.Timestamp
	})

	return entries, nil
}

// Read parses a single run report file.
func Read(path string) (model.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RunReport{}, err
	}

	var rep model.RunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return model.RunReport{}, err
	}

	return rep, nil
}
