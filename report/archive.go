package report

// This file contains archiving of handled request files and the readiness
// signal written when the watcher starts.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReadyFile is the name of the readiness file in the status directory.
const ReadyFile = "forge-ready.txt"

// Archive moves a handled request file into processedDir. An existing file
// of the same name is never overwritten; the new one gets a timestamp suffix.
func Archive(path, processedDir string) (string, error) {
	if err := os.MkdirAll(processedDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	dest := filepath.Join(processedDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(path)
		stem := strings.TrimSuffix(filepath.Base(path), ext)
		dest = filepath.Join(processedDir, fmt.Sprintf("%s-%s%s", stem, time.Now().UTC().Format("20060102T150405.000000000Z"), ext))
	}

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to archive request: %w", err)
	}
	return dest, nil
}

// SignalReady writes the readiness file announcing the watched directory.
func SignalReady(statusDir, requestsDir string, now time.Time) (string, error) {
	path := filepath.Join(statusDir, ReadyFile)
	content := fmt.Sprintf("PDF Forge ready at %s\nMonitoring: %s", now.UTC().Format(time.RFC3339Nano), requestsDir)
	if err := writeFile(path, []byte(content)); err != nil {
		return "", fmt.Errorf("failed to write readiness file: %w", err)
	}
	return path, nil
}
