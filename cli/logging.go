package cli

// This file contains the file-backed logging used by long-running commands:
// every message goes to activity.log, warnings and errors also to errors.log.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	activityLogName = "activity.log"
	errorsLogName   = "errors.log"
)

// errorsWriter passes only warnings and errors through to w.
func errorsWriter(w io.Writer) zerolog.LevelWriter {
	return &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: w},
		Level:  zerolog.WarnLevel,
	}
}

// attachLogFiles redirects the app logger to the console plus the log files
// in statusDir. The returned function closes the files.
func (a *App) attachLogFiles(statusDir string) (func(), error) {
	if err := os.MkdirAll(statusDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create status directory: %w", err)
	}

	activity, err := openLog(filepath.Join(statusDir, activityLogName))
	if err != nil {
		return nil, err
	}
	errorsLog, err := openLog(filepath.Join(statusDir, errorsLogName))
	if err != nil {
		activity.Close()
		return nil, err
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339Nano,
	}
	a.logger = log.Output(zerolog.MultiLevelWriter(
		console,
		activity,
		errorsWriter(errorsLog),
	))

	a.logger.Debug().Str("dir", statusDir).Msg("Logging to status directory")

	return func() {
		if err := errors.Join(activity.Close(), errorsLog.Close()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log files: %v\n", err)
		}
	}, nil
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
