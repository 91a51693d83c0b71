package cli

// This file contains the view command for displaying a single run report.

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/texforge/model"
	"github.com/perfgo/texforge/report"
)

func (a *App) view(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg == "" {
		arg = "0"
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	layout := cfg.Layout()

	entries, err := report.LoadEntries(a.logger, layout.Results)
	if err != nil {
		return fmt.Errorf("failed to load reports: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no reports found")
	}

	entry, err := selectEntry(entries, arg)
	if err != nil {
		return err
	}

	displayReport(ctx.App.Writer, entry, layout.Results, ctx.Bool("stderr"))
	return nil
}

// selectEntry resolves arg against entries sorted newest first. Zero and
// negative integers count back from the newest report; anything else is a
// request ID prefix.
func selectEntry(entries []report.Entry, arg string) (*report.Entry, error) {
	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return nil, fmt.Errorf("invalid index: %s (use 0 for the newest report, -1 for the one before, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return nil, fmt.Errorf("index %s out of range (only %d reports)", arg, len(entries))
		}
		return &entries[index], nil
	}

	for i := range entries {
		if strings.HasPrefix(entries[i].Report.RequestID, arg) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("no report found matching ID: %s", arg)
}

func displayReport(w io.Writer, entry *report.Entry, resultsDir string, withStderr bool) {
	rep := entry.Report

	fmt.Fprintf(w, "=== Request: %s ===\n", rep.RequestID)
	fmt.Fprintf(w, "Time: %s\n", rep.Timestamp)
	fmt.Fprintf(w, "Template: %s\n", rep.Template)
	fmt.Fprintf(w, "Status: %s (%s)\n", rep.Status, rep.OverallResult)
	fmt.Fprintf(w, "Duration: %dms, %d tests, %d failures\n",
		rep.Performance.TotalDurationMS, rep.Performance.TestsRun, rep.Performance.Failures)
	if rep.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", rep.Error)
	}
	fmt.Fprintf(w, "Report: %s\n", entry.FullPath)

	for _, tr := range rep.TestResults {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "--- %s: %s [%dms]\n", tr.Name, tr.Status, tr.DurationMS)
		if tr.PDFPath != "" {
			fmt.Fprintf(w, "PDF: %s", tr.PDFPath)
			if tr.PDFSizeBytes != nil {
				fmt.Fprintf(w, " (%.1f KB)", float64(*tr.PDFSizeBytes)/1024)
			}
			fmt.Fprintln(w)
		}
		switch {
		case tr.TexAvailable && tr.TexPath != "":
			fmt.Fprintf(w, "TeX: %s\n", filepath.Join(resultsDir, tr.TexPath))
		case tr.TexError != "":
			fmt.Fprintf(w, "TeX: unavailable (%s)\n", tr.TexError)
		}
		if d := tr.ErrorAnalysis; d != nil {
			displayDiagnosis(w, d)
		}
		if tr.AutoFixAttempted && tr.AutoFixResult != nil {
			fmt.Fprintf(w, "Auto-fix: success=%t", tr.AutoFixResult.Success)
			if tr.AutoFixResult.Reason != "" {
				fmt.Fprintf(w, " (%s)", tr.AutoFixResult.Reason)
			}
			fmt.Fprintln(w)
		}
		if tr.Error != "" {
			if withStderr {
				fmt.Fprintf(w, "Renderer output:\n%s\n", strings.TrimRight(tr.Error, "\n"))
			} else {
				fmt.Fprintf(w, "Error: %s\n", firstLine(tr.Error))
			}
		}
	}
}

func displayDiagnosis(w io.Writer, d *model.Diagnosis) {
	if !d.Recognized {
		fmt.Fprintf(w, "Diagnosis: %s\n", d.Cause)
		return
	}
	fmt.Fprintf(w, "Diagnosis: %s (confidence %.2f", d.Cause, d.Confidence)
	if d.AutoFixable {
		fmt.Fprint(w, ", auto-fixable")
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "Solution: %s\n", d.Solution)
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
