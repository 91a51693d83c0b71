package cli

// This file contains the list command for displaying previous run reports.

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/texforge/model"
	"github.com/perfgo/texforge/report"
)

func (a *App) list(ctx *cli.Context) error {
	filterTemplate := ctx.String("template")
	limit := ctx.Int("limit")
	w := ctx.App.Writer

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	layout := cfg.Layout()

	// Load all reports, newest first
	entries, err := report.LoadEntries(a.logger, layout.Results)
	if err != nil {
		return fmt.Errorf("failed to load reports: %w", err)
	}

	// Apply template filter if specified
	var filtered []report.Entry
	for _, entry := range entries {
		if filterTemplate == "" || entry.Report.Template == filterTemplate {
			filtered = append(filtered, entry)
		}
	}

	if len(filtered) == 0 {
		if filterTemplate != "" {
			fmt.Fprintf(w, "No reports found for template: %s\n", filterTemplate)
		} else {
			fmt.Fprintln(w, "No reports found")
		}
		return nil
	}

	// Apply limit
	display := filtered
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Fprintf(w, "\n=== Reports (%d total) ===\n\n", len(filtered))

	for _, entry := range display {
		rep := entry.Report

		// Determine status indicator
		status := "✓"
		switch rep.OverallResult {
		case model.OverallPartialFailure:
			status = "✗"
		case model.OverallError:
			status = "!"
		}

		fmt.Fprintf(w, "%s  %s  [%dms]  %s  id=%s\n", status, rep.Timestamp, rep.Performance.TotalDurationMS, rep.OverallResult, rep.RequestID)
		fmt.Fprintf(w, "   Template: %s\n", rep.Template)
		if rep.Error != "" {
			fmt.Fprintf(w, "   Error: %s\n", rep.Error)
		}
		for _, tr := range rep.TestResults {
			fmt.Fprintf(w, "   - %s: %s", tr.Name, tr.Status)
			if tr.ErrorAnalysis != nil && tr.ErrorAnalysis.Recognized {
				fmt.Fprintf(w, " (%s)", tr.ErrorAnalysis.Cause)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "   %s\n", entry.FullPath)
		fmt.Fprintln(w)
	}

	return nil
}
