package cli

// This file contains the commands working on a single request file or on
// renderer output without the watcher.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/perfgo/texforge/model"
	"github.com/perfgo/texforge/report"
	"github.com/perfgo/texforge/request"
)

func (a *App) run(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("no request file specified")
	}

	cfg, err := a.loadConfig(c)
	if err != nil {
		return err
	}
	layout := cfg.Layout()
	if err := layout.Ensure(); err != nil {
		return err
	}

	closeLogs, err := a.attachLogFiles(layout.Status)
	if err != nil {
		return err
	}
	defer closeLogs()

	// Parsed up front for the id; Process parses again
	req, err := request.Load(path, time.Now())
	if err != nil {
		return err
	}

	m, err := a.newManager(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Process(ctx, path); err != nil {
		return err
	}

	resultPath := filepath.Join(layout.Results, req.ID+report.ResultSuffix)
	rep, err := report.Read(resultPath)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "%s: %s (%d tests, %d failures)\n", rep.RequestID, rep.OverallResult, rep.Performance.TestsRun, rep.Performance.Failures)
	for _, tr := range rep.TestResults {
		fmt.Fprintf(w, "  %-6s %s [%dms]\n", tr.Status, tr.Name, tr.DurationMS)
		if tr.ErrorAnalysis != nil {
			fmt.Fprintf(w, "         cause: %s\n", tr.ErrorAnalysis.Cause)
			fmt.Fprintf(w, "         solution: %s\n", tr.ErrorAnalysis.Solution)
		}
	}
	fmt.Fprintf(w, "Report: %s\n", resultPath)

	if rep.OverallResult != model.OverallSuccess {
		return fmt.Errorf("request %s finished with %s", rep.RequestID, rep.OverallResult)
	}
	return nil
}

func (a *App) validate(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("no request file specified")
	}

	req, err := request.Load(path, time.Now())
	if err != nil {
		return fmt.Errorf("%w\nExpected format: %s", err, request.ExpectedFormat)
	}

	fmt.Fprintf(c.App.Writer, "%s: valid (template %s, %d tests)\n", req.ID, req.Template, len(req.Tests))
	return nil
}

func (a *App) classify(c *cli.Context) error {
	var (
		data []byte
		err  error
	)
	if file := c.Args().First(); file != "" && file != "-" {
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(c.App.Reader)
	}
	if err != nil {
		return fmt.Errorf("failed to read error output: %w", err)
	}

	cfg, err := a.loadConfig(c)
	if err != nil {
		return err
	}
	classifier, err := a.newClassifier(cfg)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(classifier.Classify(string(data)), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode diagnosis: %w", err)
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
