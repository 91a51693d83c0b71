package cli

// This file contains the init command that prepares a shared workspace.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/texforge/model"
)

const (
	sampleRequestName = "sample-request.json"
	sampleDocument    = `# Sample Document

This is a sample document for template verification.

## Features

- Headings and paragraphs
- Lists

1. Replace this content with your own
2. Drop a request into the requests directory
`
)

func (a *App) initWorkspace(c *cli.Context) error {
	cfg, err := a.loadConfig(c)
	if err != nil {
		return err
	}
	layout := cfg.Layout()
	if err := layout.Ensure(); err != nil {
		return err
	}

	input := model.DefaultTestCase().Input
	docPath := filepath.Join(layout.Documents, input)
	created, err := writeIfMissing(docPath, []byte(sampleDocument))
	if err != nil {
		return err
	}
	if created {
		a.logger.Info().Str("path", docPath).Msg("Created sample document")
	}

	template := "template.latex"
	if matches, _ := filepath.Glob(filepath.Join(layout.Templates, cfg.Watch.TemplatePattern)); len(matches) > 0 {
		template = filepath.Base(matches[0])
	}

	id := "sample-" + uuid.NewString()
	sample := map[string]any{
		"request_id": id,
		"template":   template,
		"tests": []map[string]string{
			{"name": "smoke", "input": input},
		},
		"notification": model.Notification{StatusFile: id + ".status"},
	}
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sample request: %w", err)
	}

	// Outside the requests directory so it is not picked up right away
	samplePath := filepath.Join(layout.Root, sampleRequestName)
	if err := os.WriteFile(samplePath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write sample request: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Workspace ready at %s\n", layout.Root)
	fmt.Fprintf(w, "Sample request: %s\n", samplePath)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Put templates into %s\n", layout.Templates)
	fmt.Fprintf(w, "  2. Run: %s watch\n", AppName)
	fmt.Fprintf(w, "  3. Copy the sample request into %s\n", layout.Requests)
	return nil
}

func writeIfMissing(path string, data []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, f.Close()
}
