package workdir

// This file contains the working-directory isolator that stages a template
// and its style resources into a private directory for a single test.

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const dirPrefix = "pandoc-work-"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StagingError reports a failure to prepare a working directory.
type StagingError struct {
	Op  string
	Err error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("working directory setup failed: %s: %v", e.Op, e.Err)
}

func (e *StagingError) Unwrap() error {
	return e.Err
}

// Isolator stages templates into private working directories.
type Isolator struct {
	logger          zerolog.Logger
	templatesDir    string
	baseDir         string
	styleExtensions []string
}

// New creates an Isolator copying resources out of templatesDir into fresh
// directories under baseDir.
func New(logger zerolog.Logger, templatesDir, baseDir string, styleExtensions []string) *Isolator {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Isolator{
		logger:          logger,
		templatesDir:    templatesDir,
		baseDir:         baseDir,
		styleExtensions: styleExtensions,
	}
}

// Staged is a working directory holding a copy of the template.
type Staged struct {
	WorkDir      string
	TemplatePath string
	// Random hex token, also the last element of the directory name
	ID string

	released bool
}

// Release removes the working directory. Calling it more than once is safe.
func (s *Staged) Release() error {
	if s == nil || s.released {
		return nil
	}
	s.released = true
	if err := os.RemoveAll(s.WorkDir); err != nil {
		return fmt.Errorf("failed to remove working directory %s: %w", s.WorkDir, err)
	}
	return nil
}

// Stage creates a working directory for testName and copies the template and
// every style resource of the template store into it. On failure nothing is
// left behind.
func (i *Isolator) Stage(templatePath, testName string) (*Staged, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return nil, &StagingError{Op: "generate directory name", Err: err}
	}

	name := fmt.Sprintf("%s%s-%d-%s", dirPrefix, SanitizeName(testName), time.Now().UnixNano(), suffix)
	workDir := filepath.Join(i.baseDir, name)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, &StagingError{Op: "create directory", Err: err}
	}

	staged := &Staged{
		WorkDir:      workDir,
		TemplatePath: filepath.Join(workDir, filepath.Base(templatePath)),
		ID:           suffix,
	}

	if err := i.populate(templatePath, staged); err != nil {
		if rmErr := staged.Release(); rmErr != nil {
			i.logger.Warn().Err(rmErr).Msg("Failed to clean up partial working directory")
		}
		return nil, err
	}

	i.logger.Debug().
		Str("work_dir", workDir).
		Str("template", filepath.Base(templatePath)).
		Msg("Staged working directory")

	return staged, nil
}

func (i *Isolator) populate(templatePath string, staged *Staged) error {
	if err := CopyFile(templatePath, staged.TemplatePath); err != nil {
		return &StagingError{Op: "copy template", Err: err}
	}

	entries, err := os.ReadDir(i.templatesDir)
	if err != nil {
		return &StagingError{Op: "read template store", Err: err}
	}

	var styles []string
	for _, entry := range entries {
		if entry.IsDir() || !i.isStyle(entry.Name()) {
			continue
		}
		styles = append(styles, entry.Name())
	}
	if len(styles) == 0 {
		return nil
	}

	i.logger.Debug().Strs("files", styles).Msg("Copying style files")
	for _, name := range styles {
		// A missing style file is reported by the renderer if it matters
		if err := CopyFile(filepath.Join(i.templatesDir, name), filepath.Join(staged.WorkDir, name)); err != nil {
			i.logger.Error().Err(err).Str("file", name).Msg("Failed to copy style file")
		}
	}
	return nil
}

func (i *Isolator) isStyle(name string) bool {
	return slices.ContainsFunc(i.styleExtensions, func(ext string) bool {
		return strings.HasSuffix(name, ext)
	})
}

// SanitizeName maps a test name to a string usable as a path component.
func SanitizeName(name string) string {
	name = strings.Trim(unsafeNameChars.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		return "test"
	}
	return name
}

func randomSuffix() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CopyFile copies the contents of src to dst, replacing dst.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}
