package workdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) string {
	t.Helper()
	store := t.TempDir()
	files := map[string]string{
		"report.latex": `\documentclass{book}`,
		"brand.sty":    `\ProvidesPackage{brand}`,
		"colors.sty":   `\ProvidesPackage{colors}`,
		"notes.txt":    "not a style",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(store, name), []byte(content), 0644))
	}
	return store
}

func TestStage(t *testing.T) {
	store := setupStore(t)
	base := t.TempDir()
	iso := New(zerolog.Nop(), store, base, []string{".sty"})

	staged, err := iso.Stage(filepath.Join(store, "report.latex"), "basic test")
	require.NoError(t, err)

	assert.Equal(t, base, filepath.Dir(staged.WorkDir))
	assert.True(t, strings.HasPrefix(filepath.Base(staged.WorkDir), "pandoc-work-basic-test-"))
	assert.Equal(t, filepath.Join(staged.WorkDir, "report.latex"), staged.TemplatePath)
	assert.Len(t, staged.ID, 8)
	assert.True(t, strings.HasSuffix(staged.WorkDir, "-"+staged.ID))

	data, err := os.ReadFile(staged.TemplatePath)
	require.NoError(t, err)
	assert.Equal(t, `\documentclass{book}`, string(data))

	assert.FileExists(t, filepath.Join(staged.WorkDir, "brand.sty"))
	assert.FileExists(t, filepath.Join(staged.WorkDir, "colors.sty"))
	assert.NoFileExists(t, filepath.Join(staged.WorkDir, "notes.txt"))

	require.NoError(t, staged.Release())
	assert.NoDirExists(t, staged.WorkDir)

	// Second release is a no-op
	require.NoError(t, staged.Release())
}

func TestStage_UniqueDirectories(t *testing.T) {
	store := setupStore(t)
	iso := New(zerolog.Nop(), store, t.TempDir(), []string{".sty"})

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		staged, err := iso.Stage(filepath.Join(store, "report.latex"), "same")
		require.NoError(t, err)
		assert.False(t, seen[staged.WorkDir], "duplicate working directory %s", staged.WorkDir)
		seen[staged.WorkDir] = true
	}
}

func TestStage_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) (store, template string)
		wantOp string
	}{
		{
			name: "missing template",
			setup: func(t *testing.T) (string, string) {
				store := setupStore(t)
				return store, filepath.Join(store, "absent.latex")
			},
			wantOp: "copy template",
		},
		{
			name: "unreadable store",
			setup: func(t *testing.T) (string, string) {
				store := setupStore(t)
				return filepath.Join(store, "gone"), filepath.Join(store, "report.latex")
			},
			wantOp: "read template store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, template := tt.setup(t)
			base := t.TempDir()
			iso := New(zerolog.Nop(), store, base, []string{".sty"})

			staged, err := iso.Stage(template, "x")
			require.Error(t, err)
			assert.Nil(t, staged)

			var stagingErr *StagingError
			require.ErrorAs(t, err, &stagingErr)
			assert.Equal(t, tt.wantOp, stagingErr.Op)

			// No partial directory is left behind
			entries, err := os.ReadDir(base)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestStage_CustomExtensions(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store, "fonts.cls"), []byte("cls"), 0644))
	iso := New(zerolog.Nop(), store, t.TempDir(), []string{".cls"})

	staged, err := iso.Stage(filepath.Join(store, "report.latex"), "x")
	require.NoError(t, err)
	defer staged.Release()

	assert.FileExists(t, filepath.Join(staged.WorkDir, "fonts.cls"))
	assert.NoFileExists(t, filepath.Join(staged.WorkDir, "brand.sty"))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"basic", "basic"},
		{"with space", "with-space"},
		{"../escape", "escape"},
		{"a/b\\c", "a-b-c"},
		{"", "test"},
		{"...", "test"},
		{"v1.2_final", "v1.2_final"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}
