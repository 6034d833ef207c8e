package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}
	return dir
}

func TestProjectScanner(t *testing.T) {
	t.Parallel()

	tempDir := writeTree(t, map[string]string{
		"app.py":                       "import deal",
		"pkg/__init__.py":              "",
		"pkg/util.pyi":                 "def f() -> int: ...",
		"notes.txt":                    "This is a text file",
		"pkg/__pycache__/util.py":      "x = 1",
		".git/hooks/pre.py":            "x = 1",
		"env/pyvenv.cfg":               "home = /usr",
		"env/lib/site.py":              "x = 1",
		"subdir/nested/deep/module.py": "x = 1",
	})

	scannedFiles, err := New(tempDir, ".py").Scan()
	require.NoError(t, err)

	var got []string
	for _, f := range scannedFiles {
		rel, err := filepath.Rel(tempDir, f.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"app.py", "pkg/__init__.py", "subdir/nested/deep/module.py"}, got)
	assert.Greater(t, scannedFiles[0].Size, int64(0), "File size should be greater than 0")
}

func TestScannerExclude(t *testing.T) {
	t.Parallel()

	tempDir := writeTree(t, map[string]string{
		"a.py":            "x = 1",
		"tests/test_a.py": "x = 1",
		"b_test.py":       "x = 1",
	})

	paths, err := New(tempDir, ".py").Exclude(func(p string) bool {
		return filepath.Base(p) == "tests" || strings.HasSuffix(p, "_test.py")
	}).Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tempDir, "a.py")}, paths)
}

func TestScannerMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "nope"), ".py").Scan()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
