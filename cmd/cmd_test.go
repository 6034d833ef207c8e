package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dealint/internal/report"
	tt "github.com/gnolang/dealint/internal/types"
)

// The commands share package level flag variables, so these tests do not
// run in parallel.

func project(t *testing.T) (dir, cfg string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{
		"shop/util.py": "def parse(s):\n    raise ValueError(s)\n",
		"shop/cart.py": `import deal
from shop.util import parse

@deal.raises(TypeError)
def total(s):
    return parse(s)
`,
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	cfg = filepath.Join(t.TempDir(), "dealint.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("cache:\n  enabled: false\n"), 0o644))
	return dir, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// reset flags left over from previous runs
	cfgFile, verbose, jsonOutput = "", false, false
	outputFormat, outPath, colorMode, rootDir = "pretty", "", "never", ""
	ignoreRules, ignorePaths, noProgress = "", "", true
	stubDir, showEffects, forceInit = "", false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLintJSON(t *testing.T) {
	dir, cfg := project(t)

	out, err := execute(t, "lint", "--config", cfg, "--format", "json", dir)
	assert.ErrorIs(t, err, ErrFailing)

	var env report.Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.NotEmpty(t, env.RunID)
	require.Len(t, env.Records, 1)
	assert.Equal(t, "DEAL021", env.Records[0].Code)
	assert.Equal(t, tt.SeverityError, env.Records[0].Level)
}

func TestLintText(t *testing.T) {
	dir, cfg := project(t)

	out, err := execute(t, "lint", "--config", cfg, "--format", "text", dir)
	assert.ErrorIs(t, err, ErrFailing)
	assert.Contains(t, out, filepath.Join(dir, "shop", "cart.py")+":6:")
	assert.Contains(t, out, "DEAL021")
}

func TestLintPretty(t *testing.T) {
	dir, cfg := project(t)

	out, err := execute(t, "--config", cfg, dir)
	assert.ErrorIs(t, err, ErrFailing)
	assert.Contains(t, out, "error: DEAL021 (UndeclaredException)")
	assert.Contains(t, out, "return parse(s)")
	assert.Contains(t, out, "= via: shop.util.parse")
}

func TestLintIgnore(t *testing.T) {
	dir, cfg := project(t)

	out, err := execute(t, "lint", "--config", cfg, "--ignore", "DEAL021", "--format", "text", dir)
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestLintOutputFile(t *testing.T) {
	dir, cfg := project(t)
	dest := filepath.Join(t.TempDir(), "out.json")

	_, err := execute(t, "lint", "--config", cfg, "--json", "-o", dest, dir)
	assert.ErrorIs(t, err, ErrFailing)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"code": "DEAL021"`)
}

func TestLintStdin(t *testing.T) {
	_, cfg := project(t)

	rootCmd.SetIn(bytes.NewBufferString("import deal\n\n@deal.post(lambda r: r > 0)\ndef f():\n    return -1\n"))
	defer rootCmd.SetIn(nil)
	out, err := execute(t, "lint", "--config", cfg, "--format", "text", "-")
	assert.ErrorIs(t, err, ErrFailing)
	assert.Contains(t, out, "stdin.py:5:")
	assert.Contains(t, out, "DEAL012")
}

func TestLintUnknownFormat(t *testing.T) {
	dir, cfg := project(t)

	_, err := execute(t, "lint", "--config", cfg, "--format", "xml", dir)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFailing)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".dealint.yaml")

	out, err := execute(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_loop_iterations")

	_, err = execute(t, "init", "--config", path)
	assert.Error(t, err)

	_, err = execute(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestStub(t *testing.T) {
	dir, cfg := project(t)

	out, err := execute(t, "stub", "--config", cfg, "--root", dir, filepath.Join(dir, "shop", "util.py"))
	require.NoError(t, err)
	assert.Contains(t, out, `"parse"`)
	assert.Contains(t, out, "ValueError")

	stubs := t.TempDir()
	_, err = execute(t, "stub", "--config", cfg, "--dir", stubs, dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(stubs, "shop.util.json"))

	_, err = execute(t, "stub", "--config", cfg, dir)
	assert.Error(t, err)
}

func TestContracts(t *testing.T) {
	dir, cfg := project(t)

	out, err := execute(t, "contracts", "--config", cfg, "--effects", dir)
	require.NoError(t, err)

	var entries []funcContracts
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "shop.cart.total", entries[0].Name)
	assert.Equal(t, filepath.Join(dir, "shop", "cart.py"), entries[0].File)
	require.NotNil(t, entries[0].Effects)
	assert.Contains(t, entries[0].Effects.Kinds(), "ValueError")
}
