package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dealint/internal/contract"
	tt "github.com/gnolang/dealint/internal/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), normalized(cfg))
}

// normalized maps empty collections to nil so decoded and literal
// configurations compare equal.
func normalized(c *Config) *Config {
	if len(c.Exclude) == 0 {
		c.Exclude = nil
	}
	if len(c.Stubs) == 0 {
		c.Stubs = nil
	}
	if len(c.Rules) == 0 {
		c.Rules = nil
	}
	if len(c.Contracts) == 0 {
		c.Contracts = nil
	}
	return c
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, FileName, `
name: shop
ignore: [AssertionError, KeyError]
contracts:
  - name: shop.checks.Requires
    kind: pre
rules:
  DEAL021:
    severity: warning
  UnresolvedCallee:
    severity: off
analysis:
  max_loop_iterations: 3
  report_inconclusive: true
solver:
  enabled: true
  timeout: 2s
`)
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "shop", cfg.Name)
	assert.Equal(t, []string{"AssertionError", "KeyError"}, cfg.Ignore)
	assert.Equal(t, 3, cfg.Analysis.MaxLoopIterations)
	assert.Equal(t, Default().Analysis.MaxFixpointIterations, cfg.Analysis.MaxFixpointIterations)
	assert.True(t, cfg.Analysis.ReportInconclusive)
	assert.True(t, cfg.Solver.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, "z3", cfg.Solver.Path)
	assert.Equal(t, map[string]tt.ConfigRule{
		"DEAL021":          {Severity: tt.SeverityWarning},
		"UnresolvedCallee": {Severity: tt.SeverityOff},
	}, cfg.Rules)

	p := cfg.Patterns()
	assert.Equal(t, contract.ActPre, p["shop.checks.Requires"])
	assert.Equal(t, contract.ActRaises, p["deal.raises"])
}

func TestLoadPyproject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", `
[project]
name = "shop"

[tool.dealint]
ignore = ["ValueError"]
stubs = ["stubs"]

[tool.dealint.cache]
enabled = false
`)
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ValueError"}, cfg.Ignore)
	assert.Equal(t, []string{"stubs"}, cfg.Stubs)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "dealint", cfg.Name)
}

func TestPyprojectWithoutTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", "[project]\nname = \"x\"\n")
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.True(t, cfg.Cache.Enabled)
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "analysis:\n  max_loop_iterations: 3\n")
	writeFile(t, dir, ".env", "DEALINT_SOLVER_PATH=/opt/z3/bin/z3\n")
	t.Setenv("DEALINT_ANALYSIS_MAX_LOOP_ITERATIONS", "5")
	t.Setenv("DEALINT_IGNORE", "KeyError,IndexError")
	t.Cleanup(func() { os.Unsetenv("DEALINT_SOLVER_PATH") })

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Analysis.MaxLoopIterations)
	assert.Equal(t, []string{"KeyError", "IndexError"}, cfg.Ignore)
	assert.Equal(t, "/opt/z3/bin/z3", cfg.Solver.Path)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"ok", func(*Config) {}, ""},
		{"unknown kind", func(c *Config) { c.Contracts = []Alias{{Name: "x.y", Kind: "maybe"}} }, "contracts[0].kind"},
		{"empty alias", func(c *Config) { c.Contracts = []Alias{{Kind: "pre"}} }, "contracts[0].name"},
		{"zero loops", func(c *Config) { c.Analysis.MaxLoopIterations = 0 }, "analysis.max_loop_iterations"},
		{"negative fixpoint", func(c *Config) { c.Analysis.MaxFixpointIterations = -1 }, "analysis.max_fixpoint_iterations"},
		{"negative workers", func(c *Config) { c.Analysis.Workers = -2 }, "analysis.workers"},
		{"solver timeout", func(c *Config) { c.Solver.Enabled, c.Solver.Timeout = true, 0 }, "solver.timeout"},
		{"unknown rule", func(c *Config) { c.Rules = map[string]tt.ConfigRule{"loud": {}} }, "rules.loud"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var cerr *Error
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "custom.yaml", "analysis:\n  max_fixpoint_iterations: 0\n")
	_, err := Load(dir, p)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)

	_, err = Load(dir, filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	p = writeFile(t, dir, "conf.ini", "x=1\n")
	_, err = Load(dir, p)
	assert.ErrorAs(t, err, &cerr)
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := Default()
	c.Rules = map[string]tt.ConfigRule{"DEAL046": {Severity: tt.SeverityInfo}}
	require.NoError(t, c.Write(filepath.Join(dir, FileName)))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 5s")
	assert.Contains(t, string(data), "severity: INFO")

	got, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, c, normalized(got))
}
