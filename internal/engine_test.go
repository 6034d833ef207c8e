package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/dealint/internal/config"
	"github.com/gnolang/dealint/internal/report"
	tt "github.com/gnolang/dealint/internal/types"
)

const utilSrc = `def parse(s):
    raise ValueError(s)
`

const cartSrc = `import deal
from shop.util import parse

@deal.raises(TypeError)
def total(s):
    return parse(s)
`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cache.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	e, err := NewEngine(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func writeProject(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		paths = append(paths, p)
	}
	return dir, paths
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir, files := writeProject(t, map[string]string{
		"shop/util.py":   utilSrc,
		"shop/cart.py":   cartSrc,
		"shop/broken.py": "def f(:\n    pass\n",
	})

	res, err := newTestEngine(t, nil).Run(context.Background(), dir, files)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	broken, cart := res.Records[0], res.Records[1]
	assert.Equal(t, report.CodeParse, broken.Code)
	assert.Equal(t, tt.SeverityWarning, broken.Level)
	assert.Equal(t, filepath.Join(dir, "shop", "broken.py"), broken.File)

	assert.Equal(t, "DEAL021", cart.Code)
	assert.Equal(t, 6, cart.Line)
	assert.Equal(t, "shop.cart.total", cart.Func)
	assert.Equal(t, []string{"shop.util.parse"}, cart.Chain)
	assert.Contains(t, cart.Message, "ValueError")

	assert.Len(t, res.Units, 2)
	assert.True(t, res.Specs["shop.cart.total"].DeclaresRaises())
	_, ok := res.Index.Lookup("shop.util.parse")
	assert.True(t, ok)
}

func TestRunMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := newTestEngine(t, nil).Run(context.Background(), dir, []string{filepath.Join(dir, "nope.py")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSuppression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    string
		ignore string
	}{
		{
			name: "nolint comment",
			src: `import deal

@deal.raises(TypeError)
def f():
    raise ValueError  # nolint:DEAL021
`,
		},
		{
			name: "noqa comment",
			src: `import deal

@deal.raises(TypeError)
def f():
    raise ValueError  # noqa: UndeclaredException
`,
		},
		{
			name: "ignored code",
			src: `import deal

@deal.raises(TypeError)
def f():
    raise ValueError
`,
			ignore: "deal021",
		},
		{
			name: "ignored kind",
			src: `import deal

@deal.raises(TypeError)
def f():
    raise ValueError
`,
			ignore: "UndeclaredException",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newTestEngine(t, nil)
			if tc.ignore != "" {
				e.IgnoreRule(tc.ignore)
			}
			res, err := e.RunSource(context.Background(), "m.py", "m", []byte(tc.src))
			require.NoError(t, err)
			assert.Empty(t, res.Records)
		})
	}
}

func TestConfiguredSeverity(t *testing.T) {
	t.Parallel()

	src := []byte(`import deal

@deal.raises(TypeError)
def f():
    raise ValueError
`)
	cfg := testConfig()
	cfg.Rules = map[string]tt.ConfigRule{"DEAL021": {Severity: tt.SeverityWarning}}
	res, err := newTestEngine(t, cfg).RunSource(context.Background(), "m.py", "m", src)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, tt.SeverityWarning, res.Records[0].Level)

	cfg = testConfig()
	cfg.Ignore = append(cfg.Ignore, "ValueError")
	res, err = newTestEngine(t, cfg).RunSource(context.Background(), "m.py", "m", src)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestRunSourceSyntaxError(t *testing.T) {
	t.Parallel()

	res, err := newTestEngine(t, nil).RunSource(context.Background(), "bad.py", "bad", []byte("def (:\n"))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, report.KindParseError, res.Records[0].Kind)
	assert.Equal(t, "bad.py", res.Records[0].File)
}

func TestInheritedContracts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want int
	}{
		{
			name: "method marker",
			src: `import deal

class Base:
    @deal.raises(ValueError)
    def f(self):
        raise ValueError

class Child(Base):
    @deal.inherit
    def f(self):
        raise TypeError
`,
			want: 1,
		},
		{
			name: "class marker",
			src: `import deal

class Base:
    @deal.raises(ValueError)
    def f(self):
        raise ValueError

@deal.inherit
class Child(Base):
    def f(self):
        raise TypeError
`,
			want: 1,
		},
		{
			name: "no marker",
			src: `import deal

class Base:
    @deal.raises(ValueError)
    def f(self):
        raise ValueError

class Child(Base):
    def f(self):
        raise TypeError
`,
			want: 0,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := newTestEngine(t, nil).RunSource(context.Background(), "m.py", "m", []byte(tc.src))
			require.NoError(t, err)
			require.Len(t, res.Records, tc.want)
			if tc.want > 0 {
				assert.Equal(t, "m.Child.f", res.Records[0].Func)
				assert.Equal(t, 11, res.Records[0].Line)
			}
		})
	}
}

func TestMalformedContract(t *testing.T) {
	t.Parallel()

	src := []byte(`import deal

@deal.pre(check)
def f(x):
    return x
`)
	res, err := newTestEngine(t, nil).RunSource(context.Background(), "m.py", "m", src)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, report.CodeMalformed, res.Records[0].Code)
	assert.Equal(t, 3, res.Records[0].Line)
}

func TestIgnored(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Exclude = []string{"tests"}
	e := newTestEngine(t, cfg)
	e.IgnorePath("*_gen.py")

	tests := []struct {
		path string
		want bool
	}{
		{"pkg/models_gen.py", true},
		{"tests/test_cart.py", true},
		{"tests", true},
		{"pkg/cart.py", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, e.Ignored(tc.path), tc.path)
	}
}

func TestProgress(t *testing.T) {
	t.Parallel()

	dir, files := writeProject(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
		"c.py": "def (\n",
	})

	e := newTestEngine(t, nil)
	seen := make(chan string, len(files))
	e.SetProgress(func(path string) { seen <- path })
	_, err := e.Run(context.Background(), dir, files)
	require.NoError(t, err)
	close(seen)

	var got []string
	for p := range seen {
		got = append(got, p)
	}
	assert.ElementsMatch(t, files, got)
}

func TestRecordOrderAtSameSite(t *testing.T) {
	t.Parallel()

	src := []byte(`import deal

@deal.pre(lambda x: x > 0)
def g(x):
    raise ValueError

@deal.raises(TypeError)
def f():
    return g(-1)
`)
	res, err := newTestEngine(t, nil).RunSource(context.Background(), "m.py", "m", src)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "DEAL021", res.Records[0].Code)
	assert.Equal(t, "DEAL011", res.Records[1].Code)
	assert.Equal(t, res.Records[0].Line, res.Records[1].Line)
	assert.Equal(t, res.Records[0].Column, res.Records[1].Column)
}
