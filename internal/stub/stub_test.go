package stub

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dealint/internal/analysis/lattice"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/pyast"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"get": {"raises": ["ConnectionError"], "has": ["network"]}}`, false},
		{"method key", `{"Session.get": {"raises": ["TimeoutError"]}}`, false},
		{"empty entry", `{"noop": {}}`, false},
		{"unknown marker", `{"get": {"has": ["disk"]}}`, true},
		{"unknown field", `{"get": {"returns": 1}}`, true},
		{"bad exception name", `{"get": {"raises": ["not a name"]}}`, true},
		{"duplicate raises", `{"get": {"raises": ["A", "A"]}}`, true},
		{"not json", `{"get": `, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	s, err := Builtin()
	require.NoError(t, err)
	assert.Greater(t, s.Len(), 0)

	e, ok := s.Lookup("json.loads")
	require.True(t, ok)
	assert.Contains(t, e.Raises, "JSONDecodeError")

	_, ok = s.Lookup("json.nothing")
	assert.False(t, ok)

	var nilStore *Store
	_, ok = nilStore.Lookup("json.loads")
	assert.False(t, ok)
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requests.json"),
		[]byte(`{"get": {"raises": ["ConnectionError"], "has": ["network"]}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	s := NewStore()
	require.NoError(t, s.LoadDir(dir))
	e, ok := s.Lookup("requests.get")
	require.True(t, ok)
	assert.Equal(t, []string{"ConnectionError"}, e.Raises)
	assert.Equal(t, []string{"network"}, e.Has)

	before := s.Fingerprint()
	assert.Len(t, before, 64)
	assert.Equal(t, before, s.Fingerprint())
	s.Add("requests", File{"post": {Has: []string{"network"}}})
	assert.NotEqual(t, before, s.Fingerprint())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"x": {"has": ["disk"]}}`), 0o644))
	assert.Error(t, NewStore().LoadDir(dir))
	assert.Error(t, NewStore().LoadDir(filepath.Join(dir, "missing")))
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	u, err := pyast.Parse(context.Background(), "lib.py", "lib", []byte(`
def parse(s):
    raise ValueError

def shout(s):
    print(s)

def add(a, b):
    return a + b
`))
	require.NoError(t, err)

	summaries := map[string]*effect.Summary{}
	parse := effect.NewSummary("lib.parse")
	parse.Raises["ValueError"] = effect.Raise{Kind: "ValueError", Certainty: lattice.Certain}
	parse.Raises[effect.UnknownException] = effect.Raise{Kind: effect.UnknownException, Certainty: lattice.Possible}
	summaries["lib.parse"] = parse
	shout := effect.NewSummary("lib.shout")
	shout.Markers[effect.MarkStdout] = effect.Marker{Name: effect.MarkStdout}
	summaries["lib.shout"] = shout
	summaries["lib.add"] = effect.NewSummary("lib.add")

	f := Generate(u, func(q string) *effect.Summary { return summaries[q] })
	assert.Equal(t, File{
		"parse": {Raises: []string{"ValueError"}},
		"shout": {Has: []string{"stdout"}},
	}, f)

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	back, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f, back)
}
