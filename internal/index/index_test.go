package index

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dealint/internal/analysis/lattice"
	"github.com/gnolang/dealint/internal/cache"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/pyast"
)

func parseUnits(t *testing.T, files map[string]string) []*pyast.Unit {
	t.Helper()
	modules := make([]string, 0, len(files))
	for m := range files {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	units := make([]*pyast.Unit, 0, len(files))
	for _, m := range modules {
		u, err := pyast.Parse(context.Background(), m+".py", m, []byte(files[m]))
		require.NoError(t, err)
		units = append(units, u)
	}
	return units
}

func build(t *testing.T, files map[string]string, opts Options) *Index {
	t.Helper()
	x := New(parseUnits(t, files), opts)
	require.NoError(t, x.Build(context.Background()))
	return x
}

func summary(t *testing.T, x *Index, qual string) *effect.Summary {
	t.Helper()
	s, ok := x.Lookup(qual)
	require.True(t, ok, "no summary for %s", qual)
	return s
}

const mutual = `
def even(n):
    if n == 0:
        return True
    return odd(n - 1)

def odd(n):
    if n == 0:
        return False
    return even(n - 1)
`

const countdown = `
def countdown(n):
    if n < 0:
        raise ValueError
    return countdown(n - 1)

def start():
    return countdown(10)
`

func TestMutualRecursionConverges(t *testing.T) {
	t.Parallel()

	x := build(t, map[string]string{"rec": mutual}, Options{})
	for _, q := range []string{"rec.even", "rec.odd"} {
		s := summary(t, x, q)
		assert.Empty(t, s.Raises, q)
		assert.Equal(t, lattice.Pure, s.Purity, q)
		assert.True(t, s.Resolved, q)
		assert.True(t, s.Converged, q)
	}
	assert.Empty(t, x.Cycles())
	assert.Equal(t, [][]string{{"rec.even", "rec.odd"}}, x.Components())
}

func TestSelfRecursion(t *testing.T) {
	t.Parallel()

	x := build(t, map[string]string{"rec": countdown}, Options{Workers: 1})
	s := summary(t, x, "rec.countdown")
	require.Contains(t, s.Raises, "ValueError")
	assert.Equal(t, lattice.Possible, s.Raises["ValueError"].Certainty)
	assert.True(t, s.Converged)

	caller := summary(t, x, "rec.start")
	require.Contains(t, caller.Raises, "ValueError")
	assert.Equal(t, []string{"rec.countdown"}, caller.Raises["ValueError"].Site.Chain)

	comps := x.Components()
	require.Len(t, comps, 2)
	assert.Equal(t, []string{"rec.countdown"}, comps[0])
	assert.Equal(t, []string{"rec.start"}, comps[1])
}

func TestFixpointFallback(t *testing.T) {
	t.Parallel()

	x := build(t, map[string]string{"rec": countdown}, Options{MaxFixpointIterations: 1})
	s := summary(t, x, "rec.countdown")
	assert.False(t, s.Resolved)
	assert.False(t, s.Converged)
	assert.Equal(t, lattice.Unknown, s.Purity)
	assert.Contains(t, s.Raises, "ValueError")
	assert.Contains(t, s.Raises, effect.UnknownException)

	cycles := x.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"rec.countdown"}, cycles[0].Members)
	assert.Equal(t, "rec.py", cycles[0].Path)
	assert.Equal(t, 2, cycles[0].Pos.Line)

	// callers of a non-converged cycle are unresolved as well
	assert.False(t, summary(t, x, "rec.start").Resolved)
}

func TestCrossModule(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"pkg.check": `
def positive(x):
    if x <= 0:
        raise ValueError("x")
    return x
`,
		"pkg.api": `
from pkg.check import positive

def handler(v):
    return positive(v)

def safe(v):
    try:
        return positive(v)
    except ValueError:
        return 0
`,
	}
	for _, workers := range []int{1, 4} {
		x := build(t, files, Options{Workers: workers})

		h := summary(t, x, "pkg.api.handler")
		require.Contains(t, h.Raises, "ValueError")
		assert.Equal(t, 5, h.Raises["ValueError"].Site.Pos.Line)
		assert.True(t, h.Resolved)

		assert.Empty(t, summary(t, x, "pkg.api.safe").Raises)

		var resolved []string
		for _, e := range x.Edges() {
			if e.Callee != "" {
				resolved = append(resolved, e.Caller+"->"+e.Callee)
			}
		}
		assert.ElementsMatch(t, []string{
			"pkg.api.handler->pkg.check.positive",
			"pkg.api.safe->pkg.check.positive",
		}, resolved)
	}
}

func TestBuildUsesCache(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "cache")
	c, err := cache.NewCache(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	files := map[string]string{"rec": countdown + `
def hello():
    print("hi")
`}
	first := build(t, files, Options{Cache: c})
	// recursive components are never cached
	assert.Equal(t, 2, c.Len())

	second := build(t, files, Options{Cache: c})
	for _, q := range []string{"rec.start", "rec.hello", "rec.countdown"} {
		assert.True(t, summary(t, first, q).Equal(summary(t, second, q)), q)
	}
}

func TestBuildCancelled(t *testing.T) {
	t.Parallel()

	x := New(parseUnits(t, map[string]string{"rec": countdown}), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, x.Build(ctx), context.Canceled)
	_, ok := x.Lookup("rec.start")
	assert.False(t, ok)
}

func TestWaitsForCycle(t *testing.T) {
	t.Parallel()

	x := New(nil, Options{})
	a := &component{members: []string{"a"}, state: running, owner: 1, ready: make(chan struct{})}
	b := &component{members: []string{"b"}, state: running, owner: 2, ready: make(chan struct{})}

	assert.False(t, x.waitsOn(b, 1))
	x.waiting[2] = a
	assert.True(t, x.waitsOn(b, 1))
	assert.False(t, x.waitsOn(b, 3))
}

func TestAncestorLookupIsUnknown(t *testing.T) {
	t.Parallel()

	x := New(nil, Options{})
	w := x.newWorker(context.Background())
	outer := &component{members: []string{"m.f"}}
	inner := &component{members: []string{"m.g"}}
	w.push(outer, nil)
	w.push(inner, map[string]*effect.Summary{"m.g": effect.Bottom("m.g")})

	assert.Equal(t, lattice.Bottom, w.Summary("m.g").Purity)
	s := w.Summary("m.f")
	assert.False(t, s.Resolved)
	assert.Contains(t, s.Raises, effect.UnknownException)
}
