package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gnolang/dealint/internal/analysis/lattice"
	"github.com/gnolang/dealint/internal/effect"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleSummary() *effect.Summary {
	s := effect.NewSummary("pkg.f")
	s.Raises["ValueError"] = effect.Raise{Kind: "ValueError", Certainty: lattice.Certain}
	s.Purity = lattice.Impure
	return s
}

func TestCache(t *testing.T) {
	t.Parallel()

	deps := map[string]string{"pkg.g": "fp-g"}

	t.Run("SaveAndLoad", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		s := sampleSummary()
		require.NoError(t, c.Set("pkg.f", "hash1", deps, s))

		got, found := c.Get("pkg.f", "hash1", deps)
		require.True(t, found)
		assert.True(t, s.Equal(got))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		_, found := c.Get("pkg.missing", "hash", nil)
		assert.False(t, found)
	})

	t.Run("TreeChanged", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		require.NoError(t, c.Set("pkg.f", "hash1", deps, sampleSummary()))
		_, found := c.Get("pkg.f", "hash2", deps)
		assert.False(t, found)
		// invalid entries are evicted
		assert.Equal(t, 0, c.Len())
	})

	t.Run("CalleeChanged", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		require.NoError(t, c.Set("pkg.f", "hash1", deps, sampleSummary()))
		_, found := c.Get("pkg.f", "hash1", map[string]string{"pkg.g": "fp-other"})
		assert.False(t, found)
	})

	t.Run("CalleeAdded", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		require.NoError(t, c.Set("pkg.f", "hash1", deps, sampleSummary()))
		_, found := c.Get("pkg.f", "hash1", map[string]string{"pkg.g": "fp-g", "pkg.h": "fp-h"})
		assert.False(t, found)
	})

	t.Run("Overwrite", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		require.NoError(t, c.Set("pkg.f", "hash1", deps, sampleSummary()))
		pure := effect.NewSummary("pkg.f")
		require.NoError(t, c.Set("pkg.f", "hash2", nil, pure))
		got, found := c.Get("pkg.f", "hash2", nil)
		require.True(t, found)
		assert.Equal(t, lattice.Pure, got.Purity)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("MaxAge", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		c.SetMaxAge(time.Nanosecond)
		require.NoError(t, c.Set("pkg.f", "hash1", deps, sampleSummary()))
		time.Sleep(1100 * time.Millisecond)
		_, found := c.Get("pkg.f", "hash1", deps)
		assert.False(t, found)
	})

	t.Run("InvalidateAll", func(t *testing.T) {
		t.Parallel()
		c := newTestCache(t)
		require.NoError(t, c.Set("pkg.f", "hash1", deps, sampleSummary()))
		require.NoError(t, c.InvalidateAll())
		assert.Equal(t, 0, c.Len())
	})
}

func TestBookkeepingFailuresAreLogged(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	core, logs := observer.New(zap.WarnLevel)
	c.SetLogger(zap.New(core))

	require.NoError(t, c.Set("pkg.f", "hash1", nil, sampleSummary()))
	_, err := c.db.Exec(`
		CREATE TRIGGER no_delete BEFORE DELETE ON summaries
		BEGIN SELECT RAISE(ABORT, 'read only'); END;
		CREATE TRIGGER no_update BEFORE UPDATE ON summaries
		BEGIN SELECT RAISE(ABORT, 'read only'); END;`)
	require.NoError(t, err)

	got, found := c.Get("pkg.f", "hash1", nil)
	require.True(t, found, "a failed access time update still returns the entry")
	assert.Equal(t, sampleSummary().Kinds(), got.Kinds())
	require.Equal(t, 1, logs.FilterMessage("Failed to update cache access time").Len())

	_, found = c.Get("pkg.f", "hash2", nil)
	assert.False(t, found)
	entries := logs.FilterMessage("Failed to drop stale cache entry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pkg.f", entries[0].ContextMap()["func"])
	assert.Equal(t, 1, c.Len())
}

func TestNilCache(t *testing.T) {
	t.Parallel()

	var c *Cache
	_, found := c.Get("pkg.f", "h", nil)
	assert.False(t, found)
	assert.NoError(t, c.Set("pkg.f", "h", nil, sampleSummary()))
	assert.NoError(t, c.Close())
}
