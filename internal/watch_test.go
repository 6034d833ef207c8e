package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	t.Parallel()

	dir, files := writeProject(t, map[string]string{
		"m.py": "import deal\n\n@deal.raises(TypeError)\ndef f():\n    raise TypeError\n",
	})

	results := make(chan *Result, 16)
	w := NewWatcher(newTestEngine(t, nil), dir,
		func() ([]string, error) { return files, nil },
		func(res *Result, err error) {
			assert.NoError(t, err)
			results <- res
		})
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	next := func() *Result {
		select {
		case res := <-results:
			return res
		case <-time.After(5 * time.Second):
			t.Fatal("no analysis run")
			return nil
		}
	}

	require.Empty(t, next().Records)

	bad := "import deal\n\n@deal.raises(TypeError)\ndef f():\n    raise ValueError\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.py"), []byte(bad), 0o644))
	// a save may be seen half written; wait for the run that sees it all
	res := next()
	for len(res.Records) == 0 {
		res = next()
	}
	require.Len(t, res.Records, 1)
	assert.Equal(t, "DEAL021", res.Records[0].Code)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcherSkipsOtherFiles(t *testing.T) {
	t.Parallel()

	w := NewWatcher(newTestEngine(t, nil), t.TempDir(), nil, nil)
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, nil, 0o644))

	assert.False(t, w.handleEvent(nil, fsnotify.Event{Name: notes, Op: fsnotify.Write}))
	assert.True(t, w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "m.py"), Op: fsnotify.Write}))
	assert.False(t, w.handleEvent(nil, fsnotify.Event{Name: filepath.Join(dir, "m.py"), Op: fsnotify.Chmod}))
}
