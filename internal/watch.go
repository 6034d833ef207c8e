package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last change
// before analyzing again.
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-runs the engine over a project whenever one of its Python
// files changes.
type Watcher struct {
	engine *Engine
	root   string
	// Files lists the files of one run. It is called again for every run
	// so new modules are picked up.
	Files func() ([]string, error)
	// OnResult receives the outcome of every run.
	OnResult func(*Result, error)
	Debounce time.Duration
}

func NewWatcher(e *Engine, root string, files func() ([]string, error), onResult func(*Result, error)) *Watcher {
	return &Watcher{
		engine:   e,
		root:     root,
		Files:    files,
		OnResult: onResult,
		Debounce: DefaultDebounce,
	}
}

// Watch analyzes the project once and then after every burst of changes,
// until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return fmt.Errorf("error adding directory to watcher: %w", err)
	}

	w.run(ctx)

	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fw, event) {
				// several writes of one save count as one change
				timer.Reset(w.Debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.engine.log.Error("Watch error", zap.Error(err))
		case <-timer.C:
			w.run(ctx)
		}
	}
}

// handleEvent reports whether the event should trigger a run.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) && isDir(event.Name) {
		if err := w.addTree(fw, event.Name); err != nil {
			w.engine.log.Warn("Cannot watch directory", zap.String("dir", event.Name), zap.Error(err))
		}
		return false
	}
	if filepath.Ext(event.Name) != ".py" || w.engine.Ignored(event.Name) {
		return false
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	w.engine.log.Debug("File changed", zap.String("file", event.Name), zap.Stringer("op", event.Op))
	return true
}

func (w *Watcher) run(ctx context.Context) {
	files, err := w.Files()
	if err != nil {
		w.OnResult(nil, err)
		return
	}
	start := time.Now()
	res, err := w.engine.Run(ctx, w.root, files)
	if err == nil {
		w.engine.log.Info("Analysis done",
			zap.Int("files", len(files)),
			zap.Int("records", len(res.Records)),
			zap.Duration("took", time.Since(start)))
	}
	w.OnResult(res, err)
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || name == "__pycache__" || w.engine.Ignored(path)) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
