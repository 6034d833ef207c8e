// Package lint is the entry point used by the command line: it loads the
// configuration, collects Python files and runs the engine over them.
package lint

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/gnolang/dealint/internal"
	"github.com/gnolang/dealint/internal/config"
	"github.com/gnolang/dealint/scanner"
)

const maxShowRecentFiles = 10

type LintEngine interface {
	Run(ctx context.Context, root string, files []string) (*internal.Result, error)
	RunSource(ctx context.Context, filename, module string, src []byte) (*internal.Result, error)
	Ignored(path string) bool
	SetProgress(fn func(path string))
}

// New loads the configuration found in dir, or the file at
// configurationPath when given, and builds an engine from it.
func New(dir, configurationPath string, logger *zap.Logger) (*internal.Engine, error) {
	cfg, err := config.Load(dir, configurationPath)
	if err != nil {
		return nil, err
	}
	return internal.NewEngine(cfg, logger)
}

// Options controls ProcessPaths.
type Options struct {
	// Root is the import root used to name modules. Empty means the
	// single directory argument, or the working directory.
	Root string
	// Progress, when set, receives a progress bar and the most recently
	// parsed files.
	Progress io.Writer
}

// ProcessPaths analyzes every Python file under paths as one project.
func ProcessPaths(
	ctx context.Context,
	logger *zap.Logger,
	engine LintEngine,
	paths []string,
	opts Options,
) (*internal.Result, error) {
	files, err := CollectFiles(engine, paths)
	if err != nil {
		if logger != nil {
			logger.Error("Error collecting files", zap.Strings("paths", paths), zap.Error(err))
		}
		return nil, err
	}

	root := opts.Root
	if root == "" {
		root = "."
		if len(paths) == 1 {
			if info, err := os.Stat(paths[0]); err == nil && info.IsDir() {
				root = paths[0]
			}
		}
	}

	if opts.Progress != nil && len(files) > 1 {
		done := showProgress(opts.Progress, root, len(files), engine)
		defer done()
	}

	res, err := engine.Run(ctx, root, files)
	if err != nil {
		if logger != nil {
			logger.Error("Error processing files", zap.Int("files", len(files)), zap.Error(err))
		}
		return nil, err
	}
	return res, nil
}

// ProcessSource analyzes one in-memory module, as read from stdin.
func ProcessSource(ctx context.Context, engine LintEngine, filename string, src []byte) (*internal.Result, error) {
	module := filepath.Base(filename)
	module = module[:len(module)-len(filepath.Ext(module))]
	return engine.RunSource(ctx, filename, module, src)
}

// CollectFiles expands directories into their Python files. Files given
// explicitly are kept even without a .py extension, unless ignored.
func CollectFiles(engine LintEngine, paths []string) ([]string, error) {
	var files []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing %s: %w", path, err)
		}
		if !info.IsDir() {
			if !engine.Ignored(path) {
				add(path)
			}
			continue
		}
		found, err := scanner.New(path, desiredExtensions...).Exclude(engine.Ignored).Paths()
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

var desiredExtensions = []string{".py"}

// showProgress draws a bar and a window of recently parsed files. The
// returned function clears the callback.
func showProgress(w io.Writer, desc string, total int, engine LintEngine) func() {
	var recentFilesMutex sync.Mutex
	recentFiles := make([]string, maxShowRecentFiles)

	// make space for recent files
	for i := 0; i < maxShowRecentFiles+1; i++ {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\033[%dA", maxShowRecentFiles+1)

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	engine.SetProgress(func(path string) {
		recentFilesMutex.Lock()
		defer recentFilesMutex.Unlock()

		for j := maxShowRecentFiles - 1; j > 0; j-- {
			recentFiles[j] = recentFiles[j-1]
		}
		recentFiles[0] = filepath.Base(path)

		// move the cursor up
		fmt.Fprintf(w, "\033[%dA", maxShowRecentFiles)
		for j := range recentFiles {
			// \033[2K: clear the line
			// \r: move the cursor to the beginning of the line
			fmt.Fprintf(w, "\033[2K\r%s\n", recentFiles[j])
		}
		_ = bar.Add(1)
	})

	return func() {
		engine.SetProgress(nil)
		_ = bar.Finish()
		fmt.Fprintln(w)
	}
}
