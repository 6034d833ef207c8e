// Package scanner collects the Python sources of a project directory.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type FileInfo struct {
	Path string
	Size int64
}

// Scanner walks a directory tree looking for files with the given
// extensions.
type Scanner struct {
	rootDir    string
	extensions []string
	exclude    func(path string) bool
}

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	"__pycache__":   true,
	"node_modules":  true,
	"venv":          true,
	"site-packages": true,
}

func New(rootDir string, extensions ...string) *Scanner {
	return &Scanner{
		rootDir:    rootDir,
		extensions: extensions,
	}
}

// Exclude sets a predicate for paths to leave out. Excluded directories
// are not walked.
func (s *Scanner) Exclude(fn func(path string) bool) *Scanner {
	s.exclude = fn
	return s
}

// Scan returns the matching files ordered by path.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.rootDir && s.skipDir(path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.isTargetFile(path) || (s.exclude != nil && s.exclude(path)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	})
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

// Paths is a helper returning only the paths of Scan.
func (s *Scanner) Paths() ([]string, error) {
	files, err := s.Scan()
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out, err
}

func (s *Scanner) skipDir(path, name string) bool {
	if skippedDirs[name] || (strings.HasPrefix(name, ".") && name != ".") {
		return true
	}
	if _, err := os.Stat(filepath.Join(path, "pyvenv.cfg")); err == nil {
		return true
	}
	return s.exclude != nil && s.exclude(path)
}

func (s *Scanner) isTargetFile(path string) bool {
	if len(s.extensions) == 0 {
		return true
	}

	ext := filepath.Ext(path)
	for _, targetExt := range s.extensions {
		if ext == targetExt {
			return true
		}
	}
	return false
}
