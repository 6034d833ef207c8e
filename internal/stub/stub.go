// Package stub loads and generates effect stubs for code outside the
// analyzed project.
//
// A stub file describes one module. Its name is the module name with a
// .json extension and it maps function names to what they raise and the
// side-effect markers they have:
//
//	{"loads": {"raises": ["JSONDecodeError"], "has": []}}
package stub

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/pyast"
)

const schemaURL = "dealint://stub.schema.json"

//go:embed schema.json
var schemaSource string

//go:embed builtin/*.json
var builtinFS embed.FS

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// File is the content of one stub file.
type File map[string]effect.StubEntry

// Parse validates and decodes a stub file.
func Parse(data []byte) (File, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile stub schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid stub json: %w", err)
	}
	if err := sch.Validate(raw); err != nil {
		return nil, fmt.Errorf("stub schema validation failed: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid stub json: %w", err)
	}
	return f, nil
}

// Write encodes the stub with stable key order.
func (f File) Write(w io.Writer) error {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// Store holds stub entries keyed by canonical dotted name.
// It is safe for concurrent reads once loading is done.
type Store struct {
	mu      sync.RWMutex
	entries map[string]effect.StubEntry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: map[string]effect.StubEntry{}}
}

// Builtin returns a store preloaded with the bundled standard library stubs.
func Builtin() (*Store, error) {
	s := NewStore()
	err := fs.WalkDir(builtinFS, "builtin", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		f, err := Parse(data)
		if err != nil {
			return fmt.Errorf("bundled stub %s: %w", path, err)
		}
		s.Add(moduleOf(path), f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Add registers every entry of f under module.
func (s *Store) Add(module string, f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range f {
		s.entries[module+"."+name] = e
	}
}

// Lookup returns the entry for a canonical dotted name.
func (s *Store) Lookup(name string) (effect.StubEntry, bool) {
	if s == nil {
		return effect.StubEntry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Fingerprint digests every entry. Summaries computed against stores with
// equal fingerprints are interchangeable.
func (s *Store) Fingerprint() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		e := s.entries[name]
		fmt.Fprintf(h, "%s|%s|%s\n", name, strings.Join(e.Raises, ","), strings.Join(e.Has, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LoadFile reads one stub file. The module name comes from the file name.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading stub %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.Add(moduleOf(path), f)
	return nil
}

// LoadDir reads every .json file directly inside dir.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("error reading stub directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := s.LoadFile(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func moduleOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// Generate builds the stub of a unit from the summaries of its functions.
// Functions that neither raise nor touch external state are left out.
func Generate(u *pyast.Unit, summary func(qual string) *effect.Summary) File {
	out := File{}
	for _, d := range u.Decls {
		if d.Kind != pyast.DeclFunc {
			continue
		}
		s := summary(d.QualName)
		if s == nil {
			continue
		}
		var e effect.StubEntry
		for _, k := range s.Kinds() {
			if k != effect.UnknownException {
				e.Raises = append(e.Raises, k)
			}
		}
		if names := s.MarkerNames(); len(names) > 0 {
			e.Has = names
		}
		if len(e.Raises) == 0 && len(e.Has) == 0 {
			continue
		}
		sort.Strings(e.Raises)
		out[strings.TrimPrefix(d.QualName, u.Module+".")] = e
	}
	return out
}

// Encode renders f as indented JSON.
func Encode(f File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
