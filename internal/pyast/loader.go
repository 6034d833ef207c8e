package pyast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ParseError reports the first syntax error found in a file.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Msg)
}

// Comment is a source comment, including the leading '#'.
type Comment struct {
	Pos  Pos
	Text string
}

// DeclKind distinguishes function and class declarations.
type DeclKind int

const (
	DeclFunc DeclKind = iota
	DeclClass
)

// Decl is a function or class declared in a Unit.
type Decl struct {
	Kind     DeclKind
	Name     string
	QualName string
	Func     *FuncDef
	Class    *ClassDef
	// Parent is the enclosing class or function, nil at module level.
	Parent *Decl
	Unit   *Unit
}

// Node returns the declaring statement.
func (d *Decl) Node() Stmt {
	if d.Kind == DeclClass {
		return d.Class
	}
	return d.Func
}

// IsMethod reports whether d is a function defined directly in a class body.
func (d *Decl) IsMethod() bool {
	return d.Kind == DeclFunc && d.Parent != nil && d.Parent.Kind == DeclClass
}

// Decorators returns the decorator expressions of the declaration.
func (d *Decl) Decorators() []Expr {
	if d.Kind == DeclClass {
		return d.Class.Decorators
	}
	return d.Func.Decorators
}

// Unit is one parsed source file. It is never mutated after Parse returns.
type Unit struct {
	Path     string
	Module   string
	Source   []byte
	Body     []Stmt
	Comments []Comment
	Decls    []*Decl

	byID   map[NodeID]*Decl
	byQual map[string]*Decl
}

// DeclByID returns the declaration whose statement has the given id.
func (u *Unit) DeclByID(id NodeID) (*Decl, bool) {
	d, ok := u.byID[id]
	return d, ok
}

// Lookup returns a declaration by qualified name.
func (u *Unit) Lookup(qual string) (*Decl, bool) {
	d, ok := u.byQual[qual]
	return d, ok
}

// Lines splits the source into lines without trailing newlines.
func (u *Unit) Lines() []string {
	return strings.Split(string(u.Source), "\n")
}

// Load reads and parses the file at path. The module name is derived
// from path relative to root.
func Load(ctx context.Context, root, path string) (*Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return Parse(ctx, path, ModuleName(root, path), src)
}

// Parse parses src into a Unit.
func Parse(ctx context.Context, path, module string, src []byte) (*Unit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if bad := firstError(root); bad != nil {
			p := toPos(bad.StartPoint())
			msg := "invalid syntax"
			if bad.IsMissing() {
				msg = fmt.Sprintf("missing %q", bad.Type())
			}
			return nil, &ParseError{Path: path, Line: p.Line, Column: p.Column, Msg: msg}
		}
	}

	conv := &converter{src: src}
	unit := &Unit{
		Path:   path,
		Module: module,
		Source: src,
		byID:   make(map[NodeID]*Decl),
		byQual: make(map[string]*Decl),
	}
	unit.Body = conv.block(root)
	conv.collectComments(root)
	unit.Comments = conv.comments
	unit.indexDecls(unit.Body, nil, module)
	return unit, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

func (u *Unit) indexDecls(body []Stmt, parent *Decl, prefix string) {
	for _, s := range body {
		switch n := s.(type) {
		case *FuncDef:
			d := &Decl{Kind: DeclFunc, Name: n.Name, QualName: join(prefix, n.Name), Func: n, Parent: parent, Unit: u}
			u.add(d)
			u.indexDecls(n.Body, d, d.QualName)
		case *ClassDef:
			d := &Decl{Kind: DeclClass, Name: n.Name, QualName: join(prefix, n.Name), Class: n, Parent: parent, Unit: u}
			u.add(d)
			u.indexDecls(n.Body, d, d.QualName)
		case *If:
			// conditional definitions at module or class level
			if parent == nil || parent.Kind == DeclClass {
				u.indexDecls(n.Body, parent, prefix)
				u.indexDecls(n.Else, parent, prefix)
			}
		case *Try:
			if parent == nil || parent.Kind == DeclClass {
				u.indexDecls(n.Body, parent, prefix)
			}
		}
	}
}

func (u *Unit) add(d *Decl) {
	if _, dup := u.byQual[d.QualName]; dup {
		// a later redefinition shadows the earlier one
		for i, old := range u.Decls {
			if old.QualName == d.QualName {
				u.Decls = append(u.Decls[:i], u.Decls[i+1:]...)
				break
			}
		}
	}
	u.Decls = append(u.Decls, d)
	u.byID[d.Node().ID()] = d
	u.byQual[d.QualName] = d
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ModuleName derives a dotted module name from a file path relative to root.
// "pkg/mod.py" becomes "pkg.mod" and "pkg/__init__.py" becomes "pkg".
func ModuleName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	rel = strings.TrimSuffix(rel, "/__init__")
	if rel == "__init__" {
		rel = filepath.Base(filepath.Dir(path))
	}
	return strings.ReplaceAll(strings.Trim(rel, "/"), "/", ".")
}
