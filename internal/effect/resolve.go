package effect

import (
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/pyast"
)

// TargetKind classifies what a call expression refers to.
type TargetKind int

const (
	// TargetUnresolved could not be determined statically.
	TargetUnresolved TargetKind = iota
	// TargetProject is a function or method declared in the project.
	TargetProject
	// TargetClass is a class declared in the project.
	TargetClass
	// TargetExternal is a name imported from outside the project.
	TargetExternal
	// TargetBuiltin is a Python builtin.
	TargetBuiltin
	// TargetLocal is a method called on a binding local to the function.
	TargetLocal
	// TargetGlobalVar is a method called on a module-level variable.
	TargetGlobalVar
)

// Target is the result of resolving a callee expression.
type Target struct {
	Kind TargetKind
	// Qual is the qualified or canonical dotted name.
	Qual string
	Decl *pyast.Decl
	// Receiver and Method are set for TargetLocal and TargetGlobalVar.
	Receiver string
	Method   string
	// Overrides are subclass redefinitions a dynamic self call may reach.
	Overrides []*pyast.Decl
}

// Resolver maps names in a function's scope to the declarations they
// denote across the whole project.
type Resolver struct {
	units   map[string]*pyast.Unit
	decls   map[string]*pyast.Decl
	imports map[string]map[string]string
	globals map[string]map[string]bool
	bases   map[string][]string
	hier    *Hierarchy
}

// NewResolver indexes the given units.
func NewResolver(units ...*pyast.Unit) *Resolver {
	r := &Resolver{
		units:   map[string]*pyast.Unit{},
		decls:   map[string]*pyast.Decl{},
		imports: map[string]map[string]string{},
		globals: map[string]map[string]bool{},
		bases:   map[string][]string{},
	}
	for _, u := range units {
		r.units[u.Module] = u
		for _, d := range u.Decls {
			r.decls[d.QualName] = d
		}
		r.imports[u.Module] = importMap(u, u.Body)
		r.globals[u.Module] = moduleVariables(u.Body)
	}
	names := map[string][]string{}
	for _, u := range units {
		for _, d := range u.Decls {
			if d.Kind != pyast.DeclClass {
				continue
			}
			for _, b := range d.Class.Bases {
				dotted := pyast.DottedName(b)
				if dotted == "" {
					continue
				}
				resolved := r.resolveDotted(d, dotted, nil)
				qual := resolved.Qual
				if qual == "" {
					qual = dotted
				}
				r.bases[d.QualName] = append(r.bases[d.QualName], qual)
				names[d.Name] = append(names[d.Name], contract.ExceptionName(b))
			}
		}
	}
	r.hier = NewHierarchy(names)
	return r
}

// Hierarchy returns the exception hierarchy extended with project classes.
func (r *Resolver) Hierarchy() *Hierarchy {
	return r.hier
}

// Decl returns a project declaration by qualified name.
func (r *Resolver) Decl(qual string) (*pyast.Decl, bool) {
	d, ok := r.decls[qual]
	return d, ok
}

// Decls returns every project declaration in qualified-name order.
func (r *Resolver) Decls() []*pyast.Decl {
	out := make([]*pyast.Decl, 0, len(r.decls))
	for _, d := range r.decls {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualName < out[j].QualName })
	return out
}

// Bases returns the resolved base classes of a class.
func (r *Resolver) Bases(classQual string) []string {
	return r.bases[classQual]
}

// MRO returns the class followed by its project ancestors, depth first
// and left to right, each listed once.
func (r *Resolver) MRO(classQual string) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(string)
	walk = func(q string) {
		if seen[q] {
			return
		}
		seen[q] = true
		out = append(out, q)
		for _, b := range r.bases[q] {
			if _, ok := r.decls[b]; ok {
				walk(b)
			}
		}
	}
	walk(classQual)
	return out
}

// Method finds a method through the class's ancestors.
func (r *Resolver) Method(classQual, name string) (*pyast.Decl, bool) {
	for _, c := range r.MRO(classQual) {
		if d, ok := r.decls[c+"."+name]; ok && d.Kind == pyast.DeclFunc {
			return d, true
		}
	}
	return nil, false
}

// Overrides lists the methods named name that project subclasses of
// classQual define themselves, in qualified-name order.
func (r *Resolver) Overrides(classQual, name string) []*pyast.Decl {
	var out []*pyast.Decl
	for _, d := range r.Decls() {
		if d.Kind != pyast.DeclClass || d.QualName == classQual {
			continue
		}
		if !slices.Contains(r.MRO(d.QualName), classQual) {
			continue
		}
		if m, ok := r.decls[d.QualName+"."+name]; ok && m.Kind == pyast.DeclFunc {
			out = append(out, m)
		}
	}
	return out
}

// Resolve determines what the callee expression of a call made inside fn
// refers to. locals are the names bound in fn's own scope.
func (r *Resolver) Resolve(fn *pyast.Decl, callee pyast.Expr, locals map[string]bool) Target {
	dotted := pyast.DottedName(callee)
	if dotted == "" {
		return Target{Kind: TargetUnresolved}
	}
	return r.resolveDotted(fn, dotted, locals)
}

func (r *Resolver) resolveDotted(fn *pyast.Decl, dotted string, locals map[string]bool) Target {
	head, rest, _ := strings.Cut(dotted, ".")
	last := dotted[strings.LastIndexByte(dotted, '.')+1:]

	if cls, ok := selfClass(fn); ok && head == selfName(fn) {
		if rest == "" {
			return Target{Kind: TargetUnresolved, Qual: dotted}
		}
		if !strings.Contains(rest, ".") {
			if m, ok := r.Method(cls.QualName, rest); ok {
				return Target{Kind: TargetProject, Qual: m.QualName, Decl: m, Overrides: r.Overrides(cls.QualName, rest)}
			}
			return Target{Kind: TargetUnresolved, Qual: dotted}
		}
		return Target{Kind: TargetLocal, Receiver: head, Method: last, Qual: dotted}
	}

	if locals[head] {
		if rest == "" {
			return Target{Kind: TargetUnresolved, Qual: dotted}
		}
		return Target{Kind: TargetLocal, Receiver: head, Method: last, Qual: dotted}
	}

	// enclosing function scopes; class bodies are not visible from methods
	for scope := fn; scope != nil; scope = scope.Parent {
		if scope.Kind != pyast.DeclFunc {
			continue
		}
		if d, ok := r.decls[scope.QualName+"."+head]; ok {
			return r.classify(d.QualName, rest)
		}
		if target, ok := importMap(scope.Unit, scope.Func.Body)[head]; ok {
			return r.classify(target, rest)
		}
	}

	module := ""
	if fn != nil {
		module = fn.Unit.Module
	}
	if target, ok := r.imports[module][head]; ok {
		return r.classify(target, rest)
	}
	if _, ok := r.decls[join(module, head)]; ok {
		return r.classify(join(module, head), rest)
	}
	if r.globals[module][head] {
		if rest == "" {
			return Target{Kind: TargetUnresolved, Qual: dotted}
		}
		return Target{Kind: TargetGlobalVar, Receiver: head, Method: last, Qual: dotted}
	}
	if rest == "" && PythonBuiltins[head] {
		return Target{Kind: TargetBuiltin, Qual: head}
	}
	return Target{Kind: TargetUnresolved, Qual: dotted}
}

func (r *Resolver) classify(base, rest string) Target {
	full := base
	if rest != "" {
		full = base + "." + rest
	}
	if d, ok := r.decls[full]; ok {
		if d.Kind == pyast.DeclClass {
			return Target{Kind: TargetClass, Qual: full, Decl: d}
		}
		return Target{Kind: TargetProject, Qual: full, Decl: d}
	}
	// a method reached through its class, possibly inherited
	if i := strings.LastIndexByte(full, '.'); i > 0 {
		if cls, ok := r.decls[full[:i]]; ok && cls.Kind == pyast.DeclClass {
			if m, ok := r.Method(cls.QualName, full[i+1:]); ok {
				return Target{Kind: TargetProject, Qual: m.QualName, Decl: m}
			}
			return Target{Kind: TargetUnresolved, Qual: full}
		}
	}
	if r.isProjectModule(full) {
		return Target{Kind: TargetUnresolved, Qual: full}
	}
	return Target{Kind: TargetExternal, Qual: full}
}

// isProjectModule reports whether name lies inside a module of the project.
func (r *Resolver) isProjectModule(name string) bool {
	for {
		if _, ok := r.units[name]; ok {
			return true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return false
		}
		name = name[:i]
	}
}

func join(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

// selfClass returns the class of a method whose first parameter is bound
// to the instance or class.
func selfClass(fn *pyast.Decl) (*pyast.Decl, bool) {
	if fn == nil || !fn.IsMethod() || len(fn.Func.Params) == 0 {
		return nil, false
	}
	for _, dec := range fn.Func.Decorators {
		if pyast.DottedName(dec) == "staticmethod" {
			return nil, false
		}
	}
	return fn.Parent, true
}

// SelfParam returns the name of a method's instance or class parameter,
// empty for functions and static methods.
func SelfParam(fn *pyast.Decl) string { return selfName(fn) }

func selfName(fn *pyast.Decl) string {
	if _, ok := selfClass(fn); !ok {
		return ""
	}
	return fn.Func.Params[0].Name
}

// importMap maps names bound by the imports of a statement list (not
// descending into nested scopes) to their absolute dotted targets.
func importMap(u *pyast.Unit, body []pyast.Stmt) map[string]string {
	out := map[string]string{}
	var visit func([]pyast.Stmt)
	visit = func(stmts []pyast.Stmt) {
		for _, s := range stmts {
			switch v := s.(type) {
			case *pyast.Import:
				addImport(out, u, v)
			case *pyast.If:
				visit(v.Body)
				visit(v.Else)
			case *pyast.Try:
				visit(v.Body)
				for _, h := range v.Handlers {
					visit(h.Body)
				}
				visit(v.Else)
			}
		}
	}
	visit(body)
	return out
}

func addImport(out map[string]string, u *pyast.Unit, imp *pyast.Import) {
	if !imp.From {
		for _, a := range imp.Names {
			if a.AsName != "" {
				out[a.AsName] = a.Name
				continue
			}
			head, _, _ := strings.Cut(a.Name, ".")
			out[head] = head
		}
		return
	}
	module := imp.Module
	if imp.Level > 0 {
		module = relativeBase(u, imp.Level, imp.Module)
	}
	for _, a := range imp.Names {
		if a.Name == "*" {
			continue
		}
		local := a.Name
		if a.AsName != "" {
			local = a.AsName
		}
		out[local] = join(module, a.Name)
	}
}

func relativeBase(u *pyast.Unit, level int, module string) string {
	pkg := u.Module
	if filepath.Base(u.Path) != "__init__.py" {
		if i := strings.LastIndexByte(pkg, '.'); i >= 0 {
			pkg = pkg[:i]
		} else {
			pkg = ""
		}
	}
	for i := 1; i < level; i++ {
		if j := strings.LastIndexByte(pkg, '.'); j >= 0 {
			pkg = pkg[:j]
		} else {
			pkg = ""
		}
	}
	if module == "" {
		return pkg
	}
	return join(pkg, module)
}

// moduleVariables returns module-level names bound by assignment.
func moduleVariables(body []pyast.Stmt) map[string]bool {
	out := map[string]bool{}
	for _, s := range body {
		if a, ok := s.(*pyast.Assign); ok {
			for _, t := range a.Targets {
				for _, n := range targetNames(t) {
					out[n] = true
				}
			}
		}
	}
	return out
}

// targetNames returns the plain names an assignment target binds.
func targetNames(e pyast.Expr) []string {
	switch v := e.(type) {
	case *pyast.Name:
		return []string{v.Ident}
	case *pyast.Seq:
		var out []string
		for _, elt := range v.Elts {
			out = append(out, targetNames(elt)...)
		}
		return out
	case *pyast.Starred:
		return targetNames(v.X)
	}
	return nil
}

// LocalNames returns the variables bound in fn's own scope: parameters,
// assignment and loop targets, handler and with aliases. Names declared
// global or nonlocal are excluded.
func LocalNames(fn *pyast.Decl) map[string]bool {
	out := BoundNames(fn.Func.Body)
	for _, p := range fn.Func.Params {
		out[p.Name] = true
	}
	return out
}

// BoundNames returns the variables a statement list assigns, not looking
// into nested scopes.
func BoundNames(body []pyast.Stmt) map[string]bool {
	out := map[string]bool{}
	declared := map[string]bool{}
	var visit func([]pyast.Stmt)
	visit = func(stmts []pyast.Stmt) {
		for _, s := range stmts {
			switch v := s.(type) {
			case *pyast.Assign:
				for _, t := range v.Targets {
					for _, n := range targetNames(t) {
						out[n] = true
					}
				}
			case *pyast.For:
				for _, n := range targetNames(v.Target) {
					out[n] = true
				}
				visit(v.Body)
				visit(v.Else)
			case *pyast.While:
				visit(v.Body)
				visit(v.Else)
			case *pyast.If:
				visit(v.Body)
				visit(v.Else)
			case *pyast.With:
				for _, item := range v.Items {
					for _, n := range targetNames(item.Target) {
						out[n] = true
					}
				}
				visit(v.Body)
			case *pyast.Try:
				visit(v.Body)
				for _, h := range v.Handlers {
					if h.Name != "" {
						out[h.Name] = true
					}
					visit(h.Body)
				}
				visit(v.Else)
				visit(v.Finally)
			case *pyast.Global:
				for _, n := range v.Names {
					declared[n] = true
				}
			case *pyast.UnsupportedStmt:
				visit(v.Body)
			}
		}
	}
	visit(body)
	pyast.InspectBody(body, func(n pyast.Node) bool {
		switch v := n.(type) {
		case *pyast.FuncDef, *pyast.ClassDef, *pyast.Lambda:
			return false
		case *pyast.NamedExpr:
			out[v.Target] = true
		}
		return true
	})
	for n := range declared {
		delete(out, n)
	}
	return out
}

// Callee is an edge from a function to something it calls.
type Callee struct {
	Ref    string
	Target Target
	Pos    pyast.Pos
}

// Callees lists the calls in fn's own body with their resolved targets.
// A class target is followed to its constructor.
func (r *Resolver) Callees(fn *pyast.Decl) []Callee {
	if fn.Kind != pyast.DeclFunc {
		return nil
	}
	locals := LocalNames(fn)
	var out []Callee
	pyast.InspectBody(fn.Func.Body, func(n pyast.Node) bool {
		switch v := n.(type) {
		case *pyast.FuncDef, *pyast.ClassDef, *pyast.Lambda:
			return false
		case *pyast.Call:
			t := r.Resolve(fn, v.Func, locals)
			if t.Kind == TargetClass {
				if init, ok := r.Method(t.Qual, "__init__"); ok {
					t = Target{Kind: TargetProject, Qual: init.QualName, Decl: init}
				}
			}
			out = append(out, Callee{Ref: pyast.DottedName(v.Func), Target: t, Pos: v.Pos()})
			for _, o := range t.Overrides {
				out = append(out, Callee{Ref: pyast.DottedName(v.Func), Target: Target{Kind: TargetProject, Qual: o.QualName, Decl: o}, Pos: v.Pos()})
			}
		}
		return true
	})
	return out
}
