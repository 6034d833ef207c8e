package effect

import (
	"sort"
	"strings"
	"unicode"

	"github.com/gnolang/dealint/internal/analysis/lattice"
	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/pyast"
)

// DefaultMaxLoopIterations bounds loop fixed points when Options leaves it unset.
const DefaultMaxLoopIterations = 8

// StubEntry describes a function outside the project.
type StubEntry struct {
	Raises []string `json:"raises,omitempty"`
	Has    []string `json:"has,omitempty"`
}

// Context supplies what Infer needs to know about callees.
type Context interface {
	Resolver() *Resolver
	// Summary returns the summary of a project function. It may block
	// until the summary is available.
	Summary(qual string) *Summary
	// Stub returns the stub entry for a canonical name outside the project.
	Stub(name string) (StubEntry, bool)
}

// Options tunes the inferencer.
type Options struct {
	MaxLoopIterations int
}

// Infer computes the effect summary of a function declaration.
func Infer(fn *pyast.Decl, c Context, opts Options) *Summary {
	if fn == nil || fn.Kind != pyast.DeclFunc {
		return NewSummary("")
	}
	if opts.MaxLoopIterations <= 0 {
		opts.MaxLoopIterations = DefaultMaxLoopIterations
	}
	res := c.Resolver()
	w := &walker{
		fn:      fn,
		ctx:     c,
		res:     res,
		hier:    res.Hierarchy(),
		opts:    opts,
		sum:     NewSummary(fn.QualName),
		locals:  LocalNames(fn),
		self:    selfName(fn),
		globals: map[string]bool{},
		owned:   map[string]bool{},
		handles: map[string]string{},
		aliases: map[string][]string{},
		index:   map[string]int{},
	}
	env := symbolic.NewEnv()
	for _, p := range fn.Func.Params {
		switch p.Star {
		case "*":
			env.Set(p.Name, symbolic.SeqValue{Kind: "tuple", Len: -1})
		case "**":
			env.Set(p.Name, symbolic.SeqValue{Kind: "dict", Len: -1})
		default:
			env.Set(p.Name, symbolic.ParamValue{Name: p.Name})
		}
	}
	out := w.block(fn.Func.Body, env)
	if out != nil {
		w.addReturn(ReturnFact{Pos: fn.Func.End(), Value: symbolic.NoneValue{}, Implicit: true})
		w.sum.MayReturn = true
	}
	w.finish()
	return w.sum
}

type tryScope struct {
	handlers [][]string // nil entry is a bare except
	caught   []map[string]bool
}

type loopFrame struct {
	breaks    *symbolic.Env
	continues *symbolic.Env
}

type walker struct {
	fn   *pyast.Decl
	ctx  Context
	res  *Resolver
	hier *Hierarchy
	opts Options
	sum  *Summary

	locals  map[string]bool
	self    string
	globals map[string]bool
	owned   map[string]bool
	// handles maps bindings of open files and sockets to the marker their
	// methods touch.
	handles map[string]string
	aliases map[string][]string

	tries    []*tryScope
	loops    []*loopFrame
	handling [][]string

	// condDepth counts enclosing expression-level branches.
	condDepth int
	// killed is set when an expression ends the current path.
	killed bool

	index map[string]int
}

func (w *walker) finish() {
	s := w.sum
	if !s.MayReturn && !s.Yields && len(s.Raises) == 1 {
		for k, r := range s.Raises {
			r.Certainty = lattice.Certain
			s.Raises[k] = r
		}
	}
	sortReturns(s.Returns)
	sort.SliceStable(s.Calls, func(i, j int) bool { return s.Calls[i].Pos.Before(s.Calls[j].Pos) })
	sort.SliceStable(s.FieldWrites, func(i, j int) bool { return s.FieldWrites[i].Pos.Before(s.FieldWrites[j].Pos) })
	sort.SliceStable(s.Unresolved, func(i, j int) bool { return s.Unresolved[i].Pos.Before(s.Unresolved[j].Pos) })
	sort.SliceStable(s.FalseAsserts, func(i, j int) bool { return s.FalseAsserts[i].Pos.Before(s.FalseAsserts[j].Pos) })
}

// alive consumes a pending path kill.
func (w *walker) alive(env *symbolic.Env) *symbolic.Env {
	if w.killed {
		w.killed = false
		return nil
	}
	return env
}

/***** recording *****/

func (w *walker) key(kind string, pos pyast.Pos, extra string) string {
	return kind + "@" + pos.String() + "@" + extra
}

func (w *walker) addReturn(r ReturnFact) {
	k := w.key("ret", r.Pos, "")
	if r.Yield {
		k = w.key("yield", r.Pos, "")
	}
	if i, ok := w.index[k]; ok {
		w.sum.Returns[i].Value = symbolic.Join(w.sum.Returns[i].Value, r.Value)
		return
	}
	w.index[k] = len(w.sum.Returns)
	w.sum.Returns = append(w.sum.Returns, r)
}

func (w *walker) addCall(c CallSite) {
	k := w.key("call", c.Pos, c.Ref)
	if i, ok := w.index[k]; ok {
		prev := &w.sum.Calls[i]
		for j := range prev.Args {
			if j < len(c.Args) {
				prev.Args[j] = symbolic.Join(prev.Args[j], c.Args[j])
			}
		}
		prev.Literal = prev.Literal && c.Literal
		return
	}
	w.index[k] = len(w.sum.Calls)
	w.sum.Calls = append(w.sum.Calls, c)
}

func (w *walker) addWrite(fw FieldWrite) {
	k := w.key("write", fw.Pos, fw.Field)
	if i, ok := w.index[k]; ok {
		w.sum.FieldWrites[i].Value = symbolic.Join(w.sum.FieldWrites[i].Value, fw.Value)
		return
	}
	w.index[k] = len(w.sum.FieldWrites)
	w.sum.FieldWrites = append(w.sum.FieldWrites, fw)
}

func (w *walker) addSite(list *[]Site, kind string, s Site) {
	k := w.key(kind, s.Pos, s.What)
	if _, ok := w.index[k]; ok {
		return
	}
	w.index[k] = len(*list)
	*list = append(*list, s)
}

// raise records that kind escapes at site, unless an enclosing try
// catches it.
func (w *walker) raise(kind string, site Site) {
	for i := len(w.tries) - 1; i >= 0; i-- {
		scope := w.tries[i]
		for h, types := range scope.handlers {
			if w.hier.Catches(types, kind) {
				scope.caught[h][kind] = true
				return
			}
		}
	}
	if _, ok := w.sum.Raises[kind]; !ok {
		w.sum.Raises[kind] = Raise{Kind: kind, Certainty: lattice.Possible, Site: site}
	}
}

// offend lowers purity. Only definite impurity becomes the offending site;
// unknown sites are tracked in Unresolved.
func (w *walker) offend(p lattice.Purity, site Site) {
	w.sum.Purity = lattice.Join(w.sum.Purity, p)
	if w.sum.Offending == nil && p == lattice.Impure {
		s := site
		w.sum.Offending = &s
	}
}

// mark records an external-state category at site.
func (w *walker) mark(marker string, site Site) {
	w.offend(lattice.Impure, site)
	if marker == MarkMutate {
		return
	}
	if _, ok := w.sum.Markers[marker]; !ok {
		w.sum.Markers[marker] = Marker{Name: marker, Site: site}
	}
	if NonDeterministic(marker) {
		w.determinism(lattice.No)
	}
}

func (w *walker) determinism(t lattice.Tri) {
	w.sum.Deterministic = thenTri(w.sum.Deterministic, t)
}

// thenTri composes determinism sequentially: one non-deterministic step
// makes the whole non-deterministic.
func thenTri(a, b lattice.Tri) lattice.Tri {
	switch {
	case a == lattice.No || b == lattice.No:
		return lattice.No
	case a == lattice.Maybe || b == lattice.Maybe:
		return lattice.Maybe
	case a == lattice.TriBottom:
		return b
	}
	return a
}

// unknown degrades the summary at a site the analysis cannot see through.
func (w *walker) unknown(site Site) {
	w.raise(UnknownException, site)
	w.offend(lattice.Unknown, site)
	w.determinism(lattice.Maybe)
	w.sum.Resolved = false
	w.addSite(&w.sum.Unresolved, "unresolved", site)
}

/***** statements *****/

func (w *walker) block(stmts []pyast.Stmt, env *symbolic.Env) *symbolic.Env {
	for _, s := range stmts {
		if env == nil {
			return nil
		}
		env = w.stmt(s, env)
	}
	return env
}

func (w *walker) stmt(s pyast.Stmt, env *symbolic.Env) *symbolic.Env {
	switch v := s.(type) {
	case *pyast.ExprStmt:
		w.eval(v.X, env)
		return w.alive(env)

	case *pyast.Return:
		var val symbolic.Value = symbolic.NoneValue{}
		if v.Value != nil {
			val = w.eval(v.Value, env)
			if w.alive(env) == nil {
				return nil
			}
			if c, ok := v.Value.(*pyast.Const); !ok || c.Kind != pyast.ConstNone {
				w.sum.ReturnsValue = true
			}
		}
		w.addReturn(ReturnFact{Pos: v.Pos(), Value: val})
		w.sum.MayReturn = true
		return nil

	case *pyast.Raise:
		return w.raiseStmt(v, env)

	case *pyast.Assert:
		return w.assert(v, env)

	case *pyast.Assign:
		return w.assign(v, env)

	case *pyast.If:
		cond := w.eval(v.Cond, env)
		if w.alive(env) == nil {
			return nil
		}
		t := symbolic.Truthy(cond)
		var thenEnv, elseEnv *symbolic.Env
		if t != symbolic.Contradicts {
			thenEnv = w.refine(v.Cond, env.Clone(), true)
		}
		if t != symbolic.Entails {
			elseEnv = w.refine(v.Cond, env.Clone(), false)
		}
		return symbolic.JoinEnv(w.block(v.Body, thenEnv), w.block(v.Else, elseEnv))

	case *pyast.While:
		return w.while(v, env)

	case *pyast.For:
		return w.forLoop(v, env)

	case *pyast.Try:
		return w.try(v, env)

	case *pyast.With:
		for _, item := range v.Items {
			val := w.eval(item.Value, env)
			if item.Target != nil {
				w.bind(item.Target, val, item.Value, env, v.Pos())
			}
		}
		if w.alive(env) == nil {
			return nil
		}
		return w.block(v.Body, env)

	case *pyast.Import:
		w.mark(MarkImport, Site{Pos: v.Pos(), What: "import"})
		for _, a := range v.Names {
			name := a.AsName
			if name == "" {
				name, _, _ = strings.Cut(a.Name, ".")
			}
			env.Set(name, symbolic.Unknown)
		}
		return env

	case *pyast.Global:
		what := "global"
		if v.Nonlocal {
			what = "nonlocal"
		}
		for _, n := range v.Names {
			w.globals[n] = true
		}
		w.mark(MarkGlobal, Site{Pos: v.Pos(), What: what + " " + strings.Join(v.Names, ", ")})
		return env

	case *pyast.Delete:
		for _, t := range v.Targets {
			switch tv := t.(type) {
			case *pyast.Name:
				if w.globals[tv.Ident] {
					w.mark(MarkGlobal, Site{Pos: v.Pos(), What: "del " + tv.Ident})
				}
				env.Set(tv.Ident, symbolic.Unknown)
			case *pyast.Attribute:
				w.eval(tv.X, env)
				w.store(tv.X, v.Pos(), "del "+pyast.DottedName(t))
			case *pyast.Subscript:
				w.eval(tv.X, env)
				w.eval(tv.Index, env)
				w.store(tv.X, v.Pos(), "del item")
			}
		}
		return w.alive(env)

	case *pyast.Simple:
		switch v.Keyword {
		case "break":
			if n := len(w.loops); n > 0 {
				f := w.loops[n-1]
				f.breaks = symbolic.JoinEnv(f.breaks, env)
				return nil
			}
		case "continue":
			if n := len(w.loops); n > 0 {
				f := w.loops[n-1]
				f.continues = symbolic.JoinEnv(f.continues, env)
				return nil
			}
		}
		return env

	case *pyast.FuncDef:
		env.Set(v.Name, symbolic.Unknown)
		return env

	case *pyast.ClassDef:
		env.Set(v.Name, symbolic.Unknown)
		return env

	case *pyast.UnsupportedStmt:
		w.unknown(Site{Pos: v.Pos(), What: "unsupported " + v.Kind})
		for _, e := range v.Exprs {
			w.eval(e, env)
		}
		w.killed = false
		bound := BoundNames(v.Body)
		out := w.block(v.Body, env.Clone())
		joined := symbolic.JoinEnv(env, out)
		joined.Havoc(keys(bound)...)
		return joined
	}
	return env
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (w *walker) raiseStmt(v *pyast.Raise, env *symbolic.Env) *symbolic.Env {
	site := Site{Pos: v.Pos(), What: "raise"}
	if v.Exc == nil {
		kinds := []string{"RuntimeError"}
		if n := len(w.handling); n > 0 && len(w.handling[n-1]) > 0 {
			kinds = w.handling[n-1]
		}
		for _, k := range kinds {
			w.raise(k, site)
		}
		return nil
	}
	if c, ok := v.Exc.(*pyast.Call); ok {
		for _, a := range c.Args {
			w.eval(a, env)
		}
		for _, kw := range c.Keywords {
			w.eval(kw.Value, env)
		}
	}
	if v.Cause != nil {
		w.eval(v.Cause, env)
	}
	w.killed = false
	for _, k := range w.raisedKinds(v.Exc) {
		site.What = "raise " + k
		w.raise(k, site)
	}
	return nil
}

// raisedKinds names the exception a raise expression throws.
func (w *walker) raisedKinds(exc pyast.Expr) []string {
	name := contract.ExceptionName(exc)
	if name == "" {
		return []string{UnknownException}
	}
	if _, isCall := exc.(*pyast.Call); !isCall && pyast.DottedName(exc) == name {
		if kinds, ok := w.aliases[name]; ok && len(kinds) > 0 {
			return kinds
		}
	}
	if r := []rune(name); unicode.IsLower(r[0]) && !w.hier.IsException(name) {
		return []string{UnknownException}
	}
	return []string{name}
}

func (w *walker) assert(v *pyast.Assert, env *symbolic.Env) *symbolic.Env {
	val := w.eval(v.Test, env)
	if w.alive(env) == nil {
		return nil
	}
	site := Site{Pos: v.Pos(), What: "assert"}
	switch symbolic.Truthy(val) {
	case symbolic.Entails:
		return env
	case symbolic.Contradicts:
		w.addSite(&w.sum.FalseAsserts, "assert", site)
		w.raise("AssertionError", site)
		return nil
	}
	if v.Msg != nil {
		w.condDepth++
		w.eval(v.Msg, env)
		w.condDepth--
		w.killed = false
	}
	w.raise("AssertionError", site)
	return w.refine(v.Test, env, true)
}

func (w *walker) assign(v *pyast.Assign, env *symbolic.Env) *symbolic.Env {
	val := w.eval(v.Value, env)
	if v.Op != "" && len(v.Targets) == 1 {
		cur := w.eval(v.Targets[0], env)
		val = w.arith(v.Op, cur, val, v.Pos())
	}
	if w.alive(env) == nil {
		return nil
	}
	for _, t := range v.Targets {
		w.bind(t, val, v.Value, env, v.Pos())
	}
	return w.alive(env)
}

// bind assigns val to an assignment target. src is the assigned
// expression, used to track ownership.
func (w *walker) bind(target pyast.Expr, val symbolic.Value, src pyast.Expr, env *symbolic.Env, pos pyast.Pos) {
	switch t := target.(type) {
	case *pyast.Name:
		if w.globals[t.Ident] {
			w.mark(MarkGlobal, Site{Pos: pos, What: "assignment to global " + t.Ident})
		}
		env.Set(t.Ident, val)
		owned, handle := w.ownership(src)
		w.owned[t.Ident] = owned || builtinValue(val)
		w.handles[t.Ident] = handle
	case *pyast.Seq:
		for _, elt := range t.Elts {
			w.bind(elt, symbolic.Unknown, nil, env, pos)
		}
	case *pyast.Starred:
		w.bind(t.X, symbolic.SeqValue{Kind: "list", Len: -1}, nil, env, pos)
	case *pyast.Attribute:
		w.eval(t.X, env)
		if base, ok := t.X.(*pyast.Name); ok && w.self != "" && base.Ident == w.self {
			w.addWrite(FieldWrite{Field: t.Attr, Value: val, Pos: pos})
		}
		w.store(t.X, pos, "assignment to "+pyast.DottedName(t))
	case *pyast.Subscript:
		w.eval(t.X, env)
		w.eval(t.Index, env)
		w.store(t.X, pos, "item assignment")
	}
}

// store records a write through the binding rooted at base.
func (w *walker) store(base pyast.Expr, pos pyast.Pos, what string) {
	root := rootName(base)
	site := Site{Pos: pos, What: what}
	switch {
	case root == "":
		w.mark(MarkMutate, site)
	case w.locals[root] && w.owned[root] && root != w.self:
		// local container
	case !w.locals[root] && w.res.globals[w.fn.Unit.Module][root], w.globals[root]:
		w.mark(MarkGlobal, site)
	default:
		w.mark(MarkMutate, site)
	}
}

// builtinValue reports whether val is known to be a builtin scalar,
// string or sequence.
func builtinValue(val symbolic.Value) bool {
	switch val.(type) {
	case symbolic.IntValue, symbolic.FloatValue, symbolic.BoolValue, symbolic.StringValue,
		symbolic.NoneValue, symbolic.RangeValue, symbolic.SeqValue:
		return true
	}
	return false
}

func rootName(e pyast.Expr) string {
	for {
		switch v := e.(type) {
		case *pyast.Name:
			return v.Ident
		case *pyast.Attribute:
			e = v.X
		case *pyast.Subscript:
			e = v.X
		default:
			return ""
		}
	}
}

// ownership reports whether an assigned expression produces a fresh
// container, and which marker applies if it opens a file or socket.
func (w *walker) ownership(src pyast.Expr) (owned bool, handle string) {
	switch v := src.(type) {
	case *pyast.Seq, *pyast.Dict, *pyast.Comp:
		return true, ""
	case *pyast.Call:
		t := w.res.Resolve(w.fn, v.Func, w.locals)
		if t.Kind != TargetBuiltin && t.Kind != TargetExternal {
			return false, ""
		}
		switch t.Qual {
		case "socket.socket", "socket.create_connection":
			return false, MarkNetwork
		case "open", "io.open":
			if openForWrite(v) {
				return false, MarkWrite
			}
			return false, MarkRead
		}
		return containerBuiltins[t.Qual], ""
	}
	return false, ""
}

func (w *walker) while(v *pyast.While, env *symbolic.Env) *symbolic.Env {
	frame := &loopFrame{}
	w.loops = append(w.loops, frame)
	defer func() { w.loops = w.loops[:len(w.loops)-1] }()

	var exit *symbolic.Env
	step := func(head *symbolic.Env) *symbolic.Env {
		cond := w.eval(v.Cond, head)
		if w.alive(head) == nil {
			return nil
		}
		t := symbolic.Truthy(cond)
		if t != symbolic.Entails {
			exit = symbolic.JoinEnv(exit, w.refine(v.Cond, head.Clone(), false))
		}
		var in *symbolic.Env
		if t != symbolic.Contradicts {
			in = w.refine(v.Cond, head.Clone(), true)
		}
		out := w.block(v.Body, in)
		out = symbolic.JoinEnv(out, frame.continues)
		frame.continues = nil
		return out
	}
	w.fixpoint(env, BoundNames(v.Body), step)

	if len(v.Else) > 0 {
		exit = w.block(v.Else, exit)
	}
	return symbolic.JoinEnv(exit, frame.breaks)
}

func (w *walker) forLoop(v *pyast.For, env *symbolic.Env) *symbolic.Env {
	iter := w.eval(v.Iter, env)
	if w.alive(env) == nil {
		return nil
	}
	elem, atLeastOnce := w.elements(v.Iter, iter)

	frame := &loopFrame{}
	w.loops = append(w.loops, frame)
	defer func() { w.loops = w.loops[:len(w.loops)-1] }()

	var exit *symbolic.Env
	if !atLeastOnce {
		exit = env.Clone()
	}
	step := func(head *symbolic.Env) *symbolic.Env {
		in := head.Clone()
		w.bind(v.Target, elem, nil, in, v.Pos())
		out := w.block(v.Body, in)
		out = symbolic.JoinEnv(out, frame.continues)
		frame.continues = nil
		exit = symbolic.JoinEnv(exit, out)
		return out
	}
	bound := BoundNames(v.Body)
	for _, n := range targetNames(v.Target) {
		bound[n] = true
	}
	w.fixpoint(env, bound, step)

	if len(v.Else) > 0 {
		exit = w.block(v.Else, exit)
	}
	return symbolic.JoinEnv(exit, frame.breaks)
}

// elements returns the abstract loop variable for an iterable and whether
// the loop provably runs at least once.
func (w *walker) elements(iter pyast.Expr, val symbolic.Value) (symbolic.Value, bool) {
	if seq, ok := iter.(*pyast.Seq); ok {
		var elem symbolic.Value
		for _, e := range seq.Elts {
			if _, star := e.(*pyast.Starred); star {
				return symbolic.Unknown, false
			}
			elem = symbolic.Join(elem, constValue(e))
		}
		if elem == nil {
			return symbolic.Unknown, false
		}
		return elem, true
	}
	if s, ok := val.(symbolic.SeqValue); ok && s.Len > 0 {
		return symbolic.Unknown, true
	}
	return symbolic.Unknown, false
}

// fixpoint iterates a loop body from the loop head until the head state
// stops changing, widening after two rounds. If the bound is reached the
// names the body assigns are forgotten and the body is walked once more.
func (w *walker) fixpoint(entry *symbolic.Env, bound map[string]bool, step func(*symbolic.Env) *symbolic.Env) {
	head := entry.Clone()
	for i := 0; i < w.opts.MaxLoopIterations; i++ {
		out := step(head.Clone())
		next := symbolic.JoinEnv(entry, out)
		if i >= 2 {
			next = symbolic.WidenEnv(head, next)
		}
		if next.Equal(head) {
			return
		}
		head = next
	}
	havoced := symbolic.JoinEnv(entry, head)
	havoced.Havoc(keys(bound)...)
	step(havoced)
}

func (w *walker) try(v *pyast.Try, env *symbolic.Env) *symbolic.Env {
	scope := &tryScope{}
	for _, h := range v.Handlers {
		scope.handlers = append(scope.handlers, handlerTypes(h))
		scope.caught = append(scope.caught, map[string]bool{})
	}
	w.tries = append(w.tries, scope)
	out := w.block(v.Body, env.Clone())
	w.tries = w.tries[:len(w.tries)-1]
	if len(v.Else) > 0 {
		out = w.block(v.Else, out)
	}

	handlerIn := env.Clone()
	handlerIn.Havoc(keys(BoundNames(v.Body))...)
	implicit := mayRaiseImplicitly(v.Body)
	for i, h := range v.Handlers {
		if len(scope.caught[i]) == 0 && !implicit {
			continue
		}
		kinds := keys(scope.caught[i])
		for _, t := range scope.handlers[i] {
			if !contains(kinds, t) {
				kinds = append(kinds, t)
			}
		}
		in := handlerIn.Clone()
		prev, hadPrev := w.aliases[h.Name]
		if h.Name != "" {
			in.Set(h.Name, symbolic.Unknown)
			w.aliases[h.Name] = kinds
		}
		w.handling = append(w.handling, kinds)
		out = symbolic.JoinEnv(out, w.block(h.Body, in))
		w.handling = w.handling[:len(w.handling)-1]
		if h.Name != "" {
			if hadPrev {
				w.aliases[h.Name] = prev
			} else {
				delete(w.aliases, h.Name)
			}
		}
	}

	if len(v.Finally) > 0 {
		fin := w.block(v.Finally, symbolic.JoinEnv(out, handlerIn))
		if out == nil || fin == nil {
			return nil
		}
		return fin
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func handlerTypes(h *pyast.Handler) []string {
	if len(h.Types) == 0 {
		return nil
	}
	out := []string{}
	for _, t := range h.Types {
		if seq, ok := t.(*pyast.Seq); ok {
			for _, e := range seq.Elts {
				out = append(out, contract.ExceptionName(e))
			}
			continue
		}
		out = append(out, contract.ExceptionName(t))
	}
	return out
}

// mayRaiseImplicitly reports whether a body contains operations that can
// raise exceptions nobody names, such as lookups and calls.
func mayRaiseImplicitly(body []pyast.Stmt) bool {
	found := false
	pyast.InspectBody(body, func(n pyast.Node) bool {
		if found {
			return false
		}
		switch n.(type) {
		case *pyast.FuncDef, *pyast.ClassDef, *pyast.Lambda:
			return false
		case *pyast.Call, *pyast.Subscript, *pyast.Attribute, *pyast.BinOp:
			found = true
			return false
		}
		return true
	})
	return found
}

/***** refinement *****/

// refine narrows env under the assumption that cond evaluates to truth.
// It returns nil when the assumption is infeasible.
func (w *walker) refine(cond pyast.Expr, env *symbolic.Env, truth bool) *symbolic.Env {
	if env == nil {
		return nil
	}
	switch c := cond.(type) {
	case *pyast.UnaryOp:
		if c.Op == "not" {
			return w.refine(c.X, env, !truth)
		}
	case *pyast.BoolOp:
		if (c.Op == "and") == truth {
			for _, v := range c.Values {
				env = w.refine(v, env, truth)
				if env == nil {
					return nil
				}
			}
			return env
		}
		return env
	case *pyast.Name:
		t := symbolic.Truthy(env.Get(c.Ident))
		if (truth && t == symbolic.Contradicts) || (!truth && t == symbolic.Entails) {
			return nil
		}
		return env
	case *pyast.Compare:
		if len(c.Ops) != 1 {
			return env
		}
		op := c.Ops[0]
		if !truth {
			op = symbolic.Negate(op)
		}
		if name, ok := c.Left.(*pyast.Name); ok {
			if k := w.operand(c.Comparators[0], env); k != nil {
				return narrowName(env, name.Ident, op, k)
			}
		}
		if name, ok := c.Comparators[0].(*pyast.Name); ok {
			if k := w.operand(c.Left, env); k != nil && op != "in" && op != "not in" {
				return narrowName(env, name.Ident, symbolic.Flip(op), k)
			}
		}
	}
	return env
}

func narrowName(env *symbolic.Env, name, op string, k symbolic.Value) *symbolic.Env {
	r := symbolic.Refine(env.Get(name), op, k)
	if r == nil {
		return nil
	}
	env.Set(name, r)
	return env
}

// operand returns a known constant for the comparison side of a refinable
// condition, or nil.
func (w *walker) operand(e pyast.Expr, env *symbolic.Env) symbolic.Value {
	if v := constValue(e); !symbolic.IsUnknown(v) {
		return v
	}
	if n, ok := e.(*pyast.Name); ok {
		switch v := env.Get(n.Ident).(type) {
		case symbolic.IntValue, symbolic.FloatValue, symbolic.StringValue, symbolic.BoolValue, symbolic.NoneValue:
			return v
		}
	}
	return nil
}

// constValue evaluates literal expressions without an environment.
// ConstValue returns the value of a literal expression, Unknown for
// anything else.
func ConstValue(e pyast.Expr) symbolic.Value { return constValue(e) }

func constValue(e pyast.Expr) symbolic.Value {
	switch v := e.(type) {
	case *pyast.Const:
		switch v.Kind {
		case pyast.ConstInt:
			return symbolic.IntValue{Val: v.Int}
		case pyast.ConstFloat:
			return symbolic.FloatValue{Val: v.Float}
		case pyast.ConstStr:
			return symbolic.StringValue{Val: v.Str}
		case pyast.ConstBool:
			return symbolic.BoolValue{Val: v.Bool}
		case pyast.ConstNone:
			return symbolic.NoneValue{}
		}
	case *pyast.UnaryOp:
		if v.Op == "-" {
			if inner := constValue(v.X); !symbolic.IsUnknown(inner) {
				return symbolic.Neg(inner)
			}
		}
	}
	return symbolic.Unknown
}

/***** expressions *****/

func (w *walker) eval(e pyast.Expr, env *symbolic.Env) symbolic.Value {
	if e == nil || env == nil {
		return symbolic.Unknown
	}
	switch v := e.(type) {
	case *pyast.Const:
		return constValue(v)

	case *pyast.Name:
		if val, ok := env.Lookup(v.Ident); ok {
			return val
		}
		return symbolic.Unknown

	case *pyast.Attribute:
		w.eval(v.X, env)
		return symbolic.Unknown

	case *pyast.Subscript:
		w.eval(v.X, env)
		w.eval(v.Index, env)
		return symbolic.Unknown

	case *pyast.Call:
		return w.call(v, env)

	case *pyast.BinOp:
		x := w.eval(v.X, env)
		y := w.eval(v.Y, env)
		return w.arith(v.Op, x, y, v.Pos())

	case *pyast.UnaryOp:
		x := w.eval(v.X, env)
		switch v.Op {
		case "-":
			return symbolic.Neg(x)
		case "+":
			return x
		case "not":
			switch symbolic.Truthy(x) {
			case symbolic.Entails:
				return symbolic.BoolValue{Val: false}
			case symbolic.Contradicts:
				return symbolic.BoolValue{Val: true}
			}
		}
		return symbolic.Unknown

	case *pyast.BoolOp:
		first := w.eval(v.Values[0], env)
		w.condDepth++
		for _, rest := range v.Values[1:] {
			w.eval(rest, env)
		}
		w.condDepth--
		t := symbolic.Truthy(first)
		if len(v.Values) == 1 || (v.Op == "or" && t == symbolic.Entails) || (v.Op == "and" && t == symbolic.Contradicts) {
			return first
		}
		return symbolic.Unknown

	case *pyast.Compare:
		vals := []symbolic.Value{w.eval(v.Left, env)}
		for _, c := range v.Comparators {
			vals = append(vals, w.eval(c, env))
		}
		truth := symbolic.Entails
		for i, op := range v.Ops {
			truth = symbolic.And(truth, symbolic.Compare(op, vals[i], vals[i+1]))
		}
		switch truth {
		case symbolic.Entails:
			return symbolic.BoolValue{Val: true}
		case symbolic.Contradicts:
			return symbolic.BoolValue{Val: false}
		}
		return symbolic.Unknown

	case *pyast.IfExp:
		cond := w.eval(v.Cond, env)
		t := symbolic.Truthy(cond)
		w.condDepth++
		defer func() { w.condDepth-- }()
		switch t {
		case symbolic.Entails:
			return w.eval(v.Then, env)
		case symbolic.Contradicts:
			return w.eval(v.Else, env)
		}
		var thenVal, elseVal symbolic.Value = symbolic.Unknown, symbolic.Unknown
		if in := w.refine(v.Cond, env.Clone(), true); in != nil {
			thenVal = w.eval(v.Then, in)
		}
		if in := w.refine(v.Cond, env.Clone(), false); in != nil {
			elseVal = w.eval(v.Else, in)
		}
		return symbolic.Join(thenVal, elseVal)

	case *pyast.Lambda:
		return symbolic.Unknown

	case *pyast.Seq:
		n := len(v.Elts)
		for _, elt := range v.Elts {
			if _, star := elt.(*pyast.Starred); star {
				n = -1
			}
			w.eval(elt, env)
		}
		return symbolic.SeqValue{Kind: v.Kind, Len: n}

	case *pyast.Dict:
		n := len(v.Keys)
		for i := range v.Values {
			if v.Keys[i] == nil {
				n = -1
			}
			w.eval(v.Keys[i], env)
			w.eval(v.Values[i], env)
		}
		return symbolic.SeqValue{Kind: "dict", Len: n}

	case *pyast.Comp:
		for _, it := range v.Iters {
			w.eval(it, env)
		}
		inner := env.Clone()
		for _, t := range v.Targets {
			for _, n := range targetNames(t) {
				inner.Set(n, symbolic.Unknown)
			}
		}
		w.condDepth++
		for _, c := range v.Conds {
			w.eval(c, inner)
		}
		w.eval(v.Elt, inner)
		w.eval(v.Value, inner)
		w.condDepth--
		kind := v.Kind
		if kind == "generator" {
			return symbolic.Unknown
		}
		return symbolic.SeqValue{Kind: kind, Len: -1}

	case *pyast.Yield:
		var val symbolic.Value = symbolic.NoneValue{}
		if v.Value != nil {
			val = w.eval(v.Value, env)
		}
		if v.From {
			val = symbolic.Unknown
		}
		w.addReturn(ReturnFact{Pos: v.Pos(), Value: val, Yield: true})
		w.sum.Yields = true
		return symbolic.Unknown

	case *pyast.Await:
		w.eval(v.X, env)
		return symbolic.Unknown

	case *pyast.NamedExpr:
		val := w.eval(v.Value, env)
		env.Set(v.Target, val)
		return val

	case *pyast.Starred:
		w.eval(v.X, env)
		return symbolic.Unknown

	case *pyast.FString:
		for _, p := range v.Parts {
			w.eval(p, env)
		}
		return symbolic.Unknown

	case *pyast.UnsupportedExpr:
		for _, x := range v.Exprs {
			w.eval(x, env)
		}
		w.unknown(Site{Pos: v.Pos(), What: "unsupported " + v.Kind})
		return symbolic.Unknown
	}
	return symbolic.Unknown
}

func (w *walker) arith(op string, x, y symbolic.Value, pos pyast.Pos) symbolic.Value {
	switch op {
	case "/", "//", "%":
		if _, ok := y.(symbolic.StringValue); !ok && symbolic.IsZero(y) == symbolic.Entails {
			w.raise("ZeroDivisionError", Site{Pos: pos, What: "division by zero"})
			if w.condDepth == 0 {
				w.killed = true
			}
		}
	}
	return symbolic.Arith(op, x, y)
}

/***** calls *****/

func (w *walker) call(c *pyast.Call, env *symbolic.Env) symbolic.Value {
	if attr, ok := c.Func.(*pyast.Attribute); ok {
		w.eval(attr.X, env)
	} else if _, ok := c.Func.(*pyast.Name); !ok {
		w.eval(c.Func, env)
	}
	args := make([]symbolic.Value, 0, len(c.Args))
	literal := true
	for _, a := range c.Args {
		if _, star := a.(*pyast.Starred); star {
			literal = false
		}
		val := w.eval(a, env)
		if symbolic.IsUnknown(constValue(a)) {
			literal = false
		}
		args = append(args, val)
	}
	for _, kw := range c.Keywords {
		w.eval(kw.Value, env)
		literal = false
	}

	ref := pyast.DottedName(c.Func)
	site := Site{Pos: c.Pos(), What: ref}
	if ref == "" {
		site.What = "call"
	}
	target := w.res.Resolve(w.fn, c.Func, w.locals)
	if attr, ok := c.Func.(*pyast.Attribute); ok && isSuper(attr.X) {
		target = w.superTarget(attr.Attr)
	}
	val := w.dispatch(c, target, args, site)

	cs := CallSite{Ref: ref, Pos: c.Pos(), Args: args, Literal: literal}
	if target.Kind == TargetProject || target.Kind == TargetClass {
		cs.Callee = target.Qual
	}
	w.addCall(cs)
	return val
}

func isSuper(e pyast.Expr) bool {
	c, ok := e.(*pyast.Call)
	return ok && pyast.DottedName(c.Func) == "super"
}

// superTarget resolves super().name inside a method to the first base
// class defining it. Builtin bases are treated as side-effect free.
func (w *walker) superTarget(name string) Target {
	cls, ok := selfClass(w.fn)
	if !ok {
		return Target{Kind: TargetUnresolved, Qual: "super()." + name}
	}
	builtinOnly := true
	for _, base := range w.res.Bases(cls.QualName) {
		if m, ok := w.res.Method(base, name); ok {
			return Target{Kind: TargetProject, Qual: m.QualName, Decl: m}
		}
		if _, known := builtinExceptionParents[base]; !known && base != "object" {
			if _, project := w.res.Decl(base); !project {
				builtinOnly = false
			}
		}
	}
	if builtinOnly {
		return Target{Kind: TargetBuiltin, Qual: "super"}
	}
	return Target{Kind: TargetUnresolved, Qual: "super()." + name}
}

func (w *walker) dispatch(c *pyast.Call, t Target, args []symbolic.Value, site Site) symbolic.Value {
	switch t.Kind {
	case TargetProject:
		rv := w.apply(t.Decl, w.ctx.Summary(t.Qual), args, site)
		if len(t.Overrides) == 0 {
			return rv
		}
		// any override may run instead, so none of them is certain
		w.condDepth++
		for _, o := range t.Overrides {
			w.apply(o, w.ctx.Summary(o.QualName), args, site)
		}
		w.condDepth--
		return symbolic.Unknown

	case TargetClass:
		if init, ok := w.res.Method(t.Qual, "__init__"); ok {
			w.apply(init, w.ctx.Summary(init.QualName), args, site)
		}
		return symbolic.Unknown

	case TargetBuiltin, TargetExternal:
		return w.external(c, t.Qual, args, site)

	case TargetLocal:
		switch {
		case w.owned[t.Receiver] && t.Receiver != w.self:
			return symbolic.Unknown
		case w.handles[t.Receiver] == MarkNetwork && networkMethods[t.Method]:
			w.mark(MarkNetwork, site)
			return symbolic.Unknown
		case w.handles[t.Receiver] != "" && w.handles[t.Receiver] != MarkNetwork:
			w.mark(w.handles[t.Receiver], site)
			return symbolic.Unknown
		case mutatingMethods[t.Method]:
			// receiver type unknown: the mutation is recorded, the call stays unresolved
			w.mark(MarkMutate, site)
		}

	case TargetGlobalVar:
		switch {
		case mutatingMethods[t.Method]:
			w.mark(MarkGlobal, site)
			return symbolic.Unknown
		case readOnlyMethods[t.Method]:
			return symbolic.Unknown
		}
	}
	w.unknown(site)
	return symbolic.Unknown
}

// external handles callees outside the project: stubs first, then the
// built-in catalog.
func (w *walker) external(c *pyast.Call, name string, args []symbolic.Value, site Site) symbolic.Value {
	if entry, ok := w.ctx.Stub(name); ok {
		for _, k := range entry.Raises {
			w.raise(k, site)
		}
		for _, m := range entry.Has {
			w.mark(m, site)
		}
		return symbolic.Unknown
	}
	if exitFuncs[name] {
		w.raise("SystemExit", site)
		if w.condDepth == 0 {
			w.killed = true
		}
		return symbolic.Unknown
	}
	if markers := markersOf(name, c); len(markers) > 0 {
		for _, m := range markers {
			w.mark(m, site)
		}
		return symbolic.Unknown
	}
	if dynamicBuiltins[name] {
		w.unknown(site)
		return symbolic.Unknown
	}
	if pureBuiltins[name] {
		return symbolic.CallBuiltin(name, args)
	}
	if w.hier.IsException(name[strings.LastIndexByte(name, '.')+1:]) {
		return symbolic.Unknown
	}
	w.unknown(site)
	return symbolic.Unknown
}

// apply merges a callee summary into the caller at a call site.
func (w *walker) apply(callee *pyast.Decl, s *Summary, args []symbolic.Value, site Site) symbolic.Value {
	if s == nil {
		s = Unknown(site.What)
	}
	qual := s.Qual
	if callee != nil {
		qual = callee.QualName
	}
	via := func(inner []string) Site {
		out := site
		out.Chain = append([]string{qual}, inner...)
		return out
	}

	certain := false
	for _, k := range s.Kinds() {
		r := s.Raises[k]
		w.raise(k, via(r.Site.Chain))
		if r.Certainty == lattice.Certain {
			certain = true
		}
	}
	w.sum.Purity = lattice.Join(w.sum.Purity, s.Purity)
	if s.Offending != nil {
		w.offend(lattice.Impure, via(s.Offending.Chain))
	}
	for _, m := range s.MarkerNames() {
		w.mark(m, via(s.Markers[m].Site.Chain))
	}
	w.determinism(s.Deterministic)
	if !s.Resolved {
		w.sum.Resolved = false
	}
	if certain && w.condDepth == 0 {
		w.killed = true
	}

	rv := s.ReturnValue()
	if rv == nil {
		return symbolic.Unknown
	}
	if p, ok := rv.(symbolic.ParamValue); ok {
		return substitute(callee, site, p, args)
	}
	return rv
}

// substitute maps a callee return value that equals one of its parameters
// to the matching argument.
func substitute(callee *pyast.Decl, site Site, p symbolic.ParamValue, args []symbolic.Value) symbolic.Value {
	if callee == nil {
		return symbolic.Unknown
	}
	params := callee.Func.Params
	if _, bound := selfClass(callee); bound && strings.Contains(site.What, ".") {
		params = params[1:]
	}
	for i, prm := range params {
		if prm.Star != "" {
			break
		}
		if prm.Name == p.Name && i < len(args) {
			if p.Range != nil {
				if r, ok := symbolic.Numeric(args[i]); ok {
					return symbolic.FromRange(intersect(r, *p.Range))
				}
			}
			return args[i]
		}
	}
	return symbolic.Unknown
}

func intersect(a, b symbolic.RangeValue) symbolic.RangeValue {
	out := a
	if b.Lo > out.Lo {
		out.Lo = b.Lo
	}
	if b.Hi < out.Hi {
		out.Hi = b.Hi
	}
	if out.Lo > out.Hi {
		return a
	}
	return out
}
