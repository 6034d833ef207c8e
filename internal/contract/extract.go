package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gnolang/dealint/internal/pyast"
)

// Action names what a recognized decorator contributes.
type Action string

const (
	ActPre              Action = "pre"
	ActPost             Action = "post"
	ActEnsure           Action = "ensure"
	ActInv              Action = "inv"
	ActRaises           Action = "raises"
	ActSafe             Action = "safe"
	ActPure             Action = "pure"
	ActHas              Action = "has"
	ActExample          Action = "example"
	ActChain            Action = "chain"
	ActInherit          Action = "inherit"
	ActDeterministic    Action = "deterministic"
	ActNondeterministic Action = "nondeterministic"
)

// Actions lists every valid action.
var Actions = []Action{
	ActPre, ActPost, ActEnsure, ActInv, ActRaises, ActSafe, ActPure, ActHas,
	ActExample, ActChain, ActInherit, ActDeterministic, ActNondeterministic,
}

// ValidAction reports whether a is a known action.
func ValidAction(a Action) bool {
	for _, known := range Actions {
		if known == a {
			return true
		}
	}
	return false
}

// Patterns maps fully qualified decorator names to actions.
type Patterns map[string]Action

// DefaultPatterns recognizes the deal library's decorators.
func DefaultPatterns() Patterns {
	p := make(Patterns, len(Actions))
	for _, a := range Actions {
		p["deal."+string(a)] = a
	}
	return p
}

// Result is the outcome of extracting one unit.
type Result struct {
	Specs     map[pyast.NodeID]Specs
	Malformed []Malformed
}

// Extract collects the contracts of every declaration in u. Malformed
// contracts are reported and dropped; extraction always covers the whole
// unit.
func Extract(u *pyast.Unit, patterns Patterns) Result {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	x := &extractor{
		unit:     u,
		patterns: patterns,
		aliases:  importAliases(u.Body),
		res:      Result{Specs: map[pyast.NodeID]Specs{}},
	}
	for _, d := range u.Decls {
		var specs Specs
		for _, dec := range d.Decorators() {
			specs = append(specs, x.decorator(dec, d)...)
		}
		if len(specs) > 0 {
			x.res.Specs[d.Node().ID()] = specs
		}
	}
	return x.res
}

type extractor struct {
	unit     *pyast.Unit
	patterns Patterns
	aliases  map[string]string
	res      Result
}

// importAliases maps local names bound by module-level imports to the
// dotted names they refer to.
func importAliases(body []pyast.Stmt) map[string]string {
	out := map[string]string{}
	for _, s := range body {
		imp, ok := s.(*pyast.Import)
		if !ok {
			continue
		}
		for _, a := range imp.Names {
			switch {
			case imp.From && imp.Level == 0:
				local := a.Name
				if a.AsName != "" {
					local = a.AsName
				}
				out[local] = imp.Module + "." + a.Name
			case !imp.From && a.AsName != "":
				out[a.AsName] = a.Name
			}
		}
	}
	return out
}

func (x *extractor) canonical(dotted string) string {
	head, rest, found := strings.Cut(dotted, ".")
	target, ok := x.aliases[head]
	if !ok {
		return dotted
	}
	if !found {
		return target
	}
	return target + "." + rest
}

func (x *extractor) decorator(dec pyast.Expr, d *pyast.Decl) Specs {
	target := dec
	var call *pyast.Call
	if c, ok := dec.(*pyast.Call); ok {
		call = c
		target = c.Func
	}
	dotted := pyast.DottedName(target)
	if dotted == "" {
		return nil
	}
	name := x.canonical(dotted)
	action, ok := x.patterns[name]
	if !ok {
		return nil
	}
	specs, err := x.build(action, name, dec, call, d)
	if err != nil {
		x.res.Malformed = append(x.res.Malformed, Malformed{
			Path:      x.unit.Path,
			Pos:       dec.Pos(),
			Decorator: name,
			Source:    x.source(dec),
			Reason:    err.Error(),
		})
		return nil
	}
	return specs
}

func (x *extractor) build(action Action, name string, dec pyast.Expr, call *pyast.Call, d *pyast.Decl) (Specs, error) {
	base := Spec{Source: x.source(dec), Pos: dec.Pos(), Decorator: name}
	var args []pyast.Expr
	if call != nil {
		args = call.Args
		for _, kw := range call.Keywords {
			if kw.Name != "message" {
				continue
			}
			if c, ok := kw.Value.(*pyast.Const); ok && c.Kind == pyast.ConstStr {
				base.Message = c.Str
			}
		}
	}

	switch action {
	case ActPre, ActPost, ActEnsure, ActInv, ActExample:
		if len(args) != 1 {
			return nil, fmt.Errorf("expected one validator, got %d", len(args))
		}
		spec, err := x.condition(action, args[0], base)
		if err != nil {
			return nil, err
		}
		if action == ActInv && d.Kind != pyast.DeclClass {
			return nil, errors.New("invariant on a function")
		}
		return Specs{spec}, nil
	case ActRaises:
		spec := base
		spec.Kind = Raises
		spec.Exceptions = []string{}
		for _, a := range args {
			kind := ExceptionName(a)
			if kind == "" {
				return nil, errors.New("exception must be a class name")
			}
			spec.Exceptions = append(spec.Exceptions, kind)
		}
		return Specs{spec}, nil
	case ActSafe:
		spec := base
		spec.Kind = Raises
		spec.Exceptions = []string{}
		return Specs{spec}, nil
	case ActPure:
		purity, det, raises, has := base, base, base, base
		purity.Kind, purity.Value = Purity, true
		det.Kind, det.Value = Determinism, true
		raises.Kind, raises.Exceptions = Raises, []string{}
		has.Kind, has.Markers = Has, []string{}
		return Specs{purity, det, raises, has}, nil
	case ActHas:
		spec := base
		spec.Kind = Has
		spec.Markers = []string{}
		for _, a := range args {
			c, ok := a.(*pyast.Const)
			if !ok || c.Kind != pyast.ConstStr {
				return nil, errors.New("markers must be string literals")
			}
			spec.Markers = append(spec.Markers, c.Str)
		}
		return Specs{spec}, nil
	case ActDeterministic, ActNondeterministic:
		spec := base
		spec.Kind = Determinism
		spec.Value = action == ActDeterministic
		return Specs{spec}, nil
	case ActInherit:
		spec := base
		spec.Kind = Inherit
		return Specs{spec}, nil
	case ActChain:
		var out Specs
		for _, a := range args {
			before := len(x.res.Malformed)
			specs := x.decorator(a, d)
			if specs == nil && len(x.res.Malformed) == before {
				return nil, fmt.Errorf("chain member %s is not a contract", x.source(a))
			}
			out = append(out, specs...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown action %q", action)
}

var actionKinds = map[Action]Kind{
	ActPre:     Pre,
	ActPost:    Post,
	ActEnsure:  Ensure,
	ActInv:     Invariant,
	ActExample: Example,
}

func (x *extractor) condition(action Action, arg pyast.Expr, base Spec) (Spec, error) {
	lambda, ok := arg.(*pyast.Lambda)
	if !ok {
		return Spec{}, errors.New("validator is not a lambda")
	}
	spec := base
	spec.Kind = actionKinds[action]
	for _, p := range lambda.Params {
		if p.Star != "" {
			return Spec{}, errors.New("variadic validator parameters")
		}
		spec.Params = append(spec.Params, p.Name)
	}

	conv := exprConverter{}
	switch action {
	case ActInv:
		if len(spec.Params) != 1 {
			return Spec{}, errors.New("invariant takes exactly one parameter")
		}
		conv.self = spec.Params[0]
	case ActPost:
		if len(spec.Params) != 1 {
			return Spec{}, errors.New("postcondition takes exactly one parameter")
		}
	case ActExample:
		if len(spec.Params) != 0 {
			return Spec{}, errors.New("example takes no parameters")
		}
		conv.anyCall = true
	default:
		if len(spec.Params) == 1 && spec.Params[0] == "_" {
			conv.args = "_"
		}
	}
	expr, err := conv.convert(lambda.Body)
	if err != nil {
		return Spec{}, err
	}
	spec.Expr = expr
	return spec, nil
}

// ExceptionName returns the class name an exception expression refers to:
// the last segment of a dotted name, or of the callee when instantiated.
func ExceptionName(e pyast.Expr) string {
	if c, ok := e.(*pyast.Call); ok {
		e = c.Func
	}
	dotted := pyast.DottedName(e)
	if dotted == "" {
		return ""
	}
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}

func (x *extractor) source(n pyast.Node) string {
	return SourceText(x.unit, n)
}

// SourceText returns the source slice a node spans.
func SourceText(u *pyast.Unit, n pyast.Node) string {
	lines := u.Lines()
	start, end := n.Pos(), n.End()
	if start.Line < 1 || end.Line > len(lines) || start.Line > end.Line {
		return ""
	}
	if start.Line == end.Line {
		line := lines[start.Line-1]
		return clip(line, start.Column-1, end.Column-1)
	}
	var sb strings.Builder
	sb.WriteString(clip(lines[start.Line-1], start.Column-1, -1))
	for l := start.Line; l < end.Line-1; l++ {
		sb.WriteByte('\n')
		sb.WriteString(lines[l])
	}
	sb.WriteByte('\n')
	sb.WriteString(clip(lines[end.Line-1], 0, end.Column-1))
	return sb.String()
}

func clip(s string, from, to int) string {
	if from < 0 {
		from = 0
	}
	if from > len(s) {
		return ""
	}
	if to < 0 || to > len(s) {
		to = len(s)
	}
	if to < from {
		return ""
	}
	return s[from:to]
}
