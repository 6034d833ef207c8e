package matcher

import (
	"strings"

	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/pyast"
	"github.com/gnolang/dealint/internal/solver"
)

// condition reports v when sp's condition fails under b. Conditions the
// evaluator cannot decide go to the prover, and are reported at low
// confidence only when asked to.
func (c *check) condition(sp contract.Spec, b contract.Bindings, v Violation) {
	switch contract.Eval(sp.Expr, b) {
	case symbolic.Entails:
		return
	case symbolic.Contradicts:
	default:
		switch c.m.opts.Prover.Query(c.ctx, facts(b), sp.Expr) {
		case solver.Contradicted:
		case solver.Proved:
			return
		default:
			if !c.m.opts.ReportInconclusive {
				return
			}
			v.LowConfidence = true
		}
	}
	if sp.Message != "" {
		v.Message = sp.Message
	}
	v.Contract = sp.Source
	c.add(v)
}

// facts flattens bindings into the names the solver sees.
func facts(b contract.Bindings) map[string]symbolic.Value {
	out := make(map[string]symbolic.Value, len(b.Vars)+len(b.Fields))
	for k, v := range b.Vars {
		out[k] = v
	}
	for k, v := range b.Fields {
		out["self."+k] = v
	}
	return out
}

func (c *check) posts() {
	for _, sp := range c.specs.OfKind(contract.Post) {
		if sp.Expr == nil || len(sp.Params) != 1 {
			continue
		}
		for _, r := range c.sum.Returns {
			if r.Implicit {
				continue
			}
			b := contract.Bindings{Vars: map[string]symbolic.Value{sp.Params[0]: r.Value}}
			c.condition(sp, b, Violation{
				Kind:    PostconditionMayFail,
				Code:    CodePost,
				Pos:     r.Pos,
				Message: "post contract error",
				Value:   valueText(r.Value),
			})
		}
	}
}

func usesResult(sp contract.Spec) bool {
	for _, p := range sp.Params {
		if p == "result" {
			return true
		}
	}
	for _, n := range contract.Names(sp.Expr) {
		if n == "result" {
			return true
		}
	}
	return false
}

func (c *check) ensures() {
	for _, sp := range c.specs.OfKind(contract.Ensure) {
		if sp.Expr == nil {
			continue
		}
		if !usesResult(sp) {
			c.add(Violation{
				Kind:     MissingResultArg,
				Code:     CodeEnsureArgs,
				Pos:      sp.Pos,
				Message:  "ensure contract must have `result` arg",
				Contract: sp.Source,
			})
			continue
		}
		for _, r := range c.sum.Returns {
			if r.Implicit {
				continue
			}
			vars := ownParams(c.fn)
			bindLambda(vars, sp.Params, c.fn)
			vars["result"] = r.Value
			c.condition(sp, contract.Bindings{Vars: vars}, Violation{
				Kind:    PostconditionMayFail,
				Code:    CodePost,
				Pos:     r.Pos,
				Message: "ensure contract error",
				Value:   valueText(r.Value),
			})
		}
	}
}

// ownParams binds every parameter of fn to its unmodified value.
func ownParams(fn *pyast.Decl) map[string]symbolic.Value {
	vars := map[string]symbolic.Value{}
	for _, p := range fn.Func.Params {
		if p.Star == "" {
			vars[p.Name] = symbolic.ParamValue{Name: p.Name}
		}
	}
	return vars
}

// bindLambda makes a validator's own parameter names refer to the values
// of the function parameters at the same positions.
func bindLambda(vars map[string]symbolic.Value, lambda []string, fn *pyast.Decl) {
	params := fn.Func.Params
	for i, lp := range lambda {
		if lp == "result" || i >= len(params) || params[i].Star != "" {
			continue
		}
		if v, ok := vars[params[i].Name]; ok {
			vars[lp] = v
		}
	}
}

// callBindings binds callee parameters to the positional arguments of a
// call. Parameters without an argument take their literal default.
func callBindings(callee *pyast.Decl, args []symbolic.Value) map[string]symbolic.Value {
	vars := map[string]symbolic.Value{}
	params := callee.Func.Params
	if self := effect.SelfParam(callee); self != "" {
		vars[self] = symbolic.Unknown
		params = params[1:]
	}
	for i, p := range params {
		if p.Star != "" {
			break
		}
		switch {
		case i < len(args):
			vars[p.Name] = args[i]
		case p.Default != nil:
			vars[p.Name] = effect.ConstValue(p.Default)
		default:
			vars[p.Name] = symbolic.Unknown
		}
	}
	return vars
}

func formatArgs(args []symbolic.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = valueText(a)
	}
	return strings.Join(parts, ", ")
}

func (c *check) pres() {
	for _, call := range c.sum.Calls {
		if !call.Literal || call.Callee == "" {
			continue
		}
		pres := c.m.specs(call.Callee).OfKind(contract.Pre)
		if len(pres) == 0 {
			continue
		}
		callee, ok := c.m.res.Decl(call.Callee)
		if !ok || callee.Kind != pyast.DeclFunc {
			continue
		}
		for _, sp := range pres {
			vars := callBindings(callee, call.Args)
			bindLambda(vars, sp.Params, callee)
			c.condition(sp, contract.Bindings{Vars: vars}, Violation{
				Kind:    PreconditionMayFail,
				Code:    CodePre,
				Pos:     call.Pos,
				Message: "pre contract error",
				Value:   formatArgs(call.Args),
				Chain:   []string{call.Callee},
			})
		}
	}
}

// exampleCall recognizes `f(args) == expected` and `f(args)` examples of
// the function named name.
func exampleCall(e contract.Expr, name string) (contract.Call, contract.Expr, bool) {
	isOwn := func(x contract.Expr) (contract.Call, bool) {
		call, ok := x.(contract.Call)
		if !ok {
			return contract.Call{}, false
		}
		fn := call.Func[strings.LastIndexByte(call.Func, '.')+1:]
		return call, fn == name
	}
	if call, ok := isOwn(e); ok {
		return call, nil, true
	}
	cmp, ok := e.(contract.Compare)
	if !ok || len(cmp.Ops) != 1 || cmp.Ops[0] != "==" {
		return contract.Call{}, nil, false
	}
	if call, ok := isOwn(cmp.Left); ok {
		return call, cmp.Comparators[0], true
	}
	if call, ok := isOwn(cmp.Comparators[0]); ok {
		return call, cmp.Left, true
	}
	return contract.Call{}, nil, false
}

func (c *check) examples() {
	for _, ex := range c.specs.OfKind(contract.Example) {
		call, expected, ok := exampleCall(ex.Expr, c.fn.Name)
		if !ok {
			continue
		}
		args := make([]symbolic.Value, len(call.Args))
		literal := true
		for i, a := range call.Args {
			args[i] = contract.Value(a, contract.Bindings{})
			if symbolic.IsUnknown(args[i]) {
				literal = false
			}
		}
		if !literal {
			continue
		}
		var result symbolic.Value = symbolic.Unknown
		if expected != nil {
			result = contract.Value(expected, contract.Bindings{})
		}

		violated := func(value string) {
			c.add(Violation{
				Kind:     ExampleMayFail,
				Code:     CodeExample,
				Pos:      ex.Pos,
				Message:  "example violates contract",
				Value:    value,
				Contract: ex.Source,
			})
		}
		for _, sp := range c.specs {
			switch sp.Kind {
			case contract.Pre:
				vars := callBindings(c.fn, args)
				bindLambda(vars, sp.Params, c.fn)
				if contract.Eval(sp.Expr, contract.Bindings{Vars: vars}) == symbolic.Contradicts {
					violated(sp.Decorator)
				}
			case contract.Post:
				if symbolic.IsUnknown(result) || len(sp.Params) != 1 {
					continue
				}
				vars := map[string]symbolic.Value{sp.Params[0]: result}
				if contract.Eval(sp.Expr, contract.Bindings{Vars: vars}) == symbolic.Contradicts {
					violated(sp.Decorator)
				}
			case contract.Ensure:
				if symbolic.IsUnknown(result) {
					continue
				}
				vars := callBindings(c.fn, args)
				bindLambda(vars, sp.Params, c.fn)
				vars["result"] = result
				if contract.Eval(sp.Expr, contract.Bindings{Vars: vars}) == symbolic.Contradicts {
					violated(sp.Decorator)
				}
			}
		}
	}
}

// fields returns the attributes of self a condition reads.
func fields(e contract.Expr) map[string]bool {
	out := map[string]bool{}
	var walk func(contract.Expr)
	walk = func(e contract.Expr) {
		switch v := e.(type) {
		case contract.Field:
			out[v.Attr] = true
		case contract.Compare:
			walk(v.Left)
			for _, x := range v.Comparators {
				walk(x)
			}
		case contract.BoolOp:
			for _, x := range v.Values {
				walk(x)
			}
		case contract.Not:
			walk(v.X)
		case contract.Neg:
			walk(v.X)
		case contract.BinOp:
			walk(v.X)
			walk(v.Y)
		case contract.Call:
			for _, x := range v.Args {
				walk(x)
			}
		case contract.Attr:
			walk(v.X)
		case contract.Index:
			walk(v.X)
			walk(v.Index)
		case contract.SeqLit:
			for _, x := range v.Elts {
				walk(x)
			}
		}
	}
	walk(e)
	return out
}

func (c *check) invariants() {
	if effect.SelfParam(c.fn) == "" || len(c.sum.FieldWrites) == 0 {
		return
	}
	var invs contract.Specs
	for _, cls := range c.m.res.MRO(c.fn.Parent.QualName) {
		invs = append(invs, c.m.specs(cls).OfKind(contract.Invariant)...)
	}
	for _, sp := range invs {
		if sp.Expr == nil {
			continue
		}
		reads := fields(sp.Expr)
		for _, fw := range c.sum.FieldWrites {
			if !reads[fw.Field] {
				continue
			}
			b := contract.Bindings{Fields: map[string]symbolic.Value{fw.Field: fw.Value}}
			c.condition(sp, b, Violation{
				Kind:    InvariantMayFail,
				Code:    CodeInvariant,
				Pos:     fw.Pos,
				Message: "invariant error",
				Value:   fw.Field + " = " + valueText(fw.Value),
			})
		}
	}
}
