package contract

import (
	"github.com/gnolang/dealint/internal/analysis/symbolic"
)

// Bindings supplies abstract values for the names a condition references.
// Missing names evaluate to Unknown.
type Bindings struct {
	Vars   map[string]symbolic.Value
	Fields map[string]symbolic.Value
	// Call, when set, evaluates calls that are not helpers.
	Call func(name string, args []symbolic.Value) symbolic.Value
}

func (b Bindings) lookup(m map[string]symbolic.Value, name string) symbolic.Value {
	if v, ok := m[name]; ok && v != nil {
		return v
	}
	return symbolic.Unknown
}

// Eval decides a condition under the given bindings.
func Eval(e Expr, b Bindings) symbolic.Truth {
	switch v := e.(type) {
	case Compare:
		left := Value(v.Left, b)
		out := symbolic.Entails
		for i, op := range v.Ops {
			right := Value(v.Comparators[i], b)
			out = symbolic.And(out, symbolic.Compare(op, left, right))
			if out == symbolic.Contradicts {
				return out
			}
			left = right
		}
		return out
	case BoolOp:
		if v.Op == "and" {
			out := symbolic.Entails
			for _, x := range v.Values {
				out = symbolic.And(out, Eval(x, b))
			}
			return out
		}
		out := symbolic.Contradicts
		for _, x := range v.Values {
			out = symbolic.Or(out, Eval(x, b))
		}
		return out
	case Not:
		return symbolic.Not(Eval(v.X, b))
	}
	return symbolic.Truthy(Value(e, b))
}

// Value evaluates e to an abstract value.
func Value(e Expr, b Bindings) symbolic.Value {
	switch v := e.(type) {
	case Lit:
		return v.Value
	case Name:
		return b.lookup(b.Vars, v.Ident)
	case Field:
		return b.lookup(b.Fields, v.Attr)
	case Compare, BoolOp, Not:
		return truthValue(Eval(e, b))
	case BinOp:
		return symbolic.Arith(v.Op, Value(v.X, b), Value(v.Y, b))
	case Neg:
		return symbolic.Neg(Value(v.X, b))
	case SeqLit:
		return symbolic.SeqValue{Kind: v.Kind, Len: len(v.Elts)}
	case Call:
		args := make([]symbolic.Value, len(v.Args))
		for i, a := range v.Args {
			args[i] = Value(a, b)
		}
		if Helpers[v.Func] {
			return symbolic.CallBuiltin(v.Func, args)
		}
		if b.Call != nil {
			if out := b.Call(v.Func, args); out != nil {
				return out
			}
		}
	}
	return symbolic.Unknown
}

func truthValue(t symbolic.Truth) symbolic.Value {
	switch t {
	case symbolic.Entails:
		return symbolic.BoolValue{Val: true}
	case symbolic.Contradicts:
		return symbolic.BoolValue{Val: false}
	}
	return symbolic.Unknown
}
