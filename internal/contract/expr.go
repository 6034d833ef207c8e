package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/pyast"
)

// Expr is a node of the contract condition language.
type Expr interface {
	contractExpr()
	String() string
}

// Name refers to a lambda parameter, a function parameter or `result`.
type Name struct {
	Ident string
}

// Field is an attribute of the object an invariant is checked on.
type Field struct {
	Attr string
}

// Lit is a literal constant.
type Lit struct {
	Value symbolic.Value
}

// Compare is a possibly chained comparison.
type Compare struct {
	Left        Expr
	Ops         []string
	Comparators []Expr
}

// BoolOp is a conjunction or disjunction.
type BoolOp struct {
	Op     string
	Values []Expr
}

// Not is logical negation.
type Not struct {
	X Expr
}

// BinOp is an arithmetic operation.
type BinOp struct {
	Op   string
	X, Y Expr
}

// Neg is unary minus.
type Neg struct {
	X Expr
}

// Call invokes a whitelisted helper, or any function inside an example.
type Call struct {
	Func string
	Args []Expr
}

// Attr is attribute access on something other than the invariant object.
type Attr struct {
	X    Expr
	Attr string
}

// Index is subscript access.
type Index struct {
	X, Index Expr
}

// SeqLit is a tuple or list display.
type SeqLit struct {
	Kind string
	Elts []Expr
}

func (Name) contractExpr()    {}
func (Field) contractExpr()   {}
func (Lit) contractExpr()     {}
func (Compare) contractExpr() {}
func (BoolOp) contractExpr()  {}
func (Not) contractExpr()     {}
func (BinOp) contractExpr()   {}
func (Neg) contractExpr()     {}
func (Call) contractExpr()    {}
func (Attr) contractExpr()    {}
func (Index) contractExpr()   {}
func (SeqLit) contractExpr()  {}

func (e Name) String() string  { return e.Ident }
func (e Field) String() string { return "self." + e.Attr }
func (e Lit) String() string   { return e.Value.String() }
func (e Not) String() string   { return "not " + e.X.String() }
func (e Neg) String() string   { return "-" + e.X.String() }
func (e Attr) String() string  { return e.X.String() + "." + e.Attr }
func (e Index) String() string { return e.X.String() + "[" + e.Index.String() + "]" }

func (e Compare) String() string {
	var sb strings.Builder
	sb.WriteString(e.Left.String())
	for i, op := range e.Ops {
		fmt.Fprintf(&sb, " %s %s", op, e.Comparators[i])
	}
	return sb.String()
}

func (e BoolOp) String() string {
	parts := make([]string, len(e.Values))
	for i, v := range e.Values {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, " "+e.Op+" ") + ")"
}

func (e BinOp) String() string {
	return "(" + e.X.String() + " " + e.Op + " " + e.Y.String() + ")"
}

func (e Call) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return e.Func + "(" + strings.Join(parts, ", ") + ")"
}

func (e SeqLit) String() string {
	parts := make([]string, len(e.Elts))
	for i, a := range e.Elts {
		parts[i] = a.String()
	}
	if e.Kind == "list" {
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Helpers is the set of callables a condition may use.
var Helpers = map[string]bool{
	"len": true, "abs": true, "isinstance": true, "min": true, "max": true,
	"all": true, "any": true, "bool": true, "int": true, "float": true,
	"str": true, "round": true, "math.isfinite": true, "math.isnan": true,
	"math.isinf": true, "math.floor": true, "math.ceil": true, "callable": true,
	"hasattr": true, "sorted": true, "set": true, "tuple": true, "list": true,
	"sum": true, "type": true,
}

// ErrUnsupported is wrapped by every conversion failure.
var ErrUnsupported = errors.New("unsupported contract expression")

type exprConverter struct {
	// self is the lambda parameter whose attributes become Fields.
	self string
	// args is set when the lambda takes the single underscore parameter,
	// in which case `_.x` means parameter x.
	args string
	// anyCall allows calls to arbitrary names (examples).
	anyCall bool
}

func (c *exprConverter) convert(e pyast.Expr) (Expr, error) {
	switch v := e.(type) {
	case *pyast.Name:
		switch v.Ident {
		case "True":
			return Lit{Value: symbolic.BoolValue{Val: true}}, nil
		case "False":
			return Lit{Value: symbolic.BoolValue{Val: false}}, nil
		case "None":
			return Lit{Value: symbolic.NoneValue{}}, nil
		}
		return Name{Ident: v.Ident}, nil
	case *pyast.Const:
		return c.constant(v)
	case *pyast.Attribute:
		if base, ok := v.X.(*pyast.Name); ok {
			switch base.Ident {
			case c.self:
				return Field{Attr: v.Attr}, nil
			case c.args:
				return Name{Ident: v.Attr}, nil
			}
		}
		x, err := c.convert(v.X)
		if err != nil {
			return nil, err
		}
		return Attr{X: x, Attr: v.Attr}, nil
	case *pyast.Subscript:
		x, err := c.convert(v.X)
		if err != nil {
			return nil, err
		}
		idx, err := c.convert(v.Index)
		if err != nil {
			return nil, err
		}
		return Index{X: x, Index: idx}, nil
	case *pyast.Compare:
		left, err := c.convert(v.Left)
		if err != nil {
			return nil, err
		}
		out := Compare{Left: left, Ops: append([]string(nil), v.Ops...)}
		for _, comp := range v.Comparators {
			ce, err := c.convert(comp)
			if err != nil {
				return nil, err
			}
			out.Comparators = append(out.Comparators, ce)
		}
		return out, nil
	case *pyast.BoolOp:
		out := BoolOp{Op: v.Op}
		for _, val := range v.Values {
			ce, err := c.convert(val)
			if err != nil {
				return nil, err
			}
			out.Values = append(out.Values, ce)
		}
		return out, nil
	case *pyast.UnaryOp:
		x, err := c.convert(v.X)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case "not":
			return Not{X: x}, nil
		case "-":
			if lit, ok := x.(Lit); ok {
				return Lit{Value: symbolic.Neg(lit.Value)}, nil
			}
			return Neg{X: x}, nil
		case "+":
			return x, nil
		}
		return nil, fmt.Errorf("%w: unary %s", ErrUnsupported, v.Op)
	case *pyast.BinOp:
		x, err := c.convert(v.X)
		if err != nil {
			return nil, err
		}
		y, err := c.convert(v.Y)
		if err != nil {
			return nil, err
		}
		return BinOp{Op: v.Op, X: x, Y: y}, nil
	case *pyast.Call:
		return c.call(v)
	case *pyast.Seq:
		if v.Kind == "set" {
			return nil, fmt.Errorf("%w: set display", ErrUnsupported)
		}
		out := SeqLit{Kind: v.Kind}
		for _, elt := range v.Elts {
			ce, err := c.convert(elt)
			if err != nil {
				return nil, err
			}
			out.Elts = append(out.Elts, ce)
		}
		return out, nil
	case *pyast.NamedExpr:
		return nil, fmt.Errorf("%w: assignment expression", ErrUnsupported)
	case *pyast.Comp:
		return nil, fmt.Errorf("%w: comprehension", ErrUnsupported)
	case *pyast.Lambda:
		return nil, fmt.Errorf("%w: nested lambda", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, e)
}

func (c *exprConverter) constant(v *pyast.Const) (Expr, error) {
	switch v.Kind {
	case pyast.ConstInt:
		return Lit{Value: symbolic.IntValue{Val: v.Int}}, nil
	case pyast.ConstFloat:
		return Lit{Value: symbolic.FloatValue{Val: v.Float}}, nil
	case pyast.ConstStr:
		return Lit{Value: symbolic.StringValue{Val: v.Str}}, nil
	case pyast.ConstBool:
		return Lit{Value: symbolic.BoolValue{Val: v.Bool}}, nil
	case pyast.ConstNone:
		return Lit{Value: symbolic.NoneValue{}}, nil
	}
	return nil, fmt.Errorf("%w: literal", ErrUnsupported)
}

func (c *exprConverter) call(v *pyast.Call) (Expr, error) {
	name := pyast.DottedName(v.Func)
	if name == "" {
		return nil, fmt.Errorf("%w: dynamic call", ErrUnsupported)
	}
	if !Helpers[name] && !c.anyCall {
		return nil, fmt.Errorf("%w: call to %s", ErrUnsupported, name)
	}
	if len(v.Keywords) > 0 && !c.anyCall {
		return nil, fmt.Errorf("%w: keyword arguments", ErrUnsupported)
	}
	out := Call{Func: name}
	for _, a := range v.Args {
		ce, err := c.convert(a)
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, ce)
	}
	return out, nil
}

// Names returns every Name referenced by e, in first-use order.
func Names(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case Name:
			if !seen[v.Ident] {
				seen[v.Ident] = true
				out = append(out, v.Ident)
			}
		case Compare:
			walk(v.Left)
			for _, c := range v.Comparators {
				walk(c)
			}
		case BoolOp:
			for _, x := range v.Values {
				walk(x)
			}
		case Not:
			walk(v.X)
		case Neg:
			walk(v.X)
		case BinOp:
			walk(v.X)
			walk(v.Y)
		case Call:
			for _, a := range v.Args {
				walk(a)
			}
		case Attr:
			walk(v.X)
		case Index:
			walk(v.X)
			walk(v.Index)
		case SeqLit:
			for _, x := range v.Elts {
				walk(x)
			}
		}
	}
	walk(e)
	return out
}
