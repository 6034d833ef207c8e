package contract

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/pyast"
)

func parse(t *testing.T, src string) *pyast.Unit {
	t.Helper()
	u, err := pyast.Parse(context.Background(), "m.py", "m", []byte(src))
	require.NoError(t, err)
	return u
}

func specsOf(t *testing.T, u *pyast.Unit, res Result, qual string) Specs {
	t.Helper()
	d, ok := u.Lookup(qual)
	require.True(t, ok, qual)
	return res.Specs[d.Node().ID()]
}

func kinds(ss Specs) []Kind {
	out := make([]Kind, len(ss))
	for i, s := range ss {
		out[i] = s.Kind
	}
	return out
}

func TestExtractKinds(t *testing.T) {
	t.Parallel()

	src := `import deal

@deal.pre(lambda x: x > 0, message="x must be positive")
@deal.post(lambda result: result >= 0)
@deal.ensure(lambda x, result: result != x)
@deal.raises(ValueError, errors.CustomError)
def f(x):
    return x

@deal.safe
def g():
    return 1

@deal.pure
def h():
    return 2

@deal.has("stdout", "io")
def p():
    print(1)

@deal.chain(deal.safe, deal.pre(lambda a: a))
def c(a):
    return a

@deal.inv(lambda obj: obj.balance >= 0)
class Account:
    @deal.inherit
    def deposit(self, amount):
        self.balance += amount

@deal.example(lambda: double(2) == 4)
def double(n):
    return n * 2
`
	u := parse(t, src)
	res := Extract(u, nil)
	assert.Empty(t, res.Malformed)

	f := specsOf(t, u, res, "m.f")
	assert.Equal(t, []Kind{Pre, Post, Ensure, Raises}, kinds(f))
	assert.Equal(t, "x must be positive", f[0].Message)
	assert.Equal(t, []string{"x"}, f[0].Params)
	assert.Equal(t, "deal.pre(lambda x: x > 0, message=\"x must be positive\")", f[0].Source)
	assert.Equal(t, 3, f[0].Pos.Line)
	assert.Equal(t, []string{"ValueError", "CustomError"}, f[3].Exceptions)
	assert.Equal(t, []string{"CustomError", "ValueError"}, f.Exceptions())

	g := specsOf(t, u, res, "m.g")
	require.Len(t, g, 1)
	assert.Equal(t, Raises, g[0].Kind)
	assert.Empty(t, g[0].Exceptions)
	assert.True(t, g.DeclaresRaises())

	h := specsOf(t, u, res, "m.h")
	assert.Equal(t, []Kind{Purity, Determinism, Raises, Has}, kinds(h))
	assert.True(t, h.ClaimsPure())
	assert.True(t, h.ClaimsDeterministic())
	markers, ok := h.Markers()
	assert.True(t, ok)
	assert.Empty(t, markers)

	p := specsOf(t, u, res, "m.p")
	markers, ok = p.Markers()
	assert.True(t, ok)
	assert.Equal(t, []string{"io", "stdout"}, markers)

	c := specsOf(t, u, res, "m.c")
	assert.Equal(t, []Kind{Raises, Pre}, kinds(c))

	acc := specsOf(t, u, res, "m.Account")
	require.Len(t, acc, 1)
	assert.Equal(t, Invariant, acc[0].Kind)
	assert.Equal(t, Compare{Left: Field{Attr: "balance"}, Ops: []string{">="}, Comparators: []Expr{Lit{Value: symbolic.IntValue{Val: 0}}}}, acc[0].Expr)

	dep := specsOf(t, u, res, "m.Account.deposit")
	assert.Equal(t, []Kind{Inherit}, kinds(dep))

	ex := specsOf(t, u, res, "m.double")
	require.Len(t, ex, 1)
	assert.Equal(t, "double(2) == 4", ex[0].Expr.String())
}

func TestExtractAliases(t *testing.T) {
	t.Parallel()

	src := `import deal as d
from deal import raises, pre as precondition

@d.safe
def a():
    pass

@raises(KeyError)
@precondition(lambda x: x)
def b(x):
    pass

@other.pre(lambda x: x)
def c(x):
    pass
`
	u := parse(t, src)
	res := Extract(u, nil)
	assert.Equal(t, []Kind{Raises}, kinds(specsOf(t, u, res, "m.a")))
	assert.Equal(t, []Kind{Raises, Pre}, kinds(specsOf(t, u, res, "m.b")))
	assert.Empty(t, specsOf(t, u, res, "m.c"))
}

func TestExtractMalformed(t *testing.T) {
	t.Parallel()

	src := `import deal

def check(x):
    return True

@deal.pre(check)
def a(x):
    pass

@deal.pre(lambda x: (y := x) > 0)
def b(x):
    pass

@deal.pre(lambda xs: all([x > 0 for x in xs]))
def c(xs):
    pass

@deal.post(lambda result: compute(result))
def d():
    pass

@deal.raises("ValueError")
def e():
    pass

@deal.post(lambda result: result > 0)
def ok():
    return 1
`
	u := parse(t, src)
	res := Extract(u, nil)
	require.Len(t, res.Malformed, 5)
	lines := make([]int, len(res.Malformed))
	for i, m := range res.Malformed {
		lines[i] = m.Pos.Line
		assert.Equal(t, "m.py", m.Path)
		assert.NotEmpty(t, m.Reason)
	}
	assert.Equal(t, []int{6, 10, 14, 18, 22}, lines)
	assert.Contains(t, res.Malformed[0].Reason, "not a lambda")
	assert.Contains(t, res.Malformed[3].Reason, "compute")

	assert.Len(t, specsOf(t, u, res, "m.ok"), 1)
	assert.Empty(t, specsOf(t, u, res, "m.a"))
}

func TestCustomPatterns(t *testing.T) {
	t.Parallel()

	src := `import contracts

@contracts.requires(lambda x: x > 0)
def f(x):
    return x
`
	u := parse(t, src)
	res := Extract(u, Patterns{"contracts.requires": ActPre})
	assert.Equal(t, []Kind{Pre}, kinds(specsOf(t, u, res, "m.f")))
}

func TestEval(t *testing.T) {
	t.Parallel()

	u := parse(t, `import deal

@deal.post(lambda result: result >= 0)
@deal.pre(lambda _: _.x > 0 and _.y is not None)
@deal.pre(lambda a, b: 0 <= a < len(b))
@deal.pre(lambda s: abs(s) < 10 or not s)
def f(x, y):
    pass
`)
	res := Extract(u, nil)
	specs := specsOf(t, u, res, "m.f")
	require.Len(t, specs, 4)
	post, underscore, chained, mixed := specs[0], specs[1], specs[2], specs[3]

	vars := func(kv ...any) Bindings {
		b := Bindings{Vars: map[string]symbolic.Value{}}
		for i := 0; i < len(kv); i += 2 {
			b.Vars[kv[i].(string)] = kv[i+1].(symbolic.Value)
		}
		return b
	}

	tests := []struct {
		name string
		spec Spec
		b    Bindings
		want symbolic.Truth
	}{
		{"negative result", post, vars("result", symbolic.IntValue{Val: -1}), symbolic.Contradicts},
		{"non-negative range", post, vars("result", symbolic.RangeValue{Lo: 0, Hi: math.Inf(1), Int: true}), symbolic.Entails},
		{"unknown result", post, vars(), symbolic.Independent},
		{"underscore fields", underscore, vars("x", symbolic.IntValue{Val: 0}), symbolic.Contradicts},
		{"underscore holds", underscore, vars("x", symbolic.IntValue{Val: 3}, "y", symbolic.IntValue{Val: 1}), symbolic.Entails},
		{"chained in bounds", chained, vars("a", symbolic.IntValue{Val: 1}, "b", symbolic.StringValue{Val: "abc"}), symbolic.Entails},
		{"chained out of bounds", chained, vars("a", symbolic.IntValue{Val: 3}, "b", symbolic.SeqValue{Kind: "list", Len: 2}), symbolic.Contradicts},
		{"abs or not", mixed, vars("s", symbolic.IntValue{Val: 0}), symbolic.Entails},
		{"abs too large", mixed, vars("s", symbolic.IntValue{Val: -12}), symbolic.Contradicts},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Eval(tt.spec.Expr, tt.b))
		})
	}
}

func TestEvalFieldsAndCalls(t *testing.T) {
	t.Parallel()

	inv := Compare{Left: Field{Attr: "n"}, Ops: []string{">="}, Comparators: []Expr{Lit{Value: symbolic.IntValue{Val: 0}}}}
	b := Bindings{Fields: map[string]symbolic.Value{"n": symbolic.IntValue{Val: -2}}}
	assert.Equal(t, symbolic.Contradicts, Eval(inv, b))

	example := Compare{
		Left:        Call{Func: "double", Args: []Expr{Lit{Value: symbolic.IntValue{Val: 2}}}},
		Ops:         []string{"=="},
		Comparators: []Expr{Lit{Value: symbolic.IntValue{Val: 5}}},
	}
	b = Bindings{Call: func(name string, args []symbolic.Value) symbolic.Value {
		return symbolic.IntValue{Val: 4}
	}}
	assert.Equal(t, symbolic.Contradicts, Eval(example, b))
	assert.Equal(t, symbolic.Independent, Eval(example, Bindings{}))
}

func TestMergeInherited(t *testing.T) {
	t.Parallel()

	own := Specs{{Kind: Inherit, Source: "deal.inherit"}, {Kind: Raises, Source: "deal.safe"}}
	base := Specs{{Kind: Raises, Source: "deal.safe"}, {Kind: Post, Source: "deal.post(lambda result: result)"}}
	merged := MergeInherited(own, base)
	assert.Equal(t, []Kind{Inherit, Raises, Post}, kinds(merged))
}

func TestSpecJSON(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Kind:      Post,
		Expr:      Compare{Left: Name{Ident: "result"}, Ops: []string{">="}, Comparators: []Expr{Lit{Value: symbolic.IntValue{Val: 0}}}},
		Params:    []string{"result"},
		Source:    "deal.post(lambda result: result >= 0)",
		Decorator: "deal.post",
		Pos:       pyast.Pos{Line: 3, Column: 2},
	}
	b, err := json.Marshal(spec)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "post", got["kind"])
	assert.Equal(t, "result >= 0", got["condition"])
	assert.Equal(t, "deal.post", got["decorator"])

	var back Spec
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Post, back.Kind)
	assert.Equal(t, spec.Source, back.Source)
}
