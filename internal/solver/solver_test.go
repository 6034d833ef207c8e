package solver

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/contract"
)

func gtZero(name string) contract.Expr {
	return contract.Compare{
		Left:        contract.Name{Ident: name},
		Ops:         []string{">"},
		Comparators: []contract.Expr{contract.Lit{Value: symbolic.IntValue{Val: 0}}},
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	facts := map[string]symbolic.Value{
		"x": symbolic.RangeValue{Lo: 1, Hi: math.Inf(1), Int: true},
	}
	script, ok := Encode(facts, gtZero("x"))
	require.True(t, ok)
	assert.Equal(t, `(declare-const x Int)
(assert (>= x 1))
(push)
(assert (not (> x 0)))
(check-sat)
(pop)
(push)
(assert (> x 0))
(check-sat)
(pop)
`, script)
}

func TestEncodeExpressions(t *testing.T) {
	t.Parallel()

	lit := func(v int64) contract.Expr { return contract.Lit{Value: symbolic.IntValue{Val: v}} }
	tests := []struct {
		name string
		goal contract.Expr
		want string
		ok   bool
	}{
		{
			name: "field",
			goal: contract.Compare{Left: contract.Field{Attr: "n"}, Ops: []string{"!="}, Comparators: []contract.Expr{lit(-2)}},
			want: "(not (= |self.n| (- 2)))",
			ok:   true,
		},
		{
			name: "chained",
			goal: contract.Compare{Left: lit(0), Ops: []string{"<=", "<"}, Comparators: []contract.Expr{contract.Name{Ident: "i"}, lit(10)}},
			want: "(and (<= 0 i) (< i 10))",
			ok:   true,
		},
		{
			name: "arith and abs",
			goal: contract.Compare{
				Left:        contract.Call{Func: "abs", Args: []contract.Expr{contract.BinOp{Op: "-", X: contract.Name{Ident: "a"}, Y: contract.Name{Ident: "b"}}}},
				Ops:         []string{">="},
				Comparators: []contract.Expr{lit(0)},
			},
			want: "(>= (ite (>= (- a b) 0) (- a b) (- (- a b))) 0)",
			ok:   true,
		},
		{
			name: "membership",
			goal: contract.Compare{Left: contract.Name{Ident: "x"}, Ops: []string{"in"}, Comparators: []contract.Expr{contract.Name{Ident: "xs"}}},
		},
		{
			name: "string literal",
			goal: contract.Compare{Left: contract.Name{Ident: "s"}, Ops: []string{"=="}, Comparators: []contract.Expr{contract.Lit{Value: symbolic.StringValue{Val: "a"}}}},
		},
		{
			name: "attribute",
			goal: contract.Attr{X: contract.Name{Ident: "x"}, Attr: "closed"},
		},
		{
			name: "unknown call",
			goal: contract.Call{Func: "len", Args: []contract.Expr{contract.Name{Ident: "xs"}}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			script, ok := Encode(nil, tt.goal)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Contains(t, script, "(assert (not "+tt.want+"))")
			}
		})
	}
}

func TestEncodeFacts(t *testing.T) {
	t.Parallel()

	_, ok := Encode(map[string]symbolic.Value{"x": symbolic.StringValue{Val: "s"}}, gtZero("x"))
	assert.False(t, ok)

	script, ok := Encode(map[string]symbolic.Value{"x": symbolic.FloatValue{Val: -0.5}}, gtZero("x"))
	require.True(t, ok)
	assert.Contains(t, script, "(declare-const x Real)")
	assert.Contains(t, script, "(assert (= x (- 0.5)))")

	script, ok = Encode(map[string]symbolic.Value{"x": symbolic.ParamValue{Name: "x"}}, gtZero("x"))
	require.True(t, ok)
	assert.NotContains(t, script, "(assert (= x")
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Proved, parseVerdict([]byte("unsat\nsat\n")))
	assert.Equal(t, Contradicted, parseVerdict([]byte("sat\nunsat\n")))
	assert.Equal(t, Unknown, parseVerdict([]byte("sat\nsat\n")))
	assert.Equal(t, Unknown, parseVerdict([]byte("(error \"line 1\")\n")))
	assert.Equal(t, Unknown, parseVerdict([]byte("unknown\nsat\n")))
}

func TestZ3(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("shell script solver")
	}
	bin := filepath.Join(t.TempDir(), "fakez3")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\ncat >/dev/null\nprintf 'unsat\\nsat\\n'\n"), 0o755))

	z := NewZ3(bin, 0)
	assert.True(t, z.Available())
	assert.Equal(t, Proved, z.Query(context.Background(), nil, gtZero("x")))
	assert.Equal(t, Unknown, z.Query(context.Background(), nil, contract.Attr{X: contract.Name{Ident: "x"}, Attr: "y"}))

	missing := NewZ3(filepath.Join(t.TempDir(), "nope"), 0)
	assert.False(t, missing.Available())
	assert.Equal(t, Unknown, missing.Query(context.Background(), nil, gtZero("x")))

	assert.Equal(t, Unknown, Nop{}.Query(context.Background(), nil, gtZero("x")))
}
