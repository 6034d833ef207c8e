package symbolic

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	x := ParamValue{Name: "x"}
	tests := []struct {
		name string
		op   string
		a, b Value
		want Truth
	}{
		{"int less", "<", IntValue{Val: 1}, IntValue{Val: 2}, Entails},
		{"int not less", "<", IntValue{Val: 3}, IntValue{Val: 2}, Contradicts},
		{"range above", ">", RangeValue{Lo: 0, Hi: 10, Int: true}, IntValue{Val: -1}, Entails},
		{"range overlap", ">", RangeValue{Lo: 0, Hi: 10, Int: true}, IntValue{Val: 5}, Independent},
		{"string mismatch", "==", StringValue{Val: "a"}, StringValue{Val: "b"}, Contradicts},
		{"none is none", "is", NoneValue{}, NoneValue{}, Entails},
		{"param is not none", "is not", x, NoneValue{}, Independent},
		{"int is not none", "is not", IntValue{Val: 0}, NoneValue{}, Entails},
		{"same param", "==", x, x, Entails},
		{"same param strict", ">", x, x, Contradicts},
		{"same param loose", "<=", x, x, Entails},
		{"substring", "in", StringValue{Val: "a"}, StringValue{Val: "cat"}, Entails},
		{"unknown", "==", Unknown, IntValue{Val: 1}, Independent},
		{"float le", "<=", FloatValue{Val: 1.5}, IntValue{Val: 2}, Entails},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Compare(tt.op, tt.a, tt.b))
		})
	}
}

func TestTruthLogic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Contradicts, And(Entails, Contradicts))
	assert.Equal(t, Independent, And(Entails, Independent))
	assert.Equal(t, Entails, Or(Independent, Entails))
	assert.Equal(t, Independent, Or(Contradicts, Independent))
	assert.Equal(t, Independent, Not(Independent))
	assert.Equal(t, Entails, Not(Contradicts))
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Contradicts, Truthy(SeqValue{Kind: "list", Len: 0}))
	assert.Equal(t, Entails, Truthy(SeqValue{Kind: "tuple", Len: 2}))
	assert.Equal(t, Independent, Truthy(SeqValue{Kind: "list", Len: -1}))
	assert.Equal(t, Entails, Truthy(RangeValue{Lo: 1, Hi: 5, Int: true}))
	assert.Equal(t, Contradicts, Truthy(NoneValue{}))
	assert.Equal(t, Independent, Truthy(ParamValue{Name: "x"}))
}

func TestArith(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		op   string
		a, b Value
		want Value
	}{
		{"add", "+", IntValue{Val: 2}, IntValue{Val: 3}, IntValue{Val: 5}},
		{"floor div negative", "//", IntValue{Val: 7}, IntValue{Val: -2}, IntValue{Val: -4}},
		{"mod negative", "%", IntValue{Val: 7}, IntValue{Val: -2}, IntValue{Val: -1}},
		{"true div", "/", IntValue{Val: 1}, IntValue{Val: 4}, FloatValue{Val: 0.25}},
		{"div by zero", "/", IntValue{Val: 1}, IntValue{Val: 0}, Unknown},
		{"string concat", "+", StringValue{Val: "a"}, StringValue{Val: "b"}, StringValue{Val: "ab"}},
		{"string repeat", "*", StringValue{Val: "ab"}, IntValue{Val: 2}, StringValue{Val: "abab"}},
		{"range shift", "+", RangeValue{Lo: 0, Hi: 10, Int: true}, IntValue{Val: 1}, RangeValue{Lo: 1, Hi: 11, Int: true}},
		{"range scale", "*", RangeValue{Lo: -1, Hi: 2, Int: true}, IntValue{Val: -3}, RangeValue{Lo: -6, Hi: 3, Int: true}},
		{"unknown operand", "+", Unknown, IntValue{Val: 1}, Unknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Arith(tt.op, tt.a, tt.b)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}

	assert.Equal(t, IntValue{Val: -3}, Neg(IntValue{Val: 3}))
	assert.Equal(t, RangeValue{Lo: -5, Hi: -1, Int: true}, Neg(RangeValue{Lo: 1, Hi: 5, Int: true}))
}

func TestJoinAndWiden(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RangeValue{Lo: 1, Hi: 3, Int: true}, Join(IntValue{Val: 1}, IntValue{Val: 3}))
	assert.Equal(t, IntValue{Val: 1}, Join(IntValue{Val: 1}, nil))
	assert.Equal(t, Unknown, Join(BoolValue{Val: true}, IntValue{Val: 1}))
	assert.Equal(t, Unknown, Join(ParamValue{Name: "a"}, ParamValue{Name: "b"}))
	assert.Equal(t, SeqValue{Kind: "list", Len: -1}, Join(SeqValue{Kind: "list", Len: 1}, SeqValue{Kind: "list", Len: 2}))

	widened := Widen(RangeValue{Lo: 0, Hi: 1, Int: true}, RangeValue{Lo: 0, Hi: 2, Int: true})
	r, ok := widened.(RangeValue)
	require.True(t, ok)
	assert.Equal(t, 0.0, r.Lo)
	assert.True(t, math.IsInf(r.Hi, 1))

	// Widening a stable value is the identity.
	assert.Equal(t, IntValue{Val: 4}, Widen(IntValue{Val: 4}, IntValue{Val: 4}))
}

func TestRefine(t *testing.T) {
	t.Parallel()

	got := Refine(ParamValue{Name: "x"}, ">", IntValue{Val: 0})
	p, ok := got.(ParamValue)
	require.True(t, ok)
	require.NotNil(t, p.Range)
	assert.Equal(t, Entails, Compare(">", p, IntValue{Val: 0}))

	assert.Nil(t, Refine(IntValue{Val: 5}, "<", IntValue{Val: 3}))
	assert.Equal(t, RangeValue{Lo: 5, Hi: 10, Int: true}, Refine(RangeValue{Lo: 0, Hi: 10, Int: true}, ">=", IntValue{Val: 5}))
	assert.Equal(t, IntValue{Val: 3}, Refine(Unknown, "==", IntValue{Val: 3}))
	assert.Nil(t, Refine(StringValue{Val: "a"}, "==", StringValue{Val: "b"}))
	assert.Equal(t, NoneValue{}, Refine(Unknown, "is", NoneValue{}))

	assert.Equal(t, ">=", Negate("<"))
	assert.Equal(t, "not in", Negate("in"))
	assert.Equal(t, "<", Flip(">"))
}

func TestEnv(t *testing.T) {
	t.Parallel()

	a := NewEnv()
	a.Set("x", IntValue{Val: 1})
	a.Set("y", IntValue{Val: 2})
	b := NewEnv()
	b.Set("x", IntValue{Val: 3})

	joined := JoinEnv(a, b)
	assert.Equal(t, []string{"x", "y"}, joined.Keys())
	assert.Equal(t, RangeValue{Lo: 1, Hi: 3, Int: true}, joined.Get("x"))
	assert.Equal(t, Unknown, joined.Get("y"))
	assert.Equal(t, "{x: [1, 3], y: ?}", joined.String())

	assert.True(t, JoinEnv(nil, b).Equal(b))
	assert.Nil(t, JoinEnv(nil, nil))

	clone := a.Clone()
	clone.Set("x", IntValue{Val: 9})
	assert.Equal(t, IntValue{Val: 1}, a.Get("x"))
	assert.False(t, clone.Equal(a))

	var dead *Env
	assert.Equal(t, Unknown, dead.Get("x"))
	assert.Equal(t, "<dead>", dead.String())
}

func TestBoxRoundTrip(t *testing.T) {
	t.Parallel()

	lo := RangeValue{Lo: 0, Hi: math.Inf(1), Int: true}
	values := []Value{
		IntValue{Val: -3},
		FloatValue{Val: 2.5},
		BoolValue{Val: true},
		StringValue{Val: "x"},
		NoneValue{},
		RangeValue{Lo: math.Inf(-1), Hi: 4, Int: true},
		ParamValue{Name: "a", Range: &lo},
		SeqValue{Kind: "list", Len: -1},
		Unknown,
		nil,
	}
	for _, v := range values {
		b, err := json.Marshal(Box{Value: v})
		require.NoError(t, err)
		var back Box
		require.NoError(t, json.Unmarshal(b, &back))
		if v == nil {
			assert.Nil(t, back.Value)
			continue
		}
		assert.True(t, v.Equal(back.Value), "%s round-tripped to %s", v, back.Value)
	}
}

func TestCallBuiltin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, IntValue{Val: 3}, CallBuiltin("len", []Value{StringValue{Val: "abc"}}))
	assert.Equal(t, IntValue{Val: 2}, CallBuiltin("max", []Value{IntValue{Val: 1}, IntValue{Val: 2}}))
	assert.Equal(t, IntValue{Val: 4}, CallBuiltin("abs", []Value{IntValue{Val: -4}}))
	assert.Equal(t, BoolValue{Val: false}, CallBuiltin("bool", []Value{IntValue{Val: 0}}))
	assert.Equal(t, Unknown, CallBuiltin("isinstance", []Value{Unknown, Unknown}))

	n := CallBuiltin("len", []Value{Unknown})
	assert.Equal(t, Entails, Compare(">=", n, IntValue{Val: 0}))
}
