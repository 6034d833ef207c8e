package symbolic

import (
	"math"
	"strings"
)

// Truth is the three-valued outcome of evaluating a condition.
type Truth int

const (
	// Independent means the facts neither prove nor refute the condition.
	Independent Truth = iota
	// Entails means the condition holds under the facts.
	Entails
	// Contradicts means the condition is false under the facts.
	Contradicts
)

func (t Truth) String() string {
	switch t {
	case Entails:
		return "entails"
	case Contradicts:
		return "contradicts"
	default:
		return "independent"
	}
}

// Not negates t.
func Not(t Truth) Truth {
	switch t {
	case Entails:
		return Contradicts
	case Contradicts:
		return Entails
	}
	return Independent
}

// And combines two truths with Kleene conjunction.
func And(a, b Truth) Truth {
	if a == Contradicts || b == Contradicts {
		return Contradicts
	}
	if a == Entails && b == Entails {
		return Entails
	}
	return Independent
}

// Or combines two truths with Kleene disjunction.
func Or(a, b Truth) Truth {
	if a == Entails || b == Entails {
		return Entails
	}
	if a == Contradicts && b == Contradicts {
		return Contradicts
	}
	return Independent
}

// FromBool lifts a concrete boolean.
func FromBool(b bool) Truth {
	if b {
		return Entails
	}
	return Contradicts
}

// Truthy evaluates Python truthiness of v.
func Truthy(v Value) Truth {
	switch x := v.(type) {
	case BoolValue:
		return FromBool(x.Val)
	case IntValue:
		return FromBool(x.Val != 0)
	case FloatValue:
		return FromBool(x.Val != 0)
	case StringValue:
		return FromBool(x.Val != "")
	case NoneValue:
		return Contradicts
	case SeqValue:
		if x.Len < 0 {
			return Independent
		}
		return FromBool(x.Len > 0)
	}
	if r, ok := Numeric(v); ok {
		if r.Lo > 0 || r.Hi < 0 {
			return Entails
		}
		if r.Lo == 0 && r.Hi == 0 {
			return Contradicts
		}
	}
	return Independent
}

// IsZero reports whether v is known to be numerically zero.
func IsZero(v Value) Truth {
	r, ok := Numeric(v)
	if !ok {
		return Independent
	}
	if r.Lo == 0 && r.Hi == 0 {
		return Entails
	}
	if r.Lo > 0 || r.Hi < 0 {
		return Contradicts
	}
	return Independent
}

// Compare evaluates "a op b" for a single comparison operator.
func Compare(op string, a, b Value) Truth {
	if a == nil || b == nil {
		return Independent
	}
	switch op {
	case "==":
		return equals(a, b)
	case "!=":
		return Not(equals(a, b))
	case "is":
		return identity(a, b)
	case "is not":
		return Not(identity(a, b))
	case "in":
		return contains(b, a)
	case "not in":
		return Not(contains(b, a))
	case "<", "<=", ">", ">=":
		return order(op, a, b)
	}
	return Independent
}

func equals(a, b Value) Truth {
	if pa, ok := a.(ParamValue); ok {
		if pb, ok := b.(ParamValue); ok && pa.Name == pb.Name {
			return Entails
		}
	}
	if IsUnknown(a) || IsUnknown(b) {
		return Independent
	}
	_, aNone := a.(NoneValue)
	_, bNone := b.(NoneValue)
	if aNone || bNone {
		if aNone && bNone {
			return Entails
		}
		if isConcrete(a) && isConcrete(b) {
			return Contradicts
		}
		return Independent
	}
	if sa, ok := a.(StringValue); ok {
		if sb, ok := b.(StringValue); ok {
			return FromBool(sa.Val == sb.Val)
		}
		if _, ok := Numeric(b); ok {
			return Contradicts
		}
		return Independent
	}
	ra, okA := Numeric(a)
	rb, okB := Numeric(b)
	if !okA || !okB {
		return Independent
	}
	if ra.Hi < rb.Lo || rb.Hi < ra.Lo {
		return Contradicts
	}
	if ra.Lo == ra.Hi && rb.Lo == rb.Hi && ra.Lo == rb.Lo {
		return Entails
	}
	return Independent
}

// isConcrete reports whether v is a single known runtime value or a
// numeric range, as opposed to a parameter or unknown.
func isConcrete(v Value) bool {
	switch v.(type) {
	case IntValue, FloatValue, BoolValue, StringValue, NoneValue, RangeValue, SeqValue:
		return true
	}
	return false
}

func identity(a, b Value) Truth {
	_, aNone := a.(NoneValue)
	_, bNone := b.(NoneValue)
	switch {
	case aNone && bNone:
		return Entails
	case aNone && isConcrete(b), bNone && isConcrete(a):
		return Contradicts
	}
	if ba, ok := a.(BoolValue); ok {
		if bb, ok := b.(BoolValue); ok {
			return FromBool(ba.Val == bb.Val)
		}
	}
	return Independent
}

func contains(container, item Value) Truth {
	hay, ok := container.(StringValue)
	if !ok {
		return Independent
	}
	needle, ok := item.(StringValue)
	if !ok {
		return Independent
	}
	return FromBool(strings.Contains(hay.Val, needle.Val))
}

func order(op string, a, b Value) Truth {
	if pa, ok := a.(ParamValue); ok {
		if pb, ok := b.(ParamValue); ok && pa.Name == pb.Name {
			return FromBool(op == "<=" || op == ">=")
		}
	}
	if sa, ok := a.(StringValue); ok {
		if sb, ok := b.(StringValue); ok {
			c := strings.Compare(sa.Val, sb.Val)
			switch op {
			case "<":
				return FromBool(c < 0)
			case "<=":
				return FromBool(c <= 0)
			case ">":
				return FromBool(c > 0)
			default:
				return FromBool(c >= 0)
			}
		}
		return Independent
	}
	ra, okA := Numeric(a)
	rb, okB := Numeric(b)
	if !okA || !okB {
		return Independent
	}
	switch op {
	case "<":
		if ra.Hi < rb.Lo {
			return Entails
		}
		if ra.Lo >= rb.Hi {
			return Contradicts
		}
	case "<=":
		if ra.Hi <= rb.Lo {
			return Entails
		}
		if ra.Lo > rb.Hi {
			return Contradicts
		}
	case ">":
		return order("<", b, a)
	case ">=":
		return order("<=", b, a)
	}
	return Independent
}

// Arith evaluates a binary arithmetic operator.
func Arith(op string, a, b Value) Value {
	if a == nil || b == nil {
		return Unknown
	}
	if v, ok := constArith(op, a, b); ok {
		return v
	}
	ra, okA := Numeric(a)
	rb, okB := Numeric(b)
	if !okA || !okB {
		return Unknown
	}
	isInt := ra.Int && rb.Int
	switch op {
	case "+":
		return FromRange(RangeValue{Lo: ra.Lo + rb.Lo, Hi: ra.Hi + rb.Hi, Int: isInt})
	case "-":
		return FromRange(RangeValue{Lo: ra.Lo - rb.Hi, Hi: ra.Hi - rb.Lo, Int: isInt})
	case "*":
		return FromRange(mulRange(ra, rb, isInt))
	case "/":
		if rb.Lo <= 0 && rb.Hi >= 0 {
			return Unknown
		}
		inv := RangeValue{Lo: 1 / rb.Hi, Hi: 1 / rb.Lo}
		r := mulRange(ra, inv, false)
		return FromRange(r)
	}
	return Unknown
}

func mulRange(a, b RangeValue, isInt bool) RangeValue {
	products := []float64{mul(a.Lo, b.Lo), mul(a.Lo, b.Hi), mul(a.Hi, b.Lo), mul(a.Hi, b.Hi)}
	out := RangeValue{Lo: products[0], Hi: products[0], Int: isInt}
	for _, p := range products[1:] {
		out.Lo = math.Min(out.Lo, p)
		out.Hi = math.Max(out.Hi, p)
	}
	return out
}

// mul treats 0 * inf as 0, which is sound for interval bounds.
func mul(x, y float64) float64 {
	if x == 0 || y == 0 {
		return 0
	}
	return x * y
}

func constArith(op string, a, b Value) (Value, bool) {
	switch x := a.(type) {
	case IntValue:
		y, ok := b.(IntValue)
		if !ok {
			break
		}
		switch op {
		case "+":
			return IntValue{Val: x.Val + y.Val}, true
		case "-":
			return IntValue{Val: x.Val - y.Val}, true
		case "*":
			return IntValue{Val: x.Val * y.Val}, true
		case "//":
			if y.Val == 0 {
				return Unknown, true
			}
			return IntValue{Val: floorDiv(x.Val, y.Val)}, true
		case "%":
			if y.Val == 0 {
				return Unknown, true
			}
			return IntValue{Val: x.Val - floorDiv(x.Val, y.Val)*y.Val}, true
		case "/":
			if y.Val == 0 {
				return Unknown, true
			}
			return FloatValue{Val: float64(x.Val) / float64(y.Val)}, true
		}
	case FloatValue:
		y, ok := Numeric(b)
		if !ok || y.Lo != y.Hi {
			break
		}
		switch op {
		case "+":
			return FloatValue{Val: x.Val + y.Lo}, true
		case "-":
			return FloatValue{Val: x.Val - y.Lo}, true
		case "*":
			return FloatValue{Val: x.Val * y.Lo}, true
		case "/":
			if y.Lo == 0 {
				return Unknown, true
			}
			return FloatValue{Val: x.Val / y.Lo}, true
		}
	case StringValue:
		switch y := b.(type) {
		case StringValue:
			if op == "+" {
				return StringValue{Val: x.Val + y.Val}, true
			}
		case IntValue:
			if op == "*" && y.Val >= 0 && y.Val < 1<<16 {
				return StringValue{Val: strings.Repeat(x.Val, int(y.Val))}, true
			}
		}
	}
	return nil, false
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

// Neg evaluates unary minus.
func Neg(v Value) Value {
	switch x := v.(type) {
	case IntValue:
		return IntValue{Val: -x.Val}
	case FloatValue:
		return FloatValue{Val: -x.Val}
	case BoolValue:
		if x.Val {
			return IntValue{Val: -1}
		}
		return IntValue{Val: 0}
	}
	if r, ok := Numeric(v); ok {
		return FromRange(RangeValue{Lo: -r.Hi, Hi: -r.Lo, Int: r.Int})
	}
	return Unknown
}

// Refine narrows v under the assumption "v op c" holds for the numeric
// constant c. It returns nil when the assumption is unsatisfiable.
func Refine(v Value, op string, c Value) Value {
	rc, ok := Numeric(c)
	if !ok || rc.Lo != rc.Hi {
		return refineNonNumeric(v, op, c)
	}
	bound := rc.Lo
	current, known := Numeric(v)
	if !known {
		current = RangeValue{Lo: math.Inf(-1), Hi: math.Inf(1), Int: rc.Int && isIntLike(v)}
	}
	next, sat := narrow(current, op, bound)
	if !sat {
		return nil
	}
	switch x := v.(type) {
	case ParamValue:
		return ParamValue{Name: x.Name, Range: &next}
	case IntValue, FloatValue, BoolValue:
		return v
	case RangeValue, UnknownValue:
		switch {
		case !known && op == "==":
			return c
		case !known && op == "!=":
			return v
		}
		return FromRange(next)
	}
	return v
}

func isIntLike(v Value) bool {
	switch v.(type) {
	case IntValue, BoolValue:
		return true
	}
	return false
}

func narrow(r RangeValue, op string, c float64) (RangeValue, bool) {
	step := func(x float64, dir float64) float64 {
		if r.Int && c == math.Trunc(c) {
			return x + dir
		}
		return math.Nextafter(x, x+dir)
	}
	switch op {
	case "<":
		r.Hi = math.Min(r.Hi, step(c, -1))
	case "<=":
		r.Hi = math.Min(r.Hi, c)
	case ">":
		r.Lo = math.Max(r.Lo, step(c, 1))
	case ">=":
		r.Lo = math.Max(r.Lo, c)
	case "==":
		r.Lo = math.Max(r.Lo, c)
		r.Hi = math.Min(r.Hi, c)
	case "!=":
		if r.Lo == c && r.Hi == c {
			return r, false
		}
		if r.Lo == c {
			r.Lo = step(c, 1)
		}
		if r.Hi == c {
			r.Hi = step(c, -1)
		}
	default:
		return r, true
	}
	return r, r.Lo <= r.Hi
}

func refineNonNumeric(v Value, op string, c Value) Value {
	t := Compare(op, v, c)
	if t == Contradicts {
		return nil
	}
	switch op {
	case "==", "is":
		if IsUnknown(v) && isConcrete(c) {
			return c
		}
	}
	return v
}

// Flip mirrors a comparison so that "c op x" can be read as "x op' c".
func Flip(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}

// Negate returns the operator for the negated comparison.
func Negate(op string) string {
	switch op {
	case "<":
		return ">="
	case "<=":
		return ">"
	case ">":
		return "<="
	case ">=":
		return "<"
	case "==":
		return "!="
	case "!=":
		return "=="
	case "is":
		return "is not"
	case "is not":
		return "is"
	case "in":
		return "not in"
	case "not in":
		return "in"
	}
	return ""
}
