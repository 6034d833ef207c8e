package symbolic

import (
	"fmt"
	"math"
	"strconv"
)

// Value is an abstract value. A nil Value means "no value" (bottom).
type Value interface {
	isValue()
	String() string
	Equal(other Value) bool
}

// IntValue is an integer constant.
type IntValue struct {
	Val int64
}

func (IntValue) isValue() {}
func (v IntValue) String() string {
	return strconv.FormatInt(v.Val, 10)
}

func (v IntValue) Equal(other Value) bool {
	o, ok := other.(IntValue)
	return ok && o.Val == v.Val
}

// FloatValue is a floating point constant.
type FloatValue struct {
	Val float64
}

func (FloatValue) isValue() {}
func (v FloatValue) String() string {
	return strconv.FormatFloat(v.Val, 'g', -1, 64)
}

func (v FloatValue) Equal(other Value) bool {
	o, ok := other.(FloatValue)
	return ok && o.Val == v.Val
}

// BoolValue is True or False.
type BoolValue struct {
	Val bool
}

func (BoolValue) isValue() {}
func (v BoolValue) String() string {
	if v.Val {
		return "True"
	}
	return "False"
}

func (v BoolValue) Equal(other Value) bool {
	o, ok := other.(BoolValue)
	return ok && o.Val == v.Val
}

// StringValue is a str constant.
type StringValue struct {
	Val string
}

func (StringValue) isValue() {}
func (v StringValue) String() string {
	return strconv.Quote(v.Val)
}

func (v StringValue) Equal(other Value) bool {
	o, ok := other.(StringValue)
	return ok && o.Val == v.Val
}

// NoneValue is Python's None.
type NoneValue struct{}

func (NoneValue) isValue() {}
func (NoneValue) String() string {
	return "None"
}

func (NoneValue) Equal(other Value) bool {
	_, ok := other.(NoneValue)
	return ok
}

// RangeValue is a closed numeric interval. Bounds may be infinite.
type RangeValue struct {
	Lo, Hi float64
	Int    bool
}

func (RangeValue) isValue() {}
func (v RangeValue) String() string {
	return fmt.Sprintf("[%s, %s]", fmtBound(v.Lo), fmtBound(v.Hi))
}

func (v RangeValue) Equal(other Value) bool {
	o, ok := other.(RangeValue)
	return ok && o.Lo == v.Lo && o.Hi == v.Hi && o.Int == v.Int
}

func fmtBound(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParamValue is the unmodified value of a parameter. Range, when set,
// is what branch conditions proved about it at this point.
type ParamValue struct {
	Name  string
	Range *RangeValue
}

func (ParamValue) isValue() {}
func (v ParamValue) String() string {
	if v.Range != nil {
		return fmt.Sprintf("<%s in %s>", v.Name, v.Range)
	}
	return fmt.Sprintf("<%s>", v.Name)
}

func (v ParamValue) Equal(other Value) bool {
	o, ok := other.(ParamValue)
	if !ok || o.Name != v.Name {
		return false
	}
	if v.Range == nil || o.Range == nil {
		return v.Range == nil && o.Range == nil
	}
	return v.Range.Equal(*o.Range)
}

// SeqValue is a tuple or list display of known length.
type SeqValue struct {
	Kind string
	Len  int
}

func (SeqValue) isValue() {}
func (v SeqValue) String() string {
	return fmt.Sprintf("<%s of %d>", v.Kind, v.Len)
}

func (v SeqValue) Equal(other Value) bool {
	o, ok := other.(SeqValue)
	return ok && o.Kind == v.Kind && o.Len == v.Len
}

// UnknownValue is the top of the domain.
type UnknownValue struct{}

func (UnknownValue) isValue() {}
func (UnknownValue) String() string {
	return "?"
}

func (UnknownValue) Equal(other Value) bool {
	_, ok := other.(UnknownValue)
	return ok
}

// Unknown is the shared top value.
var Unknown Value = UnknownValue{}

// IsUnknown reports whether v carries no information.
func IsUnknown(v Value) bool {
	_, ok := v.(UnknownValue)
	return ok
}

// Numeric returns the interval a value is known to lie in.
func Numeric(v Value) (RangeValue, bool) {
	switch x := v.(type) {
	case IntValue:
		f := float64(x.Val)
		return RangeValue{Lo: f, Hi: f, Int: true}, true
	case FloatValue:
		return RangeValue{Lo: x.Val, Hi: x.Val}, true
	case BoolValue:
		if x.Val {
			return RangeValue{Lo: 1, Hi: 1, Int: true}, true
		}
		return RangeValue{Lo: 0, Hi: 0, Int: true}, true
	case RangeValue:
		return x, true
	case ParamValue:
		if x.Range != nil {
			return *x.Range, true
		}
	}
	return RangeValue{}, false
}

// FromRange collapses singleton intervals back into constants.
func FromRange(r RangeValue) Value {
	if r.Lo == r.Hi && !math.IsInf(r.Lo, 0) {
		if r.Int && r.Lo == math.Trunc(r.Lo) && math.Abs(r.Lo) < 1<<53 {
			return IntValue{Val: int64(r.Lo)}
		}
		return FloatValue{Val: r.Lo}
	}
	return r
}

// Join returns the least upper bound of a and b. nil is bottom.
func Join(a, b Value) Value {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Equal(b) {
		return a
	}
	if pa, ok := a.(ParamValue); ok {
		if pb, ok := b.(ParamValue); ok && pa.Name == pb.Name {
			if pa.Range == nil || pb.Range == nil {
				return ParamValue{Name: pa.Name}
			}
			hull := hullOf(*pa.Range, *pb.Range)
			return ParamValue{Name: pa.Name, Range: &hull}
		}
		return Unknown
	}
	if _, ok := b.(ParamValue); ok {
		return Unknown
	}
	if sa, ok := a.(SeqValue); ok {
		if sb, ok := b.(SeqValue); ok && sa.Kind == sb.Kind {
			return SeqValue{Kind: sa.Kind, Len: -1}
		}
		return Unknown
	}
	ra, okA := Numeric(a)
	rb, okB := Numeric(b)
	if okA && okB {
		if isBool(a) != isBool(b) {
			return Unknown
		}
		return FromRange(hullOf(ra, rb))
	}
	return Unknown
}

func isBool(v Value) bool {
	_, ok := v.(BoolValue)
	return ok
}

func hullOf(a, b RangeValue) RangeValue {
	return RangeValue{
		Lo:  math.Min(a.Lo, b.Lo),
		Hi:  math.Max(a.Hi, b.Hi),
		Int: a.Int && b.Int,
	}
}

// Widen extrapolates from old to next so that repeated widening
// stabilises. Bounds that moved are pushed to infinity.
func Widen(old, next Value) Value {
	if old == nil {
		return next
	}
	if next == nil || old.Equal(next) {
		return old
	}
	ro, okO := Numeric(old)
	rn, okN := Numeric(next)
	if !okO || !okN {
		return Unknown
	}
	out := RangeValue{Lo: ro.Lo, Hi: ro.Hi, Int: ro.Int && rn.Int}
	if rn.Lo < ro.Lo {
		out.Lo = math.Inf(-1)
	}
	if rn.Hi > ro.Hi {
		out.Hi = math.Inf(1)
	}
	if _, ok := old.(ParamValue); ok {
		return Unknown
	}
	return FromRange(out)
}
