package symbolic

import "math"

// CallBuiltin evaluates a side-effect-free builtin on abstract arguments.
// Names it does not model evaluate to Unknown.
func CallBuiltin(name string, args []Value) Value {
	switch name {
	case "len":
		if len(args) != 1 {
			return Unknown
		}
		switch a := args[0].(type) {
		case StringValue:
			return IntValue{Val: int64(len([]rune(a.Val)))}
		case SeqValue:
			if a.Len >= 0 {
				return IntValue{Val: int64(a.Len)}
			}
		}
		return RangeValue{Lo: 0, Hi: math.Inf(1), Int: true}
	case "abs":
		if len(args) != 1 {
			return Unknown
		}
		r, ok := Numeric(args[0])
		if !ok {
			return Unknown
		}
		lo, hi := math.Abs(r.Lo), math.Abs(r.Hi)
		if lo > hi {
			lo, hi = hi, lo
		}
		if r.Lo <= 0 && r.Hi >= 0 {
			lo = 0
		}
		return FromRange(RangeValue{Lo: lo, Hi: hi, Int: r.Int})
	case "min", "max":
		return extremum(name == "min", args)
	case "bool":
		if len(args) == 1 {
			switch Truthy(args[0]) {
			case Entails:
				return BoolValue{Val: true}
			case Contradicts:
				return BoolValue{Val: false}
			}
		}
	case "int":
		if len(args) == 1 {
			switch a := args[0].(type) {
			case IntValue:
				return a
			case BoolValue:
				if a.Val {
					return IntValue{Val: 1}
				}
				return IntValue{Val: 0}
			case FloatValue:
				return IntValue{Val: int64(math.Trunc(a.Val))}
			}
		}
	case "float":
		if len(args) == 1 {
			if r, ok := Numeric(args[0]); ok && r.Lo == r.Hi {
				return FloatValue{Val: r.Lo}
			}
		}
	case "str":
		if len(args) == 1 {
			if s, ok := args[0].(StringValue); ok {
				return s
			}
		}
	case "math.isfinite", "math.isinf", "math.isnan":
		if len(args) == 1 {
			if r, ok := Numeric(args[0]); ok && !math.IsInf(r.Lo, 0) && !math.IsInf(r.Hi, 0) {
				return BoolValue{Val: name == "math.isfinite"}
			}
		}
	}
	return Unknown
}

func extremum(isMin bool, args []Value) Value {
	if len(args) < 2 {
		return Unknown
	}
	var out RangeValue
	for i, a := range args {
		r, ok := Numeric(a)
		if !ok {
			return Unknown
		}
		if i == 0 {
			out = r
			continue
		}
		if isMin {
			out.Lo = math.Min(out.Lo, r.Lo)
			out.Hi = math.Min(out.Hi, r.Hi)
		} else {
			out.Lo = math.Max(out.Lo, r.Lo)
			out.Hi = math.Max(out.Hi, r.Hi)
		}
		out.Int = out.Int && r.Int
	}
	return FromRange(out)
}
