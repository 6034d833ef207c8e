package symbolic

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type wireValue struct {
	T    string     `json:"t"`
	I    int64      `json:"i,omitempty"`
	F    *float64   `json:"f,omitempty"`
	S    string     `json:"s,omitempty"`
	B    bool       `json:"b,omitempty"`
	Lo   string     `json:"lo,omitempty"`
	Hi   string     `json:"hi,omitempty"`
	Int  bool       `json:"int,omitempty"`
	Name string     `json:"name,omitempty"`
	Len  int        `json:"len,omitempty"`
	R    *wireValue `json:"r,omitempty"`
}

// Box wraps a Value so it can be stored as JSON. A nil Value encodes as null.
type Box struct {
	Value Value
}

func (b Box) MarshalJSON() ([]byte, error) {
	if b.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(encode(b.Value))
}

func (b *Box) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.Value = nil
		return nil
	}
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := decode(w)
	if err != nil {
		return err
	}
	b.Value = v
	return nil
}

func encode(v Value) wireValue {
	switch x := v.(type) {
	case IntValue:
		return wireValue{T: "int", I: x.Val}
	case FloatValue:
		f := x.Val
		return wireValue{T: "float", F: &f}
	case BoolValue:
		return wireValue{T: "bool", B: x.Val}
	case StringValue:
		return wireValue{T: "str", S: x.Val}
	case NoneValue:
		return wireValue{T: "none"}
	case RangeValue:
		return wireValue{T: "range", Lo: fmtBound(x.Lo), Hi: fmtBound(x.Hi), Int: x.Int}
	case ParamValue:
		w := wireValue{T: "param", Name: x.Name}
		if x.Range != nil {
			r := encode(*x.Range)
			w.R = &r
		}
		return w
	case SeqValue:
		return wireValue{T: "seq", S: x.Kind, Len: x.Len}
	}
	return wireValue{T: "unknown"}
}

func decode(w wireValue) (Value, error) {
	switch w.T {
	case "int":
		return IntValue{Val: w.I}, nil
	case "float":
		if w.F == nil {
			return FloatValue{}, nil
		}
		return FloatValue{Val: *w.F}, nil
	case "bool":
		return BoolValue{Val: w.B}, nil
	case "str":
		return StringValue{Val: w.S}, nil
	case "none":
		return NoneValue{}, nil
	case "range":
		lo, err := parseBound(w.Lo)
		if err != nil {
			return nil, err
		}
		hi, err := parseBound(w.Hi)
		if err != nil {
			return nil, err
		}
		return RangeValue{Lo: lo, Hi: hi, Int: w.Int}, nil
	case "param":
		p := ParamValue{Name: w.Name}
		if w.R != nil {
			r, err := decode(*w.R)
			if err != nil {
				return nil, err
			}
			rv, ok := r.(RangeValue)
			if !ok {
				return nil, fmt.Errorf("param range has type %s", w.R.T)
			}
			p.Range = &rv
		}
		return p, nil
	case "seq":
		return SeqValue{Kind: w.S, Len: w.Len}, nil
	case "unknown":
		return Unknown, nil
	}
	return nil, fmt.Errorf("unknown value tag %q", w.T)
}

func parseBound(s string) (float64, error) {
	switch s {
	case "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "":
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad bound %q: %w", s, err)
	}
	return f, nil
}
