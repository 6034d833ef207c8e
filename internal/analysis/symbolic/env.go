package symbolic

import (
	"sort"
	"strings"
)

// Env maps local names to abstract values at one program point.
// A nil *Env stands for an unreachable point.
type Env struct {
	vars map[string]Value
}

// NewEnv creates an empty reachable environment.
func NewEnv() *Env {
	return &Env{vars: make(map[string]Value)}
}

// Get returns the binding of name, or Unknown when it is unbound.
func (e *Env) Get(name string) Value {
	if e == nil {
		return Unknown
	}
	if v, ok := e.vars[name]; ok {
		return v
	}
	return Unknown
}

// Lookup is like Get but reports whether the name is bound.
func (e *Env) Lookup(name string) (Value, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.vars[name]
	return v, ok
}

// Set binds name in place.
func (e *Env) Set(name string, val Value) {
	if val == nil {
		val = Unknown
	}
	e.vars[name] = val
}

// Havoc forgets everything known about the given names.
func (e *Env) Havoc(names ...string) {
	for _, n := range names {
		e.vars[n] = Unknown
	}
}

// Clone returns an independent copy. Cloning nil yields nil.
func (e *Env) Clone() *Env {
	if e == nil {
		return nil
	}
	out := &Env{vars: make(map[string]Value, len(e.vars))}
	for k, v := range e.vars {
		out.vars[k] = v
	}
	return out
}

// Keys returns the bound names in sorted order.
func (e *Env) Keys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both environments bind the same names to equal
// values. Two nil environments are equal.
func (e *Env) Equal(other *Env) bool {
	if e == nil || other == nil {
		return e == nil && other == nil
	}
	if len(e.vars) != len(other.vars) {
		return false
	}
	for k, v := range e.vars {
		ov, ok := other.vars[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (e *Env) String() string {
	if e == nil {
		return "<dead>"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range e.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(e.vars[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// JoinEnv merges two program points. A name bound on only one side
// becomes Unknown.
func JoinEnv(a, b *Env) *Env {
	return combine(a, b, Join)
}

// WidenEnv widens old toward next, binding by binding.
func WidenEnv(old, next *Env) *Env {
	return combine(old, next, Widen)
}

func combine(a, b *Env, f func(x, y Value) Value) *Env {
	if a == nil {
		return b.Clone()
	}
	if b == nil {
		return a.Clone()
	}
	out := NewEnv()
	for k, va := range a.vars {
		vb, ok := b.vars[k]
		if !ok {
			out.vars[k] = Unknown
			continue
		}
		out.vars[k] = f(va, vb)
	}
	for k := range b.vars {
		if _, ok := a.vars[k]; !ok {
			out.vars[k] = Unknown
		}
	}
	return out
}
