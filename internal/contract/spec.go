package contract

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gnolang/dealint/internal/pyast"
)

// Kind classifies a contract spec.
type Kind int

const (
	Pre Kind = iota
	Post
	Ensure
	Invariant
	Raises
	Purity
	Determinism
	Has
	Example
	Inherit
)

var kindNames = [...]string{
	Pre:         "pre",
	Post:        "post",
	Ensure:      "ensure",
	Invariant:   "inv",
	Raises:      "raises",
	Purity:      "purity",
	Determinism: "determinism",
	Has:         "has",
	Example:     "example",
	Inherit:     "inherit",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown contract kind %q", b)
}

// IsCondition reports whether specs of kind k carry an Expr.
func (k Kind) IsCondition() bool {
	switch k {
	case Pre, Post, Ensure, Invariant, Example:
		return true
	}
	return false
}

// Spec is one contract attached to a declaration. Specs are immutable
// once extracted.
type Spec struct {
	Kind Kind `json:"kind"`
	// Expr is the parsed condition for Pre, Post, Ensure, Invariant and
	// Example specs.
	Expr Expr `json:"-"`
	// Params are the lambda's parameter names in order.
	Params     []string `json:"params,omitempty"`
	Exceptions []string `json:"exceptions,omitempty"`
	Markers    []string `json:"markers,omitempty"`
	// Value is the claim of Purity and Determinism specs.
	Value     bool      `json:"value,omitempty"`
	Message   string    `json:"message,omitempty"`
	Source    string    `json:"source"`
	Pos       pyast.Pos `json:"pos"`
	Decorator string    `json:"decorator"`
}

// MarshalJSON renders the condition as text next to the raw source.
func (s Spec) MarshalJSON() ([]byte, error) {
	type plain Spec
	out := struct {
		plain
		Condition string `json:"condition,omitempty"`
	}{plain: plain(s)}
	if s.Expr != nil {
		out.Condition = s.Expr.String()
	}
	return json.Marshal(out)
}

// Malformed records a decorator that looked like a contract but could
// not be understood. The spec is dropped.
type Malformed struct {
	Path      string    `json:"path"`
	Pos       pyast.Pos `json:"pos"`
	Decorator string    `json:"decorator"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
}

func (m Malformed) Error() string {
	return fmt.Sprintf("%s:%s: malformed contract %s: %s", m.Path, m.Pos, m.Decorator, m.Reason)
}

// Specs is the ordered contract list of one declaration.
type Specs []Spec

// OfKind returns the specs of kind k in declaration order.
func (ss Specs) OfKind(k Kind) Specs {
	var out Specs
	for _, s := range ss {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether any spec of kind k is present.
func (ss Specs) Has(k Kind) bool {
	for _, s := range ss {
		if s.Kind == k {
			return true
		}
	}
	return false
}

// DeclaresRaises reports whether the exception set is checked at all.
func (ss Specs) DeclaresRaises() bool {
	return ss.Has(Raises)
}

// Exceptions returns the union of all declared exception kinds, sorted.
func (ss Specs) Exceptions() []string {
	set := map[string]bool{}
	for _, s := range ss.OfKind(Raises) {
		for _, e := range s.Exceptions {
			set[e] = true
		}
	}
	return sortedKeys(set)
}

// Markers returns the union of all allowed side-effect markers, sorted,
// and whether any Has spec exists.
func (ss Specs) Markers() ([]string, bool) {
	has := ss.OfKind(Has)
	if len(has) == 0 {
		return nil, false
	}
	set := map[string]bool{}
	for _, s := range has {
		for _, m := range s.Markers {
			set[m] = true
		}
	}
	return sortedKeys(set), true
}

// ClaimsPure reports whether a PurityMarker(true) is present.
func (ss Specs) ClaimsPure() bool {
	for _, s := range ss.OfKind(Purity) {
		if s.Value {
			return true
		}
	}
	return false
}

// ClaimsDeterministic reports whether a DeterminismMarker(true) is present
// and not overridden by a later DeterminismMarker(false).
func (ss Specs) ClaimsDeterministic() bool {
	claimed := false
	for _, s := range ss.OfKind(Determinism) {
		claimed = s.Value
	}
	return claimed
}

// MergeInherited appends the specs of base-class methods that the own
// list does not already declare. Inherit markers are not copied.
func MergeInherited(own Specs, bases ...Specs) Specs {
	out := append(Specs(nil), own...)
	seen := map[string]bool{}
	for _, s := range own {
		seen[s.Kind.String()+"|"+s.Source] = true
	}
	for _, b := range bases {
		for _, s := range b {
			key := s.Kind.String() + "|" + s.Source
			if s.Kind == Inherit || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
