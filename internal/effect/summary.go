package effect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/gnolang/dealint/internal/analysis/lattice"
	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/pyast"
)

// Site is a location in a function body, with the callee chain through
// which an effect arrived there.
type Site struct {
	Pos   pyast.Pos `json:"pos"`
	What  string    `json:"what"`
	Chain []string  `json:"chain,omitempty"`
}

// Raise is one exception kind a function can raise.
type Raise struct {
	Kind      string            `json:"kind"`
	Certainty lattice.Certainty `json:"certainty"`
	Site      Site              `json:"site"`
}

// Marker is one external-state category a function touches.
type Marker struct {
	Name string `json:"name"`
	Site Site   `json:"site"`
}

// ReturnFact is the abstract value produced at one exit.
type ReturnFact struct {
	Pos   pyast.Pos      `json:"pos"`
	Value symbolic.Value `json:"-"`
	// Implicit marks falling off the end of the body.
	Implicit bool `json:"implicit,omitempty"`
	Yield    bool `json:"yield,omitempty"`
}

// CallSite is one call inside the body.
type CallSite struct {
	// Callee is the resolved qualified name, empty when unresolved.
	Callee string           `json:"callee,omitempty"`
	Ref    string           `json:"ref"`
	Pos    pyast.Pos        `json:"pos"`
	Args   []symbolic.Value `json:"-"`
	// Literal reports whether every argument is a constant.
	Literal bool `json:"literal,omitempty"`
}

// FieldWrite is an assignment to an attribute of self.
type FieldWrite struct {
	Field string         `json:"field"`
	Value symbolic.Value `json:"-"`
	Pos   pyast.Pos      `json:"pos"`
}

// Summary is the conservative effect approximation of one function.
type Summary struct {
	Qual          string            `json:"qual"`
	Raises        map[string]Raise  `json:"raises"`
	Purity        lattice.Purity    `json:"purity"`
	Offending     *Site             `json:"offending,omitempty"`
	Markers       map[string]Marker `json:"markers,omitempty"`
	Deterministic lattice.Tri       `json:"deterministic"`
	Returns       []ReturnFact      `json:"returns,omitempty"`
	// MayReturn reports whether some path leaves the function normally.
	MayReturn bool `json:"may_return"`
	// ReturnsValue reports whether some explicit return carries a value.
	ReturnsValue bool         `json:"returns_value,omitempty"`
	Yields       bool         `json:"yields,omitempty"`
	Resolved     bool         `json:"resolved"`
	Unresolved   []Site       `json:"unresolved,omitempty"`
	Calls        []CallSite   `json:"calls,omitempty"`
	FieldWrites  []FieldWrite `json:"field_writes,omitempty"`
	FalseAsserts []Site       `json:"false_asserts,omitempty"`
	Converged    bool         `json:"converged"`
}

// NewSummary returns the summary of a function that does nothing.
func NewSummary(qual string) *Summary {
	return &Summary{
		Qual:          qual,
		Raises:        map[string]Raise{},
		Markers:       map[string]Marker{},
		Purity:        lattice.Pure,
		Deterministic: lattice.Yes,
		Resolved:      true,
		Converged:     true,
	}
}

// Bottom is the provisional summary of a recursive function before its
// first iteration: it neither returns nor raises.
func Bottom(qual string) *Summary {
	s := NewSummary(qual)
	s.Purity = lattice.Bottom
	s.Deterministic = lattice.TriBottom
	return s
}

// Unknown is the summary of a function nothing is known about. It may
// raise the given kinds and anything else.
func Unknown(qual string, kinds ...string) *Summary {
	s := NewSummary(qual)
	s.Purity = lattice.Unknown
	s.Deterministic = lattice.Maybe
	s.Resolved = false
	s.MayReturn = true
	s.Converged = false
	s.Returns = []ReturnFact{{Value: symbolic.Unknown}}
	for _, k := range append(kinds, UnknownException) {
		s.Raises[k] = Raise{Kind: k, Certainty: lattice.Possible}
	}
	return s
}

// ReturnValue joins the values of all normal exits. It is nil when the
// function never returns.
func (s *Summary) ReturnValue() symbolic.Value {
	var out symbolic.Value
	for _, r := range s.Returns {
		if r.Yield {
			continue
		}
		out = symbolic.Join(out, r.Value)
	}
	return out
}

// Kinds returns the raised kinds in sorted order.
func (s *Summary) Kinds() []string {
	out := make([]string, 0, len(s.Raises))
	for k := range s.Raises {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarkerNames returns the observed markers in sorted order.
func (s *Summary) MarkerNames() []string {
	out := make([]string, 0, len(s.Markers))
	for k := range s.Markers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CertainlyRaises reports whether every path through the function ends in
// an exception, and which kind if it is always the same one.
func (s *Summary) CertainlyRaises() (string, bool) {
	for k, r := range s.Raises {
		if r.Certainty == lattice.Certain {
			return k, true
		}
	}
	return "", false
}

// Join merges two summaries of the same function.
func Join(a, b *Summary) *Summary {
	if a == nil {
		return b.Clone()
	}
	if b == nil {
		return a.Clone()
	}
	out := a.Clone()
	for k, rb := range b.Raises {
		ra, ok := out.Raises[k]
		if !ok {
			rb.Certainty = lattice.Possible
			out.Raises[k] = rb
			continue
		}
		ra.Certainty = lattice.JoinCertainty(ra.Certainty, rb.Certainty)
		out.Raises[k] = ra
	}
	for k, ra := range out.Raises {
		if _, ok := b.Raises[k]; !ok && ra.Certainty == lattice.Certain {
			ra.Certainty = lattice.Possible
			out.Raises[k] = ra
		}
	}
	out.Purity = lattice.Join(a.Purity, b.Purity)
	if out.Offending == nil && b.Offending != nil {
		site := *b.Offending
		out.Offending = &site
	}
	for k, m := range b.Markers {
		if _, ok := out.Markers[k]; !ok {
			out.Markers[k] = m
		}
	}
	out.Deterministic = lattice.JoinTri(a.Deterministic, b.Deterministic)
	out.Returns = joinReturns(a.Returns, b.Returns)
	out.MayReturn = a.MayReturn || b.MayReturn
	out.ReturnsValue = a.ReturnsValue || b.ReturnsValue
	out.Yields = a.Yields || b.Yields
	out.Resolved = a.Resolved && b.Resolved
	out.Unresolved = mergeSites(a.Unresolved, b.Unresolved)
	out.FalseAsserts = mergeSites(a.FalseAsserts, b.FalseAsserts)
	out.Calls = mergeCalls(a.Calls, b.Calls)
	out.FieldWrites = mergeWrites(a.FieldWrites, b.FieldWrites)
	out.Converged = a.Converged && b.Converged
	return out
}

func joinReturns(a, b []ReturnFact) []ReturnFact {
	out := append([]ReturnFact(nil), a...)
	for _, rb := range b {
		merged := false
		for i := range out {
			if out[i].Pos == rb.Pos && out[i].Yield == rb.Yield && out[i].Implicit == rb.Implicit {
				out[i].Value = symbolic.Join(out[i].Value, rb.Value)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, rb)
		}
	}
	sortReturns(out)
	return out
}

func sortReturns(rs []ReturnFact) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Pos.Before(rs[j].Pos) })
}

func mergeSites(a, b []Site) []Site {
	out := append([]Site(nil), a...)
	for _, s := range b {
		found := false
		for _, o := range out {
			if o.Pos == s.Pos && o.What == s.What {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos.Before(out[j].Pos) })
	return out
}

func mergeCalls(a, b []CallSite) []CallSite {
	out := append([]CallSite(nil), a...)
	for _, c := range b {
		found := false
		for _, o := range out {
			if o.Pos == c.Pos && o.Ref == c.Ref {
				found = true
				break
			}
		}
		if !found {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos.Before(out[j].Pos) })
	return out
}

func mergeWrites(a, b []FieldWrite) []FieldWrite {
	out := append([]FieldWrite(nil), a...)
	for _, w := range b {
		merged := false
		for i := range out {
			if out[i].Pos == w.Pos && out[i].Field == w.Field {
				out[i].Value = symbolic.Join(out[i].Value, w.Value)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos.Before(out[j].Pos) })
	return out
}

// Clone returns a deep copy of s.
func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	out := *s
	out.Raises = make(map[string]Raise, len(s.Raises))
	for k, v := range s.Raises {
		out.Raises[k] = v
	}
	out.Markers = make(map[string]Marker, len(s.Markers))
	for k, v := range s.Markers {
		out.Markers[k] = v
	}
	if s.Offending != nil {
		site := *s.Offending
		out.Offending = &site
	}
	out.Returns = append([]ReturnFact(nil), s.Returns...)
	out.Unresolved = append([]Site(nil), s.Unresolved...)
	out.Calls = append([]CallSite(nil), s.Calls...)
	out.FieldWrites = append([]FieldWrite(nil), s.FieldWrites...)
	out.FalseAsserts = append([]Site(nil), s.FalseAsserts...)
	return &out
}

// wireSummary carries the abstract values that Summary's own JSON tags
// leave out.
type wireSummary struct {
	summaryFields
	ReturnValues []symbolic.Box   `json:"return_values,omitempty"`
	CallArgs     [][]symbolic.Box `json:"call_args,omitempty"`
	WriteValues  []symbolic.Box   `json:"write_values,omitempty"`
}

type summaryFields Summary

// MarshalJSON encodes the summary including its abstract values.
func (s *Summary) MarshalJSON() ([]byte, error) {
	w := wireSummary{summaryFields: summaryFields(*s)}
	for _, r := range s.Returns {
		w.ReturnValues = append(w.ReturnValues, symbolic.Box{Value: r.Value})
	}
	for _, c := range s.Calls {
		args := make([]symbolic.Box, len(c.Args))
		for i, a := range c.Args {
			args[i] = symbolic.Box{Value: a}
		}
		w.CallArgs = append(w.CallArgs, args)
	}
	for _, fw := range s.FieldWrites {
		w.WriteValues = append(w.WriteValues, symbolic.Box{Value: fw.Value})
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a summary written by MarshalJSON.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var w wireSummary
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Summary(w.summaryFields)
	for i := range s.Returns {
		if i < len(w.ReturnValues) {
			s.Returns[i].Value = w.ReturnValues[i].Value
		}
	}
	for i := range s.Calls {
		if i < len(w.CallArgs) {
			for _, b := range w.CallArgs[i] {
				s.Calls[i].Args = append(s.Calls[i].Args, b.Value)
			}
		}
	}
	for i := range s.FieldWrites {
		if i < len(w.WriteValues) {
			s.FieldWrites[i].Value = w.WriteValues[i].Value
		}
	}
	if s.Raises == nil {
		s.Raises = map[string]Raise{}
	}
	if s.Markers == nil {
		s.Markers = map[string]Marker{}
	}
	return nil
}

// Fingerprint is a content hash of everything callers can observe.
func (s *Summary) Fingerprint() string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two summaries are observably identical.
func (s *Summary) Equal(other *Summary) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return s.Fingerprint() == other.Fingerprint()
}
