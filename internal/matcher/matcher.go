// Package matcher compares effect summaries with the contracts attached to
// a function and reports every disagreement as a Violation.
package matcher

import (
	"context"
	"strings"

	"github.com/gnolang/dealint/internal/analysis/lattice"
	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/pyast"
	"github.com/gnolang/dealint/internal/solver"
)

// AssertionError is always treated as declared.
const AssertionError = "AssertionError"

// Options tunes the matcher.
type Options struct {
	// Ignore lists exception kinds never reported as undeclared.
	Ignore []string
	// ReportInconclusive reports conditions the analysis can neither
	// prove nor refute, at low confidence.
	ReportInconclusive bool
	// Prover decides conditions the symbolic evaluator leaves open.
	Prover solver.Prover
}

// SpecLookup returns the contracts of another project declaration.
type SpecLookup func(qual string) contract.Specs

// Matcher checks summaries against contracts.
type Matcher struct {
	res   *effect.Resolver
	specs SpecLookup
	opts  Options
}

// New returns a matcher. res resolves callees and class ancestry, specs
// supplies the contracts of callees and classes.
func New(res *effect.Resolver, specs SpecLookup, opts Options) *Matcher {
	if res == nil {
		res = effect.NewResolver()
	}
	if specs == nil {
		specs = func(string) contract.Specs { return nil }
	}
	if opts.Prover == nil {
		opts.Prover = solver.Nop{}
	}
	return &Matcher{res: res, specs: specs, opts: opts}
}

// Match checks fn alone: callees and classes outside its own unit are
// not consulted.
func Match(fn *pyast.Decl, s *effect.Summary, specs contract.Specs) []Violation {
	if fn == nil {
		return nil
	}
	extracted := contract.Extract(fn.Unit, nil)
	lookup := func(qual string) contract.Specs {
		if d, ok := fn.Unit.Lookup(qual); ok {
			return extracted.Specs[d.Node().ID()]
		}
		return nil
	}
	return New(effect.NewResolver(fn.Unit), lookup, Options{}).Match(context.Background(), fn, s, specs)
}

// Match checks one function. The result is sorted by location, then by
// kind priority.
func (m *Matcher) Match(ctx context.Context, fn *pyast.Decl, s *effect.Summary, specs contract.Specs) []Violation {
	if fn == nil || s == nil || fn.Kind != pyast.DeclFunc {
		return nil
	}
	c := &check{
		m:     m,
		ctx:   ctx,
		fn:    fn,
		sum:   s,
		specs: specs,
		seen:  map[string]bool{},
	}
	c.raises()
	c.purity()
	c.determinism()
	c.posts()
	c.ensures()
	c.invariants()
	c.pres()
	c.examples()
	c.asserts()
	c.unresolved()
	Sort(c.out)
	return c.out
}

type check struct {
	m     *Matcher
	ctx   context.Context
	fn    *pyast.Decl
	sum   *effect.Summary
	specs contract.Specs
	out   []Violation
	seen  map[string]bool
}

func (c *check) add(v Violation) {
	key := v.Kind.String() + "|" + v.Pos.String() + "|" + v.Value
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	v.Func = c.fn.QualName
	v.Path = c.fn.Unit.Path
	c.out = append(c.out, v)
}

func (c *check) reported(k Kind, pos pyast.Pos) bool {
	for _, v := range c.out {
		if v.Kind == k && v.Pos == pos {
			return true
		}
	}
	return false
}

/***** exceptions *****/

func (c *check) raises() {
	if !c.specs.DeclaresRaises() {
		return
	}
	declared := append(c.specs.Exceptions(), AssertionError)
	declared = append(declared, c.m.opts.Ignore...)
	source := c.specs.OfKind(contract.Raises)[0].Source

	hier := c.m.res.Hierarchy()
	for _, k := range c.sum.Kinds() {
		if k == effect.UnknownException {
			continue
		}
		covered := false
		for _, d := range declared {
			if k == d || hier.IsSubclass(k, d) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		r := c.sum.Raises[k]
		c.add(Violation{
			Kind:     UndeclaredException,
			Code:     CodeRaises,
			Pos:      r.Site.Pos,
			Message:  "raises contract error",
			Value:    k,
			Contract: source,
			Chain:    r.Site.Chain,
		})
	}
}

/***** side effects *****/

func (c *check) purity() {
	pureSources := map[string]bool{}
	var pure *contract.Spec
	for _, sp := range c.specs.OfKind(contract.Purity) {
		if !sp.Value {
			continue
		}
		pureSources[sp.Source] = true
		if pure == nil {
			sp := sp
			pure = &sp
		}
	}

	if pure != nil {
		switch off := c.sum.Offending; {
		case off != nil:
			v := Violation{
				Kind:     PurityViolation,
				Code:     CodeMarker,
				Pos:      off.Pos,
				Message:  "impure operation",
				Value:    off.What,
				Contract: pure.Source,
				Chain:    off.Chain,
			}
			for _, name := range c.sum.MarkerNames() {
				if mk := c.sum.Markers[name]; mk.Site.Pos == off.Pos {
					v.Code = markerCode(effect.MarkerCodes, name)
					v.Message = "missed marker"
					v.Value = name
					break
				}
			}
			c.add(v)
		case c.sum.Purity == lattice.Unknown:
			// unknown is not pure: report where the analysis lost track
			v := Violation{
				Kind:          PurityViolation,
				Code:          CodeMarker,
				Pos:           c.fn.Func.Pos(),
				Message:       "purity cannot be verified",
				Contract:      pure.Source,
				LowConfidence: true,
			}
			if len(c.sum.Unresolved) > 0 {
				site := c.sum.Unresolved[0]
				v.Pos, v.Value, v.Chain = site.Pos, site.What, site.Chain
			}
			c.add(v)
		}
	}

	// Has specs that come from a purity claim are covered above.
	var (
		allowed   []string
		hasSpec   bool
		hasSource string
	)
	for _, sp := range c.specs.OfKind(contract.Has) {
		if pureSources[sp.Source] {
			continue
		}
		hasSpec = true
		allowed = append(allowed, sp.Markers...)
		if hasSource == "" {
			hasSource = sp.Source
		}
	}
	if hasSpec {
		for _, name := range c.sum.MarkerNames() {
			if name == effect.MarkMutate || effect.Covers(allowed, name) {
				continue
			}
			mk := c.sum.Markers[name]
			c.add(Violation{
				Kind:     PurityViolation,
				Code:     markerCode(effect.MarkerCodes, name),
				Pos:      mk.Site.Pos,
				Message:  "missed marker",
				Value:    name,
				Contract: hasSource,
				Chain:    mk.Site.Chain,
			})
		}
	}

	// A function allowed no input/output must produce something.
	if pure == nil && !hasSpec {
		return
	}
	for _, a := range allowed {
		if effect.IsIO(a) {
			return
		}
	}
	if effect.SelfParam(c.fn) != "" || hasExits(c.fn.Func.Body) {
		return
	}
	source := hasSource
	if pure != nil {
		source = pure.Source
	}
	c.add(Violation{
		Kind:     PurityViolation,
		Code:     markerCode(effect.MarkerCodes, effect.MarkIO),
		Pos:      c.fn.Func.Pos(),
		Message:  "missed marker",
		Value:    effect.MarkIO,
		Contract: source,
	})
}

// hasExits reports whether a body contains a return, yield or raise of
// its own.
func hasExits(body []pyast.Stmt) bool {
	found := false
	pyast.InspectBody(body, func(n pyast.Node) bool {
		switch n.(type) {
		case *pyast.FuncDef, *pyast.ClassDef, *pyast.Lambda:
			return false
		case *pyast.Return, *pyast.Yield, *pyast.Raise:
			found = true
		}
		return !found
	})
	return found
}

func (c *check) determinism() {
	if !c.specs.ClaimsDeterministic() || c.sum.Deterministic != lattice.No {
		return
	}
	var first *effect.Marker
	for _, name := range c.sum.MarkerNames() {
		if !effect.NonDeterministic(name) {
			continue
		}
		mk := c.sum.Markers[name]
		if first == nil || mk.Site.Pos.Before(first.Site.Pos) {
			first = &mk
		}
	}
	v := Violation{
		Kind:     PurityViolation,
		Code:     CodeMarker,
		Pos:      c.fn.Func.Pos(),
		Message:  "non-deterministic call",
		Contract: c.specs.OfKind(contract.Determinism)[0].Source,
	}
	if first != nil {
		v.Pos = first.Site.Pos
		v.Code = markerCode(effect.MarkerCodes, first.Name)
		v.Value = first.Name
		v.Chain = first.Site.Chain
	}
	if c.reported(PurityViolation, v.Pos) {
		return
	}
	c.add(v)
}

func (c *check) asserts() {
	if strings.HasPrefix(c.fn.Name, "test_") {
		return
	}
	for _, site := range c.sum.FalseAsserts {
		c.add(Violation{
			Kind:    AssertMayFail,
			Code:    CodeAssert,
			Pos:     site.Pos,
			Message: "assert error",
			Value:   site.What,
		})
	}
}

func (c *check) unresolved() {
	if len(c.specs) == 0 {
		return
	}
	for _, site := range c.sum.Unresolved {
		c.add(Violation{
			Kind:    UnresolvedCallee,
			Code:    CodeUnresolved,
			Pos:     site.Pos,
			Message: "cannot resolve callee",
			Value:   site.What,
			Chain:   site.Chain,
		})
	}
}

func valueText(v symbolic.Value) string {
	if v == nil {
		return ""
	}
	return v.String()
}
