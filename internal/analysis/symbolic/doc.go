// Package symbolic implements the abstract values the effect inferencer
// tracks for local bindings and return sites.
//
// A value is a constant, a closed numeric interval, a reference to a
// function parameter (optionally narrowed by branch conditions), a
// sequence of known length, or unknown. Contract conditions are evaluated
// over these values with a three-valued result: the facts either entail
// the condition, contradict it, or are independent of it.
//
// The domain is small:
//   - constants and intervals are joined by hull, never by disjunction
//   - widening pushes growing interval bounds to infinity
//   - anything outside the domain becomes Unknown
package symbolic
