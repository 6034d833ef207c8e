// Package solver delegates contract conditions the symbolic evaluator
// cannot decide to an external SMT solver.
package solver

import (
	"context"

	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/contract"
)

// Verdict is the outcome of a solver query.
type Verdict int

const (
	// Unknown means the solver could not decide, or was not consulted.
	Unknown Verdict = iota
	// Proved means the goal holds under every assignment allowed by the facts.
	Proved
	// Contradicted means the goal fails under every such assignment.
	Contradicted
)

func (v Verdict) String() string {
	switch v {
	case Proved:
		return "proved"
	case Contradicted:
		return "contradicted"
	default:
		return "unknown"
	}
}

// Prover decides a goal under facts about the names it mentions.
type Prover interface {
	Query(ctx context.Context, facts map[string]symbolic.Value, goal contract.Expr) Verdict
}

// Nop never decides anything.
type Nop struct{}

func (Nop) Query(context.Context, map[string]symbolic.Value, contract.Expr) Verdict {
	return Unknown
}
