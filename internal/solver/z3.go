package solver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/contract"
)

// DefaultTimeout bounds a single solver invocation.
const DefaultTimeout = 5 * time.Second

// Z3 pipes SMT-LIB scripts to a `z3 -in` process. A missing binary or any
// solver failure yields Unknown.
type Z3 struct {
	Path    string
	Timeout time.Duration
}

// NewZ3 returns a prover running the binary at path, "z3" when empty.
func NewZ3(path string, timeout time.Duration) *Z3 {
	if path == "" {
		path = "z3"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Z3{Path: path, Timeout: timeout}
}

// Available reports whether the solver binary can be found.
func (z *Z3) Available() bool {
	_, err := exec.LookPath(z.Path)
	return err == nil
}

func (z *Z3) Query(ctx context.Context, facts map[string]symbolic.Value, goal contract.Expr) Verdict {
	script, ok := Encode(facts, goal)
	if !ok {
		return Unknown
	}
	bin, err := exec.LookPath(z.Path)
	if err != nil {
		return Unknown
	}
	ctx, cancel := context.WithTimeout(ctx, z.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "-in")
	cmd.Stdin = strings.NewReader(script)
	out, err := cmd.Output()
	if err != nil {
		return Unknown
	}
	return parseVerdict(out)
}

// parseVerdict reads the two check-sat answers Encode asks for: first
// with the goal negated, then with the goal asserted.
func parseVerdict(out []byte) Verdict {
	var answers []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		switch line := strings.TrimSpace(sc.Text()); line {
		case "sat", "unsat", "unknown":
			answers = append(answers, line)
		}
	}
	if len(answers) != 2 {
		return Unknown
	}
	switch {
	case answers[0] == "unsat" && answers[1] == "sat":
		return Proved
	case answers[1] == "unsat" && answers[0] == "sat":
		return Contradicted
	}
	return Unknown
}

// Encode renders a query as an SMT-LIB script. It reports false when the
// goal or a fact uses something outside linear arithmetic and booleans.
func Encode(facts map[string]symbolic.Value, goal contract.Expr) (string, bool) {
	e := &encoder{sorts: map[string]string{}}
	body, ok := e.expr(goal)
	if !ok {
		return "", false
	}

	var sb strings.Builder
	names := make([]string, 0, len(e.sorts))
	for n := range e.sorts {
		names = append(names, n)
	}
	sort.Strings(names)

	var constraints []string
	for _, n := range names {
		sortName := "Real"
		if v, ok := facts[n]; ok {
			s, cs, ok := constrain(symbol(n), v)
			if !ok {
				return "", false
			}
			sortName = s
			constraints = append(constraints, cs...)
		}
		fmt.Fprintf(&sb, "(declare-const %s %s)\n", symbol(n), sortName)
	}
	for _, c := range constraints {
		fmt.Fprintf(&sb, "(assert %s)\n", c)
	}
	fmt.Fprintf(&sb, "(push)\n(assert (not %s))\n(check-sat)\n(pop)\n", body)
	fmt.Fprintf(&sb, "(push)\n(assert %s)\n(check-sat)\n(pop)\n", body)
	return sb.String(), true
}

func symbol(name string) string {
	if strings.ContainsAny(name, ".") {
		return "|" + name + "|"
	}
	return name
}

// constrain returns the sort of a name and the assertions its abstract
// value implies.
func constrain(sym string, v symbolic.Value) (string, []string, bool) {
	switch x := v.(type) {
	case symbolic.BoolValue:
		return "Bool", []string{fmt.Sprintf("(= %s %t)", sym, x.Val)}, true
	case symbolic.IntValue:
		return "Int", []string{fmt.Sprintf("(= %s %s)", sym, intLit(x.Val))}, true
	case symbolic.FloatValue:
		return "Real", []string{fmt.Sprintf("(= %s %s)", sym, realLit(x.Val))}, true
	case symbolic.RangeValue:
		return rangeConstraints(sym, x)
	case symbolic.ParamValue:
		if x.Range == nil {
			return "Real", nil, true
		}
		return rangeConstraints(sym, *x.Range)
	case symbolic.UnknownValue:
		return "Real", nil, true
	}
	return "", nil, false
}

func rangeConstraints(sym string, r symbolic.RangeValue) (string, []string, bool) {
	sortName := "Real"
	lit := realLit
	if r.Int {
		sortName = "Int"
		lit = func(f float64) string { return intLit(int64(f)) }
	}
	var out []string
	if !math.IsInf(r.Lo, -1) {
		out = append(out, fmt.Sprintf("(>= %s %s)", sym, lit(r.Lo)))
	}
	if !math.IsInf(r.Hi, 1) {
		out = append(out, fmt.Sprintf("(<= %s %s)", sym, lit(r.Hi)))
	}
	return sortName, out, true
}

func intLit(v int64) string {
	if v < 0 {
		return fmt.Sprintf("(- %d)", -v)
	}
	return strconv.FormatInt(v, 10)
}

func realLit(f float64) string {
	s := strconv.FormatFloat(math.Abs(f), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	if f < 0 {
		return "(- " + s + ")"
	}
	return s
}

type encoder struct {
	sorts map[string]string
}

var compareOps = map[string]string{"<": "<", "<=": "<=", ">": ">", ">=": ">=", "==": "="}

var arithOps = map[string]string{"+": "+", "-": "-", "*": "*", "/": "/", "//": "div", "%": "mod"}

func (e *encoder) expr(x contract.Expr) (string, bool) {
	switch v := x.(type) {
	case contract.Name:
		e.sorts[v.Ident] = ""
		return symbol(v.Ident), true
	case contract.Field:
		name := "self." + v.Attr
		e.sorts[name] = ""
		return symbol(name), true
	case contract.Lit:
		switch c := v.Value.(type) {
		case symbolic.IntValue:
			return intLit(c.Val), true
		case symbolic.FloatValue:
			return realLit(c.Val), true
		case symbolic.BoolValue:
			return strconv.FormatBool(c.Val), true
		}
		return "", false
	case contract.Not:
		inner, ok := e.expr(v.X)
		return "(not " + inner + ")", ok
	case contract.Neg:
		inner, ok := e.expr(v.X)
		return "(- " + inner + ")", ok
	case contract.BoolOp:
		parts, ok := e.list(v.Values)
		if !ok {
			return "", false
		}
		return "(" + v.Op + " " + strings.Join(parts, " ") + ")", true
	case contract.BinOp:
		op, known := arithOps[v.Op]
		if !known {
			return "", false
		}
		a, okA := e.expr(v.X)
		b, okB := e.expr(v.Y)
		return "(" + op + " " + a + " " + b + ")", okA && okB
	case contract.Compare:
		operands, ok := e.list(append([]contract.Expr{v.Left}, v.Comparators...))
		if !ok {
			return "", false
		}
		var conj []string
		for i, op := range v.Ops {
			switch {
			case op == "!=":
				conj = append(conj, "(not (= "+operands[i]+" "+operands[i+1]+"))")
			case compareOps[op] != "":
				conj = append(conj, "("+compareOps[op]+" "+operands[i]+" "+operands[i+1]+")")
			default:
				return "", false
			}
		}
		if len(conj) == 1 {
			return conj[0], true
		}
		return "(and " + strings.Join(conj, " ") + ")", true
	case contract.Call:
		args, ok := e.list(v.Args)
		if !ok {
			return "", false
		}
		switch {
		case v.Func == "abs" && len(args) == 1:
			return "(ite (>= " + args[0] + " 0) " + args[0] + " (- " + args[0] + "))", true
		case v.Func == "max" && len(args) == 2:
			return "(ite (>= " + args[0] + " " + args[1] + ") " + args[0] + " " + args[1] + ")", true
		case v.Func == "min" && len(args) == 2:
			return "(ite (<= " + args[0] + " " + args[1] + ") " + args[0] + " " + args[1] + ")", true
		}
	}
	return "", false
}

func (e *encoder) list(xs []contract.Expr) ([]string, bool) {
	out := make([]string, len(xs))
	for i, x := range xs {
		s, ok := e.expr(x)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
