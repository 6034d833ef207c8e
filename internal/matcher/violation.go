package matcher

import (
	"fmt"
	"sort"

	"github.com/gnolang/dealint/internal/pyast"
)

// Kind classifies a violation. Lower values sort first at equal locations.
type Kind int

const (
	UndeclaredException Kind = iota
	PostconditionMayFail
	PurityViolation
	InvariantMayFail
	PreconditionMayFail
	ExampleMayFail
	MissingResultArg
	AssertMayFail
	// UnresolvedCallee is a precision loss, reported at verbose level.
	UnresolvedCallee
)

var kindNames = [...]string{
	UndeclaredException:  "UndeclaredException",
	PostconditionMayFail: "PostconditionMayFail",
	PurityViolation:      "PurityViolation",
	InvariantMayFail:     "InvariantMayFail",
	PreconditionMayFail:  "PreconditionMayFail",
	ExampleMayFail:       "ExampleMayFail",
	MissingResultArg:     "MissingResultArg",
	AssertMayFail:        "AssertMayFail",
	UnresolvedCallee:     "UnresolvedCallee",
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

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// Kinds lists every violation kind in priority order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

// Diagnostic codes.
const (
	CodeEnsureArgs = "DEAL002"
	CodePre        = "DEAL011"
	CodePost       = "DEAL012"
	CodeExample    = "DEAL013"
	CodeRaises     = "DEAL021"
	CodeAssert     = "DEAL031"
	CodeMarker     = "DEAL040"
	CodeInvariant  = "DEAL060"
	CodeUnresolved = "DEAL091"
)

// Violation is one disagreement between a function and its contracts.
type Violation struct {
	Kind Kind   `json:"kind"`
	Code string `json:"code"`
	// Func is the qualified name of the checked function.
	Func    string    `json:"func"`
	Path    string    `json:"path"`
	Pos     pyast.Pos `json:"pos"`
	Message string    `json:"message"`
	// Value is the offending exception kind, marker or value.
	Value string `json:"value,omitempty"`
	// Contract is the source text of the violated contract.
	Contract string   `json:"contract,omitempty"`
	Chain    []string `json:"chain,omitempty"`
	// LowConfidence marks inconclusive findings.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Text renders the message with its value, as in
// "raises contract error (TypeError)".
func (v Violation) Text() string {
	if v.Value == "" {
		return v.Message
	}
	return fmt.Sprintf("%s (%s)", v.Message, v.Value)
}

// markerCode returns the diagnostic code of a missed marker.
func markerCode(codes map[string]int, marker string) string {
	if c, ok := codes[marker]; ok {
		return fmt.Sprintf("DEAL%03d", c)
	}
	return CodeMarker
}

// Sort orders violations by location, then by kind priority.
func Sort(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Pos != b.Pos {
			return a.Pos.Before(b.Pos)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Text() < b.Text()
	})
}
