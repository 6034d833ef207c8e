package lattice

// Purity models what is known about a function's side effects.
// Pure ⊑ Impure ⊑ Unknown, with Bottom for functions not yet analyzed.
type Purity int

const (
	Bottom Purity = iota // not analyzed
	Pure
	Impure
	Unknown
)

func (p Purity) String() string {
	switch p {
	case Bottom:
		return "bottom"
	case Pure:
		return "pure"
	case Impure:
		return "impure"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// MarshalText encodes the purity as its name.
func (p Purity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a purity name, defaulting to Unknown.
func (p *Purity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bottom":
		*p = Bottom
	case "pure":
		*p = Pure
	case "impure":
		*p = Impure
	default:
		*p = Unknown
	}
	return nil
}

// Join returns the least upper bound of two purities.
func Join(a, b Purity) Purity {
	if a > b {
		return a
	}
	return b
}

// Meet returns the greatest lower bound of two purities.
func Meet(a, b Purity) Purity {
	if a < b {
		return a
	}
	return b
}

// Leq reports whether a ⊑ b.
func Leq(a, b Purity) bool {
	return a <= b
}

// Certainty models whether an outcome happens on a path.
type Certainty int

const (
	Never Certainty = iota
	Possible
	Certain
)

func (c Certainty) String() string {
	switch c {
	case Never:
		return "never"
	case Possible:
		return "possible"
	case Certain:
		return "certain"
	default:
		return "invalid"
	}
}

// JoinCertainty merges the certainty of two alternative paths.
// An outcome is certain after the merge only if it was certain on both.
func JoinCertainty(a, b Certainty) Certainty {
	if a == b {
		return a
	}
	return Possible
}

// Tri is a three-valued boolean for facts like determinism.
type Tri int

const (
	TriBottom Tri = iota
	Yes
	No
	Maybe
)

func (t Tri) String() string {
	switch t {
	case TriBottom:
		return "bottom"
	case Yes:
		return "yes"
	case No:
		return "no"
	case Maybe:
		return "maybe"
	default:
		return "invalid"
	}
}

// JoinTri returns the least upper bound of two tri-state facts.
func JoinTri(a, b Tri) Tri {
	switch {
	case a == TriBottom:
		return b
	case b == TriBottom:
		return a
	case a == b:
		return a
	}
	return Maybe
}
