package pyast

import "fmt"

// NodeID identifies a node inside a Unit. IDs are assigned in pre-order,
// so the same source always yields the same IDs.
type NodeID int

// Pos is a 1-based line/column location.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p sorts before o.
func (p Pos) Before(o Pos) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Node is implemented by every statement and expression.
type Node interface {
	ID() NodeID
	Pos() Pos
	End() Pos
}

type base struct {
	id    NodeID
	start Pos
	end   Pos
}

func (b *base) ID() NodeID { return b.id }
func (b *base) Pos() Pos   { return b.start }
func (b *base) End() Pos   { return b.end }

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

/***** statements *****/

// Param is a single function or lambda parameter.
type Param struct {
	Name    string
	Default Expr
	// Star is "*" for *args and "**" for **kwargs.
	Star string
}

type FuncDef struct {
	base
	Name       string
	Params     []Param
	Decorators []Expr
	Body       []Stmt
	Async      bool
}

type ClassDef struct {
	base
	Name       string
	Bases      []Expr
	Decorators []Expr
	Body       []Stmt
}

type Return struct {
	base
	Value Expr // nil for a bare return
}

type Raise struct {
	base
	Exc   Expr // nil for a bare re-raise
	Cause Expr
}

type Assert struct {
	base
	Test Expr
	Msg  Expr
}

// Assign covers plain, chained and augmented assignment.
// Op is empty for "=" and the operator ("+", "-", ...) otherwise.
type Assign struct {
	base
	Targets []Expr
	Value   Expr
	Op      string
}

type ExprStmt struct {
	base
	X Expr
}

// If holds elif chains as a nested If in Else.
type If struct {
	base
	Cond Expr
	Body []Stmt
	Else []Stmt
}

type For struct {
	base
	Target Expr
	Iter   Expr
	Body   []Stmt
	Else   []Stmt
	Async  bool
}

type While struct {
	base
	Cond Expr
	Body []Stmt
	Else []Stmt
}

// Handler is one except clause. Types is empty for a bare except.
type Handler struct {
	base
	Types []Expr
	Name  string
	Body  []Stmt
}

type Try struct {
	base
	Body     []Stmt
	Handlers []*Handler
	Else     []Stmt
	Finally  []Stmt
}

type WithItem struct {
	Value  Expr
	Target Expr
}

type With struct {
	base
	Items []WithItem
	Body  []Stmt
	Async bool
}

// Alias is one imported name. Name is dotted for "import a.b".
type Alias struct {
	Name   string
	AsName string
}

type Import struct {
	base
	// Module is set for "from X import ..."; Level counts leading dots.
	Module string
	Level  int
	From   bool
	Names  []Alias
}

type Global struct {
	base
	Names    []string
	Nonlocal bool
}

type Delete struct {
	base
	Targets []Expr
}

// Simple is pass, break or continue.
type Simple struct {
	base
	Keyword string
}

// UnsupportedStmt keeps syntax outside the analyzed sublanguage.
// Exprs holds any expressions found inside it.
type UnsupportedStmt struct {
	base
	Kind  string
	Exprs []Expr
	Body  []Stmt
}

/***** expressions *****/

type Name struct {
	base
	Ident string
}

// ConstKind tags a literal.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstStr
	ConstBytes
	ConstBool
	ConstNone
	ConstEllipsis
)

type Const struct {
	base
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

type Attribute struct {
	base
	X    Expr
	Attr string
}

type Subscript struct {
	base
	X     Expr
	Index Expr
}

type Keyword struct {
	Name  string // empty for **kwargs
	Value Expr
}

type Call struct {
	base
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

type BinOp struct {
	base
	Op string
	X  Expr
	Y  Expr
}

// UnaryOp uses "not" for logical negation.
type UnaryOp struct {
	base
	Op string
	X  Expr
}

type BoolOp struct {
	base
	Op     string // "and" or "or"
	Values []Expr
}

// Compare is a (possibly chained) comparison: Left Ops[0] Comparators[0] ...
type Compare struct {
	base
	Left        Expr
	Ops         []string
	Comparators []Expr
}

type IfExp struct {
	base
	Cond Expr
	Then Expr
	Else Expr
}

type Lambda struct {
	base
	Params []Param
	Body   Expr
}

// Seq is a tuple, list or set display.
type Seq struct {
	base
	Kind string
	Elts []Expr
}

type Dict struct {
	base
	Keys   []Expr // nil key for **spread
	Values []Expr
}

// Comp is a comprehension or generator expression.
type Comp struct {
	base
	Kind    string
	Elt     Expr
	Value   Expr // dict comprehensions only
	Targets []Expr
	Iters   []Expr
	Conds   []Expr
}

type Yield struct {
	base
	Value Expr
	From  bool
}

type Await struct {
	base
	X Expr
}

type NamedExpr struct {
	base
	Target string
	Value  Expr
}

type Starred struct {
	base
	X      Expr
	Double bool
}

// FString is an interpolated string; Parts are the interpolated expressions.
type FString struct {
	base
	Parts []Expr
}

// UnsupportedExpr keeps expressions outside the analyzed sublanguage.
type UnsupportedExpr struct {
	base
	Kind  string
	Exprs []Expr
}

func (*FuncDef) stmtNode()         {}
func (*ClassDef) stmtNode()        {}
func (*Return) stmtNode()          {}
func (*Raise) stmtNode()           {}
func (*Assert) stmtNode()          {}
func (*Assign) stmtNode()          {}
func (*ExprStmt) stmtNode()        {}
func (*If) stmtNode()              {}
func (*For) stmtNode()             {}
func (*While) stmtNode()           {}
func (*Try) stmtNode()             {}
func (*With) stmtNode()            {}
func (*Import) stmtNode()          {}
func (*Global) stmtNode()          {}
func (*Delete) stmtNode()          {}
func (*Simple) stmtNode()          {}
func (*UnsupportedStmt) stmtNode() {}

func (*Name) exprNode()            {}
func (*Const) exprNode()           {}
func (*Attribute) exprNode()       {}
func (*Subscript) exprNode()       {}
func (*Call) exprNode()            {}
func (*BinOp) exprNode()           {}
func (*UnaryOp) exprNode()         {}
func (*BoolOp) exprNode()          {}
func (*Compare) exprNode()         {}
func (*IfExp) exprNode()           {}
func (*Lambda) exprNode()          {}
func (*Seq) exprNode()             {}
func (*Dict) exprNode()            {}
func (*Comp) exprNode()            {}
func (*Yield) exprNode()           {}
func (*Await) exprNode()           {}
func (*NamedExpr) exprNode()       {}
func (*Starred) exprNode()         {}
func (*FString) exprNode()         {}
func (*UnsupportedExpr) exprNode() {}
