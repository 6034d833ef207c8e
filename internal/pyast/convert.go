package pyast

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// converter turns a tree-sitter concrete tree into the typed AST.
type converter struct {
	src      []byte
	next     NodeID
	comments []Comment
}

func (c *converter) mk(n *sitter.Node) base {
	c.next++
	return base{
		id:    c.next,
		start: toPos(n.StartPoint()),
		end:   toPos(n.EndPoint()),
	}
}

func toPos(p sitter.Point) Pos {
	return Pos{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() && child.Type() == tok {
			return true
		}
	}
	return false
}

func (c *converter) collectComments(n *sitter.Node) {
	if n.Type() == "comment" {
		c.comments = append(c.comments, Comment{
			Pos:  toPos(n.StartPoint()),
			Text: c.text(n),
		})
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.collectComments(n.Child(i))
	}
}

/***** statements *****/

func (c *converter) block(n *sitter.Node) []Stmt {
	var out []Stmt
	for _, child := range namedChildren(n) {
		if s := c.stmt(child); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *converter) stmt(n *sitter.Node) Stmt {
	switch n.Type() {
	case "function_definition":
		return c.funcDef(n, nil)
	case "class_definition":
		return c.classDef(n, nil)
	case "decorated_definition":
		return c.decorated(n)
	case "expression_statement":
		return c.exprStmt(n)
	case "return_statement":
		b := c.mk(n)
		ret := &Return{base: b}
		if kids := namedChildren(n); len(kids) > 0 {
			ret.Value = c.expr(kids[0])
		}
		return ret
	case "raise_statement":
		b := c.mk(n)
		r := &Raise{base: b}
		cause := n.ChildByFieldName("cause")
		for _, child := range namedChildren(n) {
			if cause != nil && child.Equal(cause) {
				continue
			}
			r.Exc = c.expr(child)
			break
		}
		if cause != nil {
			r.Cause = c.expr(cause)
		}
		return r
	case "assert_statement":
		b := c.mk(n)
		a := &Assert{base: b}
		kids := namedChildren(n)
		if len(kids) > 0 {
			a.Test = c.expr(kids[0])
		}
		if len(kids) > 1 {
			a.Msg = c.expr(kids[1])
		}
		return a
	case "if_statement":
		return c.ifStmt(n)
	case "for_statement":
		b := c.mk(n)
		return &For{
			base:   b,
			Async:  hasToken(n, "async"),
			Target: c.expr(n.ChildByFieldName("left")),
			Iter:   c.expr(n.ChildByFieldName("right")),
			Body:   c.block(n.ChildByFieldName("body")),
			Else:   c.elseBody(n.ChildByFieldName("alternative")),
		}
	case "while_statement":
		b := c.mk(n)
		return &While{
			base: b,
			Cond: c.expr(n.ChildByFieldName("condition")),
			Body: c.block(n.ChildByFieldName("body")),
			Else: c.elseBody(n.ChildByFieldName("alternative")),
		}
	case "try_statement":
		return c.tryStmt(n)
	case "with_statement":
		return c.withStmt(n)
	case "import_statement", "import_from_statement", "future_import_statement":
		return c.importStmt(n)
	case "global_statement", "nonlocal_statement":
		b := c.mk(n)
		g := &Global{base: b, Nonlocal: n.Type() == "nonlocal_statement"}
		for _, child := range namedChildren(n) {
			if child.Type() == "identifier" {
				g.Names = append(g.Names, c.text(child))
			}
		}
		return g
	case "delete_statement":
		b := c.mk(n)
		d := &Delete{base: b}
		for _, child := range namedChildren(n) {
			d.Targets = append(d.Targets, flattenTuple(c.expr(child))...)
		}
		return d
	case "pass_statement":
		return &Simple{base: c.mk(n), Keyword: "pass"}
	case "break_statement":
		return &Simple{base: c.mk(n), Keyword: "break"}
	case "continue_statement":
		return &Simple{base: c.mk(n), Keyword: "continue"}
	default:
		b := c.mk(n)
		u := &UnsupportedStmt{base: b, Kind: n.Type()}
		for _, child := range namedChildren(n) {
			if child.Type() == "block" {
				u.Body = append(u.Body, c.block(child)...)
				continue
			}
			if isExprNode(child) {
				u.Exprs = append(u.Exprs, c.expr(child))
			}
		}
		return u
	}
}

func isExprNode(n *sitter.Node) bool {
	switch n.Type() {
	case "block", "case_clause", "case_pattern", "type_parameter", "comment":
		return false
	}
	return true
}

func (c *converter) funcDef(n *sitter.Node, decorators []*sitter.Node) *FuncDef {
	b := c.mk(n)
	fn := &FuncDef{
		base:  b,
		Name:  c.text(n.ChildByFieldName("name")),
		Async: hasToken(n, "async"),
	}
	fn.Decorators = c.decorators(decorators)
	fn.Params = c.params(n.ChildByFieldName("parameters"))
	fn.Body = c.block(n.ChildByFieldName("body"))
	return fn
}

func (c *converter) classDef(n *sitter.Node, decorators []*sitter.Node) *ClassDef {
	b := c.mk(n)
	cls := &ClassDef{
		base: b,
		Name: c.text(n.ChildByFieldName("name")),
	}
	cls.Decorators = c.decorators(decorators)
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for _, arg := range namedChildren(supers) {
			if arg.Type() == "keyword_argument" {
				continue
			}
			cls.Bases = append(cls.Bases, c.expr(arg))
		}
	}
	cls.Body = c.block(n.ChildByFieldName("body"))
	return cls
}

func (c *converter) decorated(n *sitter.Node) Stmt {
	var decorators []*sitter.Node
	for _, child := range namedChildren(n) {
		if child.Type() == "decorator" {
			decorators = append(decorators, child)
		}
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return &UnsupportedStmt{base: c.mk(n), Kind: n.Type()}
	}
	switch def.Type() {
	case "function_definition":
		return c.funcDef(def, decorators)
	case "class_definition":
		return c.classDef(def, decorators)
	}
	return &UnsupportedStmt{base: c.mk(n), Kind: n.Type()}
}

func (c *converter) decorators(nodes []*sitter.Node) []Expr {
	var out []Expr
	for _, d := range nodes {
		kids := namedChildren(d)
		if len(kids) == 0 {
			continue
		}
		out = append(out, c.expr(kids[0]))
	}
	return out
}

func (c *converter) params(n *sitter.Node) []Param {
	var out []Param
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "identifier":
			out = append(out, Param{Name: c.text(child)})
		case "typed_parameter":
			kids := namedChildren(child)
			if len(kids) == 0 {
				continue
			}
			out = append(out, c.splatParam(kids[0]))
		case "default_parameter", "typed_default_parameter":
			out = append(out, Param{
				Name:    c.text(child.ChildByFieldName("name")),
				Default: c.expr(child.ChildByFieldName("value")),
			})
		case "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, c.splatParam(child))
		}
	}
	return out
}

func (c *converter) splatParam(n *sitter.Node) Param {
	switch n.Type() {
	case "list_splat_pattern":
		return Param{Name: c.text(firstNamed(n)), Star: "*"}
	case "dictionary_splat_pattern":
		return Param{Name: c.text(firstNamed(n)), Star: "**"}
	}
	return Param{Name: c.text(n)}
}

func firstNamed(n *sitter.Node) *sitter.Node {
	kids := namedChildren(n)
	if len(kids) == 0 {
		return nil
	}
	return kids[0]
}

func (c *converter) exprStmt(n *sitter.Node) Stmt {
	kids := namedChildren(n)
	if len(kids) == 1 {
		switch kids[0].Type() {
		case "assignment", "augmented_assignment":
			return c.assign(kids[0])
		}
	}
	b := c.mk(n)
	if len(kids) == 1 {
		return &ExprStmt{base: b, X: c.expr(kids[0])}
	}
	seq := &Seq{base: b, Kind: "tuple"}
	for _, child := range kids {
		seq.Elts = append(seq.Elts, c.expr(child))
	}
	return &ExprStmt{base: b, X: seq}
}

func (c *converter) assign(n *sitter.Node) *Assign {
	b := c.mk(n)
	a := &Assign{base: b}
	if n.Type() == "augmented_assignment" {
		a.Op = strings.TrimSuffix(c.text(n.ChildByFieldName("operator")), "=")
	}
	cur := n
	for {
		a.Targets = append(a.Targets, c.expr(cur.ChildByFieldName("left")))
		right := cur.ChildByFieldName("right")
		if right == nil {
			return a
		}
		if right.Type() != "assignment" {
			a.Value = c.expr(right)
			return a
		}
		cur = right
	}
}

func (c *converter) ifStmt(n *sitter.Node) Stmt {
	b := c.mk(n)
	root := &If{
		base: b,
		Cond: c.expr(n.ChildByFieldName("condition")),
		Body: c.block(n.ChildByFieldName("consequence")),
	}
	tail := root
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "elif_clause":
			eb := c.mk(child)
			elif := &If{
				base: eb,
				Cond: c.expr(child.ChildByFieldName("condition")),
				Body: c.block(child.ChildByFieldName("consequence")),
			}
			tail.Else = []Stmt{elif}
			tail = elif
		case "else_clause":
			tail.Else = c.block(child.ChildByFieldName("body"))
		}
	}
	return root
}

func (c *converter) elseBody(n *sitter.Node) []Stmt {
	if n == nil {
		return nil
	}
	if body := n.ChildByFieldName("body"); body != nil {
		return c.block(body)
	}
	return c.block(firstNamed(n))
}

func (c *converter) tryStmt(n *sitter.Node) Stmt {
	b := c.mk(n)
	t := &Try{base: b, Body: c.block(n.ChildByFieldName("body"))}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "except_clause", "except_group_clause":
			t.Handlers = append(t.Handlers, c.handler(child))
		case "else_clause":
			t.Else = c.elseBody(child)
		case "finally_clause":
			t.Finally = c.elseBody(child)
		}
	}
	return t
}

func (c *converter) handler(n *sitter.Node) *Handler {
	b := c.mk(n)
	h := &Handler{base: b}
	var exprs []*sitter.Node
	for _, child := range namedChildren(n) {
		if child.Type() == "block" {
			h.Body = c.block(child)
			continue
		}
		exprs = append(exprs, child)
	}
	if len(exprs) == 1 && exprs[0].Type() == "as_pattern" {
		kids := namedChildren(exprs[0])
		exprs = nil
		if len(kids) > 0 {
			exprs = append(exprs, kids[0])
		}
		if alias := aliasOf(kids); alias != nil {
			h.Name = c.text(alias)
		}
	} else if len(exprs) > 1 {
		h.Name = c.text(exprs[1])
		exprs = exprs[:1]
	}
	if len(exprs) == 1 {
		h.Types = flattenTuple(c.expr(exprs[0]))
	}
	return h
}

func aliasOf(kids []*sitter.Node) *sitter.Node {
	if len(kids) < 2 {
		return nil
	}
	alias := kids[len(kids)-1]
	if alias.Type() == "as_pattern_target" {
		if inner := firstNamed(alias); inner != nil {
			return inner
		}
	}
	return alias
}

func (c *converter) withStmt(n *sitter.Node) Stmt {
	b := c.mk(n)
	w := &With{base: b, Async: hasToken(n, "async")}
	for _, child := range namedChildren(n) {
		if child.Type() != "with_clause" {
			continue
		}
		for _, item := range namedChildren(child) {
			if item.Type() != "with_item" {
				continue
			}
			w.Items = append(w.Items, c.withItem(item.ChildByFieldName("value")))
		}
	}
	w.Body = c.block(n.ChildByFieldName("body"))
	return w
}

func (c *converter) withItem(v *sitter.Node) WithItem {
	if v == nil {
		return WithItem{}
	}
	if v.Type() != "as_pattern" {
		return WithItem{Value: c.expr(v)}
	}
	kids := namedChildren(v)
	item := WithItem{}
	if len(kids) > 0 {
		item.Value = c.expr(kids[0])
	}
	if alias := aliasOf(kids); alias != nil {
		item.Target = c.expr(alias)
	}
	return item
}

func (c *converter) importStmt(n *sitter.Node) Stmt {
	b := c.mk(n)
	imp := &Import{base: b}
	moduleNode := n.ChildByFieldName("module_name")
	switch n.Type() {
	case "import_from_statement":
		imp.From = true
		if moduleNode != nil {
			text := c.text(moduleNode)
			trimmed := strings.TrimLeft(text, ".")
			imp.Level = len(text) - len(trimmed)
			imp.Module = strings.TrimSpace(trimmed)
		}
	case "future_import_statement":
		imp.From = true
		imp.Module = "__future__"
	}
	for _, child := range namedChildren(n) {
		if moduleNode != nil && child.Equal(moduleNode) {
			continue
		}
		switch child.Type() {
		case "dotted_name", "identifier":
			imp.Names = append(imp.Names, Alias{Name: c.text(child)})
		case "aliased_import":
			imp.Names = append(imp.Names, Alias{
				Name:   c.text(child.ChildByFieldName("name")),
				AsName: c.text(child.ChildByFieldName("alias")),
			})
		case "wildcard_import":
			imp.Names = append(imp.Names, Alias{Name: "*"})
		}
	}
	return imp
}

/***** expressions *****/

func (c *converter) expr(n *sitter.Node) Expr {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return &Name{base: c.mk(n), Ident: c.text(n)}
	case "integer":
		return c.integer(n)
	case "float":
		return c.float(n)
	case "string":
		return c.str(n)
	case "concatenated_string":
		return c.concatenated(n)
	case "true", "false":
		return &Const{base: c.mk(n), Kind: ConstBool, Bool: n.Type() == "true"}
	case "none":
		return &Const{base: c.mk(n), Kind: ConstNone}
	case "ellipsis":
		return &Const{base: c.mk(n), Kind: ConstEllipsis}
	case "attribute":
		b := c.mk(n)
		return &Attribute{
			base: b,
			X:    c.expr(n.ChildByFieldName("object")),
			Attr: c.text(n.ChildByFieldName("attribute")),
		}
	case "subscript":
		b := c.mk(n)
		return &Subscript{
			base:  b,
			X:     c.expr(n.ChildByFieldName("value")),
			Index: c.expr(n.ChildByFieldName("subscript")),
		}
	case "call":
		return c.call(n)
	case "binary_operator":
		b := c.mk(n)
		return &BinOp{
			base: b,
			Op:   c.text(n.ChildByFieldName("operator")),
			X:    c.expr(n.ChildByFieldName("left")),
			Y:    c.expr(n.ChildByFieldName("right")),
		}
	case "unary_operator":
		b := c.mk(n)
		return &UnaryOp{
			base: b,
			Op:   c.text(n.ChildByFieldName("operator")),
			X:    c.expr(n.ChildByFieldName("argument")),
		}
	case "not_operator":
		b := c.mk(n)
		return &UnaryOp{base: b, Op: "not", X: c.expr(n.ChildByFieldName("argument"))}
	case "boolean_operator":
		return c.boolOp(n)
	case "comparison_operator":
		return c.compare(n)
	case "conditional_expression":
		b := c.mk(n)
		kids := namedChildren(n)
		ife := &IfExp{base: b}
		if len(kids) == 3 {
			ife.Then = c.expr(kids[0])
			ife.Cond = c.expr(kids[1])
			ife.Else = c.expr(kids[2])
		}
		return ife
	case "parenthesized_expression":
		kids := namedChildren(n)
		if len(kids) == 1 {
			return c.expr(kids[0])
		}
		return c.unsupported(n)
	case "tuple", "expression_list", "pattern_list", "tuple_pattern":
		return c.seq(n, "tuple")
	case "list", "list_pattern":
		return c.seq(n, "list")
	case "set":
		return c.seq(n, "set")
	case "dictionary":
		return c.dict(n)
	case "list_comprehension":
		return c.comp(n, "list")
	case "set_comprehension":
		return c.comp(n, "set")
	case "dictionary_comprehension":
		return c.comp(n, "dict")
	case "generator_expression":
		return c.comp(n, "generator")
	case "lambda":
		b := c.mk(n)
		l := &Lambda{base: b}
		l.Params = c.params(n.ChildByFieldName("parameters"))
		l.Body = c.expr(n.ChildByFieldName("body"))
		return l
	case "yield":
		b := c.mk(n)
		y := &Yield{base: b, From: hasToken(n, "from")}
		if kids := namedChildren(n); len(kids) > 0 {
			y.Value = c.expr(kids[0])
		}
		return y
	case "await":
		b := c.mk(n)
		return &Await{base: b, X: c.expr(firstNamed(n))}
	case "named_expression":
		b := c.mk(n)
		return &NamedExpr{
			base:   b,
			Target: c.text(n.ChildByFieldName("name")),
			Value:  c.expr(n.ChildByFieldName("value")),
		}
	case "list_splat", "list_splat_pattern":
		b := c.mk(n)
		return &Starred{base: b, X: c.expr(firstNamed(n))}
	case "dictionary_splat", "dictionary_splat_pattern":
		b := c.mk(n)
		return &Starred{base: b, X: c.expr(firstNamed(n)), Double: true}
	case "assignment", "augmented_assignment":
		b := c.mk(n)
		return &UnsupportedExpr{base: b, Kind: n.Type(), Exprs: []Expr{c.expr(n.ChildByFieldName("right"))}}
	default:
		return c.unsupported(n)
	}
}

func (c *converter) unsupported(n *sitter.Node) Expr {
	b := c.mk(n)
	u := &UnsupportedExpr{base: b, Kind: n.Type()}
	for _, child := range namedChildren(n) {
		if e := c.expr(child); e != nil {
			u.Exprs = append(u.Exprs, e)
		}
	}
	return u
}

func (c *converter) integer(n *sitter.Node) Expr {
	raw := strings.ReplaceAll(c.text(n), "_", "")
	if strings.HasSuffix(raw, "j") || strings.HasSuffix(raw, "J") {
		return &UnsupportedExpr{base: c.mk(n), Kind: "complex"}
	}
	raw = strings.TrimRight(raw, "lL")
	v, err := strconv.ParseInt(raw, 0, 64)
	if err != nil {
		return &UnsupportedExpr{base: c.mk(n), Kind: "integer"}
	}
	return &Const{base: c.mk(n), Kind: ConstInt, Int: v}
}

func (c *converter) float(n *sitter.Node) Expr {
	raw := strings.ReplaceAll(c.text(n), "_", "")
	if strings.HasSuffix(raw, "j") || strings.HasSuffix(raw, "J") {
		return &UnsupportedExpr{base: c.mk(n), Kind: "complex"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return &UnsupportedExpr{base: c.mk(n), Kind: "float"}
	}
	return &Const{base: c.mk(n), Kind: ConstFloat, Float: v}
}

func (c *converter) str(n *sitter.Node) Expr {
	b := c.mk(n)
	var parts []Expr
	for _, child := range namedChildren(n) {
		if child.Type() == "interpolation" {
			if e := c.expr(firstNamed(child)); e != nil {
				parts = append(parts, e)
			}
		}
	}
	text := c.text(n)
	if parts != nil || isFormatted(text) {
		return &FString{base: b, Parts: parts}
	}
	value, bytesLit := unquote(text)
	kind := ConstStr
	if bytesLit {
		kind = ConstBytes
	}
	return &Const{base: b, Kind: kind, Str: value}
}

func (c *converter) concatenated(n *sitter.Node) Expr {
	b := c.mk(n)
	var (
		sb        strings.Builder
		parts     []Expr
		formatted bool
		bytesLit  bool
	)
	for _, child := range namedChildren(n) {
		if child.Type() != "string" {
			continue
		}
		switch e := c.str(child).(type) {
		case *FString:
			formatted = true
			parts = append(parts, e.Parts...)
		case *Const:
			bytesLit = e.Kind == ConstBytes
			sb.WriteString(e.Str)
		}
	}
	if formatted {
		return &FString{base: b, Parts: parts}
	}
	kind := ConstStr
	if bytesLit {
		kind = ConstBytes
	}
	return &Const{base: b, Kind: kind, Str: sb.String()}
}

func stringPrefix(text string) string {
	i := strings.IndexAny(text, `'"`)
	if i < 0 {
		return ""
	}
	return strings.ToLower(text[:i])
}

func isFormatted(text string) bool {
	return strings.Contains(stringPrefix(text), "f")
}

var escapes = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\t`, "\t",
	`\r`, "\r",
	`\'`, "'",
	`\"`, `"`,
	`\0`, "\x00",
)

// unquote strips the prefix and quotes of a Python string literal.
func unquote(text string) (string, bool) {
	prefix := stringPrefix(text)
	body := text[len(prefix):]
	switch {
	case len(body) >= 6 && (strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`)):
		body = body[3 : len(body)-3]
	case len(body) >= 2:
		body = body[1 : len(body)-1]
	}
	if !strings.Contains(prefix, "r") {
		body = escapes.Replace(body)
	}
	return body, strings.Contains(prefix, "b")
}

func (c *converter) call(n *sitter.Node) Expr {
	b := c.mk(n)
	call := &Call{base: b, Func: c.expr(n.ChildByFieldName("function"))}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return call
	}
	if args.Type() == "generator_expression" {
		call.Args = append(call.Args, c.expr(args))
		return call
	}
	for _, arg := range namedChildren(args) {
		switch arg.Type() {
		case "keyword_argument":
			call.Keywords = append(call.Keywords, Keyword{
				Name:  c.text(arg.ChildByFieldName("name")),
				Value: c.expr(arg.ChildByFieldName("value")),
			})
		case "dictionary_splat":
			call.Keywords = append(call.Keywords, Keyword{Value: c.expr(arg)})
		default:
			call.Args = append(call.Args, c.expr(arg))
		}
	}
	return call
}

func (c *converter) boolOp(n *sitter.Node) Expr {
	b := c.mk(n)
	op := c.text(n.ChildByFieldName("operator"))
	out := &BoolOp{base: b, Op: op}
	for _, side := range []*sitter.Node{n.ChildByFieldName("left"), n.ChildByFieldName("right")} {
		e := c.expr(side)
		if inner, ok := e.(*BoolOp); ok && inner.Op == op {
			out.Values = append(out.Values, inner.Values...)
			continue
		}
		out.Values = append(out.Values, e)
	}
	return out
}

func (c *converter) compare(n *sitter.Node) Expr {
	b := c.mk(n)
	cmp := &Compare{base: b}
	var pending []string
	first := true
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "comment" {
			continue
		}
		if !child.IsNamed() {
			pending = append(pending, child.Type())
			continue
		}
		e := c.expr(child)
		if first {
			cmp.Left = e
			first = false
			pending = nil
			continue
		}
		cmp.Ops = append(cmp.Ops, strings.Join(pending, " "))
		cmp.Comparators = append(cmp.Comparators, e)
		pending = nil
	}
	return cmp
}

func (c *converter) seq(n *sitter.Node, kind string) Expr {
	b := c.mk(n)
	s := &Seq{base: b, Kind: kind}
	for _, child := range namedChildren(n) {
		s.Elts = append(s.Elts, c.expr(child))
	}
	return s
}

func (c *converter) dict(n *sitter.Node) Expr {
	b := c.mk(n)
	d := &Dict{base: b}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "pair":
			d.Keys = append(d.Keys, c.expr(child.ChildByFieldName("key")))
			d.Values = append(d.Values, c.expr(child.ChildByFieldName("value")))
		case "dictionary_splat":
			d.Keys = append(d.Keys, nil)
			d.Values = append(d.Values, c.expr(firstNamed(child)))
		}
	}
	return d
}

func (c *converter) comp(n *sitter.Node, kind string) Expr {
	b := c.mk(n)
	comp := &Comp{base: b, Kind: kind}
	body := n.ChildByFieldName("body")
	if body != nil && body.Type() == "pair" {
		comp.Elt = c.expr(body.ChildByFieldName("key"))
		comp.Value = c.expr(body.ChildByFieldName("value"))
	} else {
		comp.Elt = c.expr(body)
	}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "for_in_clause":
			comp.Targets = append(comp.Targets, c.expr(child.ChildByFieldName("left")))
			comp.Iters = append(comp.Iters, c.expr(child.ChildByFieldName("right")))
		case "if_clause":
			comp.Conds = append(comp.Conds, c.expr(firstNamed(child)))
		}
	}
	return comp
}

// flattenTuple returns the elements of a tuple expression, or e itself.
func flattenTuple(e Expr) []Expr {
	if s, ok := e.(*Seq); ok && s.Kind == "tuple" {
		return s.Elts
	}
	if e == nil {
		return nil
	}
	return []Expr{e}
}
