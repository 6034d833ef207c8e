package pyast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Inspect traverses n in depth-first order, calling f for every node.
// If f returns false the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil {
		return
	}
	if !f(n) {
		return
	}
	for _, child := range Children(n) {
		Inspect(child, f)
	}
}

// InspectBody runs Inspect over every statement of body.
func InspectBody(body []Stmt, f func(Node) bool) {
	for _, s := range body {
		Inspect(s, f)
	}
}

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, c := range nodes {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	addExprs := func(es []Expr) {
		for _, e := range es {
			add(e)
		}
	}
	addStmts := func(ss []Stmt) {
		for _, s := range ss {
			add(s)
		}
	}
	addParams := func(ps []Param) {
		for _, p := range ps {
			if p.Default != nil {
				add(p.Default)
			}
		}
	}

	switch v := n.(type) {
	case *FuncDef:
		addExprs(v.Decorators)
		addParams(v.Params)
		addStmts(v.Body)
	case *ClassDef:
		addExprs(v.Decorators)
		addExprs(v.Bases)
		addStmts(v.Body)
	case *Return:
		add(v.Value)
	case *Raise:
		add(v.Exc, v.Cause)
	case *Assert:
		add(v.Test, v.Msg)
	case *Assign:
		addExprs(v.Targets)
		add(v.Value)
	case *ExprStmt:
		add(v.X)
	case *If:
		add(v.Cond)
		addStmts(v.Body)
		addStmts(v.Else)
	case *For:
		add(v.Target, v.Iter)
		addStmts(v.Body)
		addStmts(v.Else)
	case *While:
		add(v.Cond)
		addStmts(v.Body)
		addStmts(v.Else)
	case *Try:
		addStmts(v.Body)
		for _, h := range v.Handlers {
			add(h)
		}
		addStmts(v.Else)
		addStmts(v.Finally)
	case *Handler:
		addExprs(v.Types)
		addStmts(v.Body)
	case *With:
		for _, item := range v.Items {
			add(item.Value, item.Target)
		}
		addStmts(v.Body)
	case *Delete:
		addExprs(v.Targets)
	case *UnsupportedStmt:
		addExprs(v.Exprs)
		addStmts(v.Body)
	case *Attribute:
		add(v.X)
	case *Subscript:
		add(v.X, v.Index)
	case *Call:
		add(v.Func)
		addExprs(v.Args)
		for _, kw := range v.Keywords {
			add(kw.Value)
		}
	case *BinOp:
		add(v.X, v.Y)
	case *UnaryOp:
		add(v.X)
	case *BoolOp:
		addExprs(v.Values)
	case *Compare:
		add(v.Left)
		addExprs(v.Comparators)
	case *IfExp:
		add(v.Cond, v.Then, v.Else)
	case *Lambda:
		addParams(v.Params)
		add(v.Body)
	case *Seq:
		addExprs(v.Elts)
	case *Dict:
		addExprs(v.Keys)
		addExprs(v.Values)
	case *Comp:
		add(v.Elt, v.Value)
		addExprs(v.Targets)
		addExprs(v.Iters)
		addExprs(v.Conds)
	case *Yield:
		add(v.Value)
	case *Await:
		add(v.X)
	case *NamedExpr:
		add(v.Value)
	case *Starred:
		add(v.X)
	case *FString:
		addExprs(v.Parts)
	case *UnsupportedExpr:
		addExprs(v.Exprs)
	}
	return out
}

// DottedName renders Name and Attribute chains as "a.b.c".
// It returns "" for anything else.
func DottedName(e Expr) string {
	switch v := e.(type) {
	case *Name:
		return v.Ident
	case *Attribute:
		head := DottedName(v.X)
		if head == "" {
			return ""
		}
		return head + "." + v.Attr
	}
	return ""
}

// Hash returns a deterministic content hash of the subtree rooted at n.
// It covers node kinds, names, literal values and positions.
func Hash(n Node) string {
	h := sha256.New()
	Inspect(n, func(node Node) bool {
		writeNode(h, node)
		return true
	})
	return hex.EncodeToString(h.Sum(nil))
}

func writeNode(h hash.Hash, n Node) {
	p := n.Pos()
	fmt.Fprintf(h, "%T@%d:%d|", n, p.Line, p.Column)
	switch v := n.(type) {
	case *FuncDef:
		fmt.Fprintf(h, "%s(%s)", v.Name, paramNames(v.Params))
	case *ClassDef:
		h.Write([]byte(v.Name))
	case *Name:
		h.Write([]byte(v.Ident))
	case *Const:
		fmt.Fprintf(h, "%d:%d:%g:%q:%t", v.Kind, v.Int, v.Float, v.Str, v.Bool)
	case *Attribute:
		h.Write([]byte(v.Attr))
	case *BinOp:
		h.Write([]byte(v.Op))
	case *UnaryOp:
		h.Write([]byte(v.Op))
	case *BoolOp:
		h.Write([]byte(v.Op))
	case *Compare:
		h.Write([]byte(strings.Join(v.Ops, ",")))
	case *Assign:
		h.Write([]byte(v.Op))
	case *Lambda:
		h.Write([]byte(paramNames(v.Params)))
	case *Import:
		fmt.Fprintf(h, "%s:%d:%v", v.Module, v.Level, v.Names)
	case *Global:
		fmt.Fprintf(h, "%v:%t", v.Names, v.Nonlocal)
	case *Simple:
		h.Write([]byte(v.Keyword))
	case *Handler:
		h.Write([]byte(v.Name))
	case *Seq:
		h.Write([]byte(v.Kind))
	case *Comp:
		h.Write([]byte(v.Kind))
	case *Call:
		for _, kw := range v.Keywords {
			h.Write([]byte(kw.Name + ","))
		}
	case *NamedExpr:
		h.Write([]byte(v.Target))
	case *Yield:
		fmt.Fprintf(h, "%t", v.From)
	case *Starred:
		fmt.Fprintf(h, "%t", v.Double)
	case *UnsupportedExpr:
		h.Write([]byte(v.Kind))
	case *UnsupportedStmt:
		h.Write([]byte(v.Kind))
	}
	h.Write([]byte{'\n'})
}

func paramNames(ps []Param) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Star + p.Name
	}
	return strings.Join(names, ",")
}
