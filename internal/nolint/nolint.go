package nolint

import (
	"fmt"
	"strings"

	"github.com/gnolang/dealint/internal/pyast"
)

var prefixes = []string{"noqa", "nolint"}

// Manager manages suppression scopes and checks if a line is suppressed.
type Manager struct {
	// scopes maps filename to a slice of suppression scopes.
	scopes map[string][]nolintScope
}

// nolintScope is a line range where suppression applies.
type nolintScope struct {
	rules map[string]struct{}
	start int
	end   int
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{scopes: make(map[string][]nolintScope)}
}

// ParseComments parses the `# noqa` and `# nolint` comments of a unit and
// returns a Manager.
func ParseComments(u *pyast.Unit) *Manager {
	m := New()
	m.Add(u)
	return m
}

// Add records the suppression comments of another unit.
func (m *Manager) Add(u *pyast.Unit) {
	stmtMap := indexStatementsByLine(u.Body)
	firstLine := 0
	if len(u.Body) > 0 {
		firstLine = startLine(u.Body[0])
	}

	for _, c := range u.Comments {
		ns, err := parseComment(c, stmtMap, firstLine)
		if err != nil {
			// ignore unrelated and invalid comments
			continue
		}
		m.scopes[u.Path] = append(m.scopes[u.Path], ns)
	}
}

// parseComment parses a single comment and determines its scope.
func parseComment(c pyast.Comment, stmtMap map[int]pyast.Stmt, firstLine int) (nolintScope, error) {
	var ns nolintScope
	text := strings.TrimSpace(strings.TrimPrefix(c.Text, "#"))

	rest, ok := "", false
	for _, p := range prefixes {
		if strings.HasPrefix(strings.ToLower(text), p) {
			rest, ok = text[len(p):], true
			break
		}
	}
	if !ok {
		return ns, fmt.Errorf("not a suppression comment")
	}

	// Rules may follow a colon; without one the comment suppresses everything.
	if rest != "" && rest[0] != ':' && rest[0] != ' ' {
		return ns, fmt.Errorf("invalid suppression comment format")
	}
	if strings.HasPrefix(rest, ":") {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		if rest == "" {
			return ns, fmt.Errorf("invalid suppression comment: no rules specified after colon")
		}
	} else {
		rest = ""
	}
	ns.rules = parseIgnoreRuleNames(rest)
	line := c.Pos.Line

	// A comment before the first statement applies to the entire file.
	if firstLine == 0 || line < firstLine {
		ns.start, ns.end = 1, int(^uint(0)>>1)
		return ns, nil
	}

	// Inline comments apply to the statement they trail.
	if stmt, exists := stmtMap[line]; exists && stmt.Pos().Column < c.Pos.Column {
		ns.start, ns.end = scopeOf(stmt, line)
		return ns, nil
	}

	// A standalone comment applies to the statement on the next line.
	if stmt, exists := stmtMap[line+1]; exists {
		_, ns.end = scopeOf(stmt, line+1)
		ns.start = line
		return ns, nil
	}

	ns.start, ns.end = line, line
	return ns, nil
}

// scopeOf returns the lines a suppression attached to stmt covers.
// Definitions are covered whole, compound statements only on their header.
func scopeOf(stmt pyast.Stmt, line int) (int, int) {
	switch stmt.(type) {
	case *pyast.FuncDef, *pyast.ClassDef:
		return line, stmt.End().Line
	case *pyast.If, *pyast.For, *pyast.While, *pyast.Try, *pyast.With:
		return line, line
	}
	return line, stmt.End().Line
}

// parseIgnoreRuleNames parses the rule list of a suppression comment.
// Anything after the first space-separated word that is not a rule is
// treated as a free-form reason.
func parseIgnoreRuleNames(text string) map[string]struct{} {
	rulesMap := make(map[string]struct{})
	if text == "" {
		return rulesMap
	}
	for _, field := range strings.Split(text, ",") {
		rule := strings.TrimSpace(field)
		if i := strings.IndexByte(rule, ' '); i >= 0 {
			rule = rule[:i]
		}
		if rule != "" {
			rulesMap[strings.ToUpper(rule)] = struct{}{}
		}
	}
	return rulesMap
}

// startLine is the first line of a statement, including its decorators.
func startLine(s pyast.Stmt) int {
	line := s.Pos().Line
	var decorators []pyast.Expr
	switch v := s.(type) {
	case *pyast.FuncDef:
		decorators = v.Decorators
	case *pyast.ClassDef:
		decorators = v.Decorators
	}
	for _, d := range decorators {
		if l := d.Pos().Line; l < line {
			line = l
		}
	}
	return line
}

// indexStatementsByLine maps each line to the statement starting on it.
// If multiple statements start on one line, only the first is recorded.
// Decorated definitions are also indexed under their first decorator.
func indexStatementsByLine(body []pyast.Stmt) map[int]pyast.Stmt {
	stmtMap := make(map[int]pyast.Stmt)
	record := func(line int, s pyast.Stmt) {
		if _, exists := stmtMap[line]; !exists {
			stmtMap[line] = s
		}
	}
	pyast.InspectBody(body, func(n pyast.Node) bool {
		if s, ok := n.(pyast.Stmt); ok {
			record(s.Pos().Line, s)
			if first := startLine(s); first != s.Pos().Line {
				record(first, s)
			}
		}
		return true
	})
	return stmtMap
}

// IsNolint reports whether a line is suppressed for any of the given
// rule names. Rule names are compared case-insensitively.
func (m *Manager) IsNolint(filename string, line int, rules ...string) bool {
	if m == nil {
		return false
	}
	scopes, exists := m.scopes[filename]
	if !exists {
		return false
	}
	for _, ns := range scopes {
		if line < ns.start || line > ns.end {
			continue
		}
		// If the rules list is empty, suppression applies to all rules
		if len(ns.rules) == 0 {
			return true
		}
		for _, r := range rules {
			if _, exists := ns.rules[strings.ToUpper(r)]; exists {
				return true
			}
		}
	}
	return false
}
