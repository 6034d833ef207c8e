package index

import (
	"sort"

	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/pyast"
)

// Edge is one call from a project function.
type Edge struct {
	Caller string    `json:"caller"`
	Ref    string    `json:"ref"`
	Callee string    `json:"callee,omitempty"`
	Pos    pyast.Pos `json:"pos"`
}

type graph struct {
	nodes        []string
	dependencies map[string][]string
	edges        []Edge
}

// buildGraph collects every function and its project callees.
func buildGraph(res *effect.Resolver) *graph {
	g := &graph{dependencies: make(map[string][]string)}
	for _, d := range res.Decls() {
		if d.Kind != pyast.DeclFunc {
			continue
		}
		g.nodes = append(g.nodes, d.QualName)
		seen := map[string]bool{}
		for _, c := range res.Callees(d) {
			e := Edge{Caller: d.QualName, Ref: c.Ref, Pos: c.Pos}
			if c.Target.Kind == effect.TargetProject && c.Target.Decl != nil && c.Target.Decl.Kind == pyast.DeclFunc {
				e.Callee = c.Target.Qual
				if !seen[e.Callee] {
					seen[e.Callee] = true
					g.dependencies[d.QualName] = append(g.dependencies[d.QualName], e.Callee)
				}
			}
			g.edges = append(g.edges, e)
		}
	}
	sort.Strings(g.nodes)
	return g
}

// recursive reports whether a component calls back into itself.
func (g *graph) recursive(members []string) bool {
	if len(members) > 1 {
		return true
	}
	for _, dep := range g.dependencies[members[0]] {
		if dep == members[0] {
			return true
		}
	}
	return false
}

// tarjan holds the state of one strongly-connected-components pass.
type tarjan struct {
	g       *graph
	counter int
	index   map[string]int
	low     map[string]int
	onStack map[string]bool
	stack   []string
	sccs    [][]string
}

// components returns the strongly connected components of g. A component
// is listed only after every component it calls.
func (g *graph) components() [][]string {
	t := &tarjan{
		g:       g,
		index:   make(map[string]int),
		low:     make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, n := range g.nodes {
		if _, visited := t.index[n]; !visited {
			t.dfs(n)
		}
	}
	return t.sccs
}

func (t *tarjan) dfs(name string) {
	t.index[name] = t.counter
	t.low[name] = t.counter
	t.counter++
	t.stack = append(t.stack, name)
	t.onStack[name] = true

	for _, dep := range t.g.dependencies[name] {
		if _, visited := t.index[dep]; !visited {
			t.dfs(dep)
			t.low[name] = min(t.low[name], t.low[dep])
		} else if t.onStack[dep] {
			t.low[name] = min(t.low[name], t.index[dep])
		}
	}

	if t.low[name] != t.index[name] {
		return
	}
	var scc []string
	for {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[top] = false
		scc = append(scc, top)
		if top == name {
			break
		}
	}
	sort.Strings(scc)
	t.sccs = append(t.sccs, scc)
}
