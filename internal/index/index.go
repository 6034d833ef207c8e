// Package index computes effect summaries for every function of a
// project. Functions are grouped into strongly connected components of
// the call graph and scheduled on a worker pool, callees first. Recursive
// components are iterated to a fixed point.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnolang/dealint/internal/analysis/symbolic"
	"github.com/gnolang/dealint/internal/cache"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/pyast"
	"github.com/gnolang/dealint/internal/stub"
)

// DefaultMaxFixpointIterations bounds recursive components when Options
// leaves it unset.
const DefaultMaxFixpointIterations = 8

// widenAfter is the number of fixed-point rounds after which return
// facts are widened.
const widenAfter = 2

// Options configures an Index.
type Options struct {
	Effect                effect.Options
	MaxFixpointIterations int
	// Workers bounds the number of components computed at once.
	Workers int
	Stubs   *stub.Store
	Cache   *cache.Cache
	// CacheSalt is mixed into every cache key. Callers set it to a
	// fingerprint of whatever outside the function tree shapes a summary,
	// such as the loaded stubs.
	CacheSalt string
	Logger    *zap.Logger
}

// Cycle records a recursive component that did not reach a fixed point.
type Cycle struct {
	Members    []string
	Iterations int
	Path       string
	Pos        pyast.Pos
}

type state int

const (
	pending state = iota
	running
	done
)

type component struct {
	members   []string
	recursive bool
	state     state
	owner     int64
	ready     chan struct{}
}

func (c *component) has(qual string) bool {
	for _, m := range c.members {
		if m == qual {
			return true
		}
	}
	return false
}

type entry struct {
	decl    *pyast.Decl
	comp    *component
	summary *effect.Summary
}

// Index holds one summary per project function.
type Index struct {
	res   *effect.Resolver
	opts  Options
	log   *zap.Logger
	graph *graph
	comps []*component

	// entries is fixed after New; entry summaries and component state
	// are guarded by mu.
	entries map[string]*entry
	mu      sync.RWMutex
	waiting map[int64]*component
	cycles  []Cycle

	workers atomic.Int64
}

// New registers every function of units and builds the call graph.
// Nothing is inferred until Build.
func New(units []*pyast.Unit, opts Options) *Index {
	if opts.MaxFixpointIterations <= 0 {
		opts.MaxFixpointIterations = DefaultMaxFixpointIterations
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	res := effect.NewResolver(units...)
	x := &Index{
		res:     res,
		opts:    opts,
		log:     log,
		graph:   buildGraph(res),
		entries: make(map[string]*entry),
		waiting: make(map[int64]*component),
	}
	for _, members := range x.graph.components() {
		c := &component{
			members:   members,
			recursive: x.graph.recursive(members),
			ready:     make(chan struct{}),
		}
		x.comps = append(x.comps, c)
		for _, m := range members {
			d, _ := res.Decl(m)
			x.entries[m] = &entry{decl: d, comp: c}
		}
	}
	return x
}

// Build computes every summary. Components are submitted callees first;
// a worker that needs a summary nobody has started computes it inline.
// On cancellation no new component is started and Build returns the
// context error.
func (x *Index) Build(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Workers)
	for _, c := range x.comps {
		c := c
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			x.newWorker(gctx).run(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Resolver returns the resolver shared by every summary in the index.
func (x *Index) Resolver() *effect.Resolver { return x.res }

// Lookup returns the summary of a project function once it is computed.
func (x *Index) Lookup(qual string) (*effect.Summary, bool) {
	e, ok := x.entries[qual]
	if !ok {
		return nil, false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return e.summary, e.summary != nil
}

// Stub returns the stub entry for a name outside the project.
func (x *Index) Stub(name string) (effect.StubEntry, bool) {
	return x.opts.Stubs.Lookup(name)
}

// Edges returns every call edge of the project.
func (x *Index) Edges() []Edge {
	return append([]Edge(nil), x.graph.edges...)
}

// Components returns the strongly connected components, callees first.
func (x *Index) Components() [][]string {
	out := make([][]string, len(x.comps))
	for i, c := range x.comps {
		out[i] = append([]string(nil), c.members...)
	}
	return out
}

// Cycles returns the recursive components that did not converge.
func (x *Index) Cycles() []Cycle {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := append([]Cycle(nil), x.cycles...)
	sort.Slice(out, func(i, j int) bool { return out[i].Members[0] < out[j].Members[0] })
	return out
}

// lookup returns the summary of qual for worker w, computing or waiting
// for it as needed. Waiting on a component that would close a waits-for
// cycle back to w yields Unknown instead.
func (x *Index) lookup(w *worker, qual string) *effect.Summary {
	e, ok := x.entries[qual]
	if !ok {
		return effect.Unknown(qual)
	}
	c := e.comp
	for {
		x.mu.Lock()
		switch c.state {
		case done:
			s := e.summary
			x.mu.Unlock()
			return s
		case pending:
			x.mu.Unlock()
			w.run(c)
			continue
		}
		if x.waitsOn(c, w.id) {
			x.mu.Unlock()
			x.log.Debug("summary lookup would deadlock", zap.String("function", qual))
			return effect.Unknown(qual)
		}
		x.waiting[w.id] = c
		x.mu.Unlock()

		select {
		case <-c.ready:
		case <-w.ctx.Done():
		}

		x.mu.Lock()
		delete(x.waiting, w.id)
		x.mu.Unlock()
		if w.ctx.Err() != nil {
			return effect.Unknown(qual)
		}
	}
}

// waitsOn reports whether worker id is, directly or through other
// waiting workers, the owner of c. Callers hold mu.
func (x *Index) waitsOn(c *component, id int64) bool {
	owner := c.owner
	for i, n := 0, len(x.waiting)+1; i < n; i++ {
		if owner == id {
			return true
		}
		next, ok := x.waiting[owner]
		if !ok {
			return false
		}
		owner = next.owner
	}
	return true
}

func (x *Index) treeHash(d *pyast.Decl) string {
	h := sha256.New()
	h.Write([]byte(x.opts.CacheSalt))
	h.Write([]byte(pyast.Hash(d.Func)))
	// module-level statements decide how names resolve
	for _, s := range d.Unit.Body {
		switch s.(type) {
		case *pyast.FuncDef, *pyast.ClassDef:
			continue
		}
		h.Write([]byte(pyast.Hash(s)))
	}
	for p := d.Parent; p != nil; p = p.Parent {
		if p.Kind == pyast.DeclClass {
			for _, b := range x.res.MRO(p.QualName) {
				h.Write([]byte(b))
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// frame is one component on a worker's chain. prov holds the provisional
// summaries of a recursive component during iteration.
type frame struct {
	comp *component
	prov map[string]*effect.Summary
}

// worker computes components on one goroutine. It implements
// effect.Context.
type worker struct {
	x      *Index
	id     int64
	ctx    context.Context
	frames []*frame
}

func (x *Index) newWorker(ctx context.Context) *worker {
	return &worker{x: x, id: x.workers.Add(1), ctx: ctx}
}

func (w *worker) Resolver() *effect.Resolver { return w.x.res }

func (w *worker) Stub(name string) (effect.StubEntry, bool) { return w.x.Stub(name) }

func (w *worker) Summary(qual string) *effect.Summary {
	if n := len(w.frames); n > 0 {
		if s, ok := w.frames[n-1].prov[qual]; ok {
			return s
		}
		for _, f := range w.frames[:n-1] {
			if f.comp.has(qual) {
				return effect.Unknown(qual)
			}
		}
	}
	return w.x.lookup(w, qual)
}

func (w *worker) push(c *component, prov map[string]*effect.Summary) {
	w.frames = append(w.frames, &frame{comp: c, prov: prov})
}

func (w *worker) pop() {
	w.frames = w.frames[:len(w.frames)-1]
}

// run claims c and computes it. It returns at once when c was already
// claimed. The first summary published for a function wins.
func (w *worker) run(c *component) {
	x := w.x
	x.mu.Lock()
	if c.state != pending {
		x.mu.Unlock()
		return
	}
	c.state = running
	c.owner = w.id
	x.mu.Unlock()

	var results map[string]*effect.Summary
	if c.recursive {
		results = w.fixpoint(c)
	} else {
		results = map[string]*effect.Summary{c.members[0]: w.single(c, c.members[0])}
	}

	x.mu.Lock()
	for q, s := range results {
		if e := x.entries[q]; e.summary == nil {
			e.summary = s
		}
	}
	c.state = done
	x.mu.Unlock()
	close(c.ready)
}

// single computes a non-recursive function, reusing the cached summary
// when neither its tree nor any callee summary changed.
func (w *worker) single(c *component, qual string) *effect.Summary {
	x := w.x
	d := x.entries[qual].decl
	deps := make(map[string]string, len(x.graph.dependencies[qual]))
	for _, dep := range x.graph.dependencies[qual] {
		deps[dep] = w.Summary(dep).Fingerprint()
	}
	hash := x.treeHash(d)
	if s, ok := x.opts.Cache.Get(qual, hash, deps); ok {
		return s
	}

	w.push(c, nil)
	s := effect.Infer(d, w, x.opts.Effect)
	w.pop()

	if w.ctx.Err() == nil {
		if err := x.opts.Cache.Set(qual, hash, deps, s); err != nil {
			x.log.Warn("failed to cache summary", zap.String("function", qual), zap.Error(err))
		}
	}
	return s
}

// fixpoint iterates a recursive component from Bottom until no member
// summary changes. Without convergence every member becomes Unknown over
// every kind any member mentions.
func (w *worker) fixpoint(c *component) map[string]*effect.Summary {
	x := w.x
	prov := make(map[string]*effect.Summary, len(c.members))
	for _, m := range c.members {
		prov[m] = effect.Bottom(m)
	}

	w.push(c, prov)
	defer w.pop()
	for round := 1; round <= x.opts.MaxFixpointIterations; round++ {
		changed := false
		for _, m := range c.members {
			s := effect.Infer(x.entries[m].decl, w, x.opts.Effect)
			if round > widenAfter {
				widenReturns(prov[m], s)
			}
			if !s.Equal(prov[m]) {
				changed = true
			}
			prov[m] = s
		}
		if !changed {
			x.log.Debug("recursive component converged",
				zap.Strings("members", c.members), zap.Int("rounds", round))
			return prov
		}
	}

	kinds := map[string]bool{}
	for _, s := range prov {
		for k := range s.Raises {
			if k != effect.UnknownException {
				kinds[k] = true
			}
		}
	}
	mentioned := make([]string, 0, len(kinds))
	for k := range kinds {
		mentioned = append(mentioned, k)
	}
	sort.Strings(mentioned)

	out := make(map[string]*effect.Summary, len(c.members))
	for _, m := range c.members {
		out[m] = effect.Unknown(m, mentioned...)
	}
	first := x.entries[c.members[0]].decl
	x.mu.Lock()
	x.cycles = append(x.cycles, Cycle{
		Members:    append([]string(nil), c.members...),
		Iterations: x.opts.MaxFixpointIterations,
		Path:       first.Unit.Path,
		Pos:        first.Func.Pos(),
	})
	x.mu.Unlock()
	x.log.Debug("recursive component did not converge", zap.Strings("members", c.members))
	return out
}

// widenReturns pushes every return fact of next that moved since old
// towards its limit.
func widenReturns(old, next *effect.Summary) {
	for i, r := range next.Returns {
		for _, o := range old.Returns {
			if o.Pos == r.Pos && o.Yield == r.Yield && o.Implicit == r.Implicit {
				next.Returns[i].Value = symbolic.Widen(o.Value, r.Value)
				break
			}
		}
	}
}
