package internal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnolang/dealint/internal/cache"
	"github.com/gnolang/dealint/internal/config"
	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/index"
	"github.com/gnolang/dealint/internal/matcher"
	"github.com/gnolang/dealint/internal/nolint"
	"github.com/gnolang/dealint/internal/pyast"
	"github.com/gnolang/dealint/internal/report"
	"github.com/gnolang/dealint/internal/solver"
	"github.com/gnolang/dealint/internal/stub"
)

// cacheVersion changes whenever summaries computed by an older build must
// not be reused.
const cacheVersion = "2"

// Engine runs the whole analysis over a set of Python files.
type Engine struct {
	cfg     *config.Config
	log     *zap.Logger
	stubs   *stub.Store
	cache   *cache.Cache
	prover  solver.Prover
	verbose bool
	// progress is called from the loading goroutines once per file.
	progress func(path string)

	ignoredRules map[string]bool
	ignoredPaths []string
}

// Result is the outcome of one run.
type Result struct {
	Records []report.Record
	Units   []*pyast.Unit
	Index   *index.Index
	// Specs maps qualified names to their contracts, inherited ones
	// included.
	Specs map[string]contract.Specs
}

// NewEngine prepares an engine. Stubs named by the configuration are
// loaded and the summary cache is opened when enabled.
func NewEngine(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	stubs, err := stub.Builtin()
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.Stubs {
		if filepath.Ext(p) == ".json" {
			err = stubs.LoadFile(p)
		} else {
			err = stubs.LoadDir(p)
		}
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:    cfg,
		log:    logger,
		stubs:  stubs,
		prover: solver.Nop{},
	}
	if cfg.Cache.Enabled {
		c, err := cache.NewCache(cfg.Cache.Dir)
		if err != nil {
			logger.Warn("Summary cache disabled", zap.String("dir", cfg.Cache.Dir), zap.Error(err))
		} else {
			c.SetLogger(logger)
			e.cache = c
		}
	}
	if cfg.Solver.Enabled {
		z := solver.NewZ3(cfg.Solver.Path, cfg.Solver.Timeout)
		if z.Available() {
			e.prover = z
		} else {
			logger.Warn("Solver not found, conditions are left to the evaluator", zap.String("path", cfg.Solver.Path))
		}
	}
	return e, nil
}

// Close releases the summary cache.
func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Stubs returns the loaded stub store.
func (e *Engine) Stubs() *stub.Store { return e.stubs }

// SetVerbose makes verbose-level diagnostics visible.
func (e *Engine) SetVerbose(v bool) { e.verbose = v }

// SetProgress registers a callback run after each file is parsed. It must
// be safe for concurrent use.
func (e *Engine) SetProgress(fn func(path string)) { e.progress = fn }

// IgnoreRule drops diagnostics with the given code or kind name.
func (e *Engine) IgnoreRule(rule string) {
	if e.ignoredRules == nil {
		e.ignoredRules = make(map[string]bool)
	}
	e.ignoredRules[strings.ToUpper(rule)] = true
}

// IgnorePath skips files matching the glob pattern.
func (e *Engine) IgnorePath(pattern string) {
	e.ignoredPaths = append(e.ignoredPaths, pattern)
}

// Ignored reports whether path matches an ignored or excluded pattern.
func (e *Engine) Ignored(path string) bool {
	for _, patterns := range [][]string{e.ignoredPaths, e.cfg.Exclude} {
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, path); ok {
				return true
			}
			if ok, _ := filepath.Match(p, filepath.Base(path)); ok {
				return true
			}
			if strings.HasPrefix(filepath.ToSlash(path), strings.TrimSuffix(filepath.ToSlash(p), "/")+"/") {
				return true
			}
		}
	}
	return false
}

// Run analyzes files as one project rooted at root. Only unreadable files
// abort the run; syntax errors become diagnostics.
func (e *Engine) Run(ctx context.Context, root string, files []string) (*Result, error) {
	units, recs, err := e.load(ctx, root, files)
	if err != nil {
		return nil, err
	}
	return e.analyze(ctx, units, recs)
}

// RunSource analyzes a single in-memory module.
func (e *Engine) RunSource(ctx context.Context, filename, module string, src []byte) (*Result, error) {
	u, err := pyast.Parse(ctx, filename, module, src)
	var perr *pyast.ParseError
	if errors.As(err, &perr) {
		return e.analyze(ctx, nil, []report.Record{report.ParseFailure(perr)})
	}
	if err != nil {
		return nil, err
	}
	return e.analyze(ctx, []*pyast.Unit{u}, nil)
}

func (e *Engine) load(ctx context.Context, root string, files []string) ([]*pyast.Unit, []report.Record, error) {
	units := make([]*pyast.Unit, len(files))
	var (
		mu   sync.Mutex
		recs []report.Record
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			u, err := pyast.Load(ctx, root, path)
			if e.progress != nil {
				defer e.progress(path)
			}
			var perr *pyast.ParseError
			if errors.As(err, &perr) {
				e.log.Warn("Skipping file with syntax error", zap.String("file", path), zap.Error(err))
				mu.Lock()
				recs = append(recs, report.ParseFailure(perr))
				mu.Unlock()
				return nil
			}
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := units[:0]
	for _, u := range units {
		if u != nil {
			out = append(out, u)
		}
	}
	return out, recs, nil
}

func (e *Engine) analyze(ctx context.Context, units []*pyast.Unit, recs []report.Record) (*Result, error) {
	specs, malformed := e.extract(units)
	for _, m := range malformed {
		recs = append(recs, report.Malformed(m))
	}

	x := index.New(units, index.Options{
		Effect:                effect.Options{MaxLoopIterations: e.cfg.Analysis.MaxLoopIterations},
		MaxFixpointIterations: e.cfg.Analysis.MaxFixpointIterations,
		Workers:               e.cfg.Analysis.Workers,
		Stubs:                 e.stubs,
		Cache:                 e.cache,
		CacheSalt:             cacheVersion + "|" + e.stubs.Fingerprint(),
		Logger:                e.log,
	})
	if err := x.Build(ctx); err != nil {
		return nil, fmt.Errorf("building summaries: %w", err)
	}
	for _, c := range x.Cycles() {
		recs = append(recs, report.Cycle(c))
	}

	inheritSpecs(x.Resolver(), specs)
	lookup := func(qual string) contract.Specs { return specs[qual] }
	m := matcher.New(x.Resolver(), lookup, matcher.Options{
		Ignore:             e.cfg.Ignore,
		ReportInconclusive: e.cfg.Analysis.ReportInconclusive,
		Prover:             e.prover,
	})

	var vs []matcher.Violation
	for _, u := range units {
		for _, d := range u.Decls {
			if d.Kind != pyast.DeclFunc {
				continue
			}
			s, ok := x.Lookup(d.QualName)
			if !ok {
				continue
			}
			vs = append(vs, m.Match(ctx, d, s, specs[d.QualName])...)
		}
	}
	recs = append(recs, report.Render(vs)...)

	nolints := nolint.New()
	for _, u := range units {
		nolints.Add(u)
	}
	kept := recs[:0]
	for _, r := range recs {
		if e.ignoredRules[r.Code] || e.ignoredRules[strings.ToUpper(r.Kind)] {
			continue
		}
		if nolints.IsNolint(r.File, r.Line, r.Code, r.Kind) {
			continue
		}
		kept = append(kept, r)
	}

	e.log.Debug("Analysis finished",
		zap.Int("units", len(units)),
		zap.Int("violations", len(vs)),
		zap.Int("cycles", len(x.Cycles())))

	return &Result{
		Records: report.Rules(e.cfg.Rules).Apply(kept, e.verbose),
		Units:   units,
		Index:   x,
		Specs:   specs,
	}, nil
}

func (e *Engine) extract(units []*pyast.Unit) (map[string]contract.Specs, []contract.Malformed) {
	patterns := e.cfg.Patterns()
	specs := map[string]contract.Specs{}
	var malformed []contract.Malformed
	for _, u := range units {
		res := contract.Extract(u, patterns)
		malformed = append(malformed, res.Malformed...)
		for _, d := range u.Decls {
			if s, ok := res.Specs[d.Node().ID()]; ok {
				specs[d.QualName] = s
			}
		}
	}
	return specs, malformed
}

// inheritSpecs copies base-class method contracts onto methods that ask
// for them, directly or through an inherit marker on their class.
func inheritSpecs(res *effect.Resolver, specs map[string]contract.Specs) {
	var methods []*pyast.Decl
	for _, d := range res.Decls() {
		if d.IsMethod() && (specs[d.QualName].Has(contract.Inherit) || specs[d.Parent.QualName].Has(contract.Inherit)) {
			methods = append(methods, d)
		}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].QualName < methods[j].QualName })
	for _, d := range methods {
		var bases []contract.Specs
		for _, cls := range res.MRO(d.Parent.QualName)[1:] {
			if b, ok := res.Decl(cls + "." + d.Name); ok {
				bases = append(bases, specs[b.QualName])
			}
		}
		if merged := contract.MergeInherited(specs[d.QualName], bases...); len(merged) > 0 {
			specs[d.QualName] = merged
		}
	}
}
