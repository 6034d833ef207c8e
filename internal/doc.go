// Package internal ties the analysis stages together.
//
// An Engine parses a set of Python files, extracts the deal contracts
// attached to their functions and classes, infers the effects of every
// function through the project index, and checks each function's effects
// against its contracts. The output is a sorted list of report records,
// already filtered by nolint comments, ignored rules and configured
// severities.
//
// Key components:
//
// Engine: loads stubs and the summary cache once, then analyzes projects
// with Run or single modules with RunSource.
//
// Result: the records of a run together with the parsed units, the index
// and the contracts of every function, for commands that need more than
// diagnostics.
//
// Watcher: re-runs an engine over a directory whenever one of its Python
// files changes.
//
// SourceCode: the lines of a file, used when rendering snippets.
//
// Usage:
//
//	cfg, err := config.Load(".", "")
//	if err != nil {
//	    // handle error
//	}
//	engine, err := internal.NewEngine(cfg, logger)
//	if err != nil {
//	    // handle error
//	}
//	defer engine.Close()
//
//	res, err := engine.Run(ctx, "src", []string{"src/shop/cart.py"})
//	if err != nil {
//	    // handle error
//	}
//	for _, rec := range res.Records {
//	    fmt.Println(rec)
//	}
package internal
