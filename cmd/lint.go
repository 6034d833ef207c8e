package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/dealint/formatter"
	"github.com/gnolang/dealint/internal"
	"github.com/gnolang/dealint/internal/report"
	"github.com/gnolang/dealint/lint"
)

var (
	ignoreRules  string
	ignorePaths  string
	jsonOutput   bool
	outputFormat string
	outPath      string
	colorMode    string
	rootDir      string
	noProgress   bool
)

// stdinName names the module read from standard input.
const stdinName = "stdin.py"

var lintCmd = &cobra.Command{
	Use:   "lint [paths...]",
	Short: "Check functions against their contracts",
	Long: `Analyzes the given files and directories as one project and reports
functions whose behavior contradicts their deal contracts.
Use "-" to read a single module from standard input.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		format := outputFormat
		if jsonOutput {
			format = "json"
		}

		var (
			res  *internal.Result
			code *internal.SourceCode
		)
		if len(args) == 1 && args[0] == "-" {
			src, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			code = &internal.SourceCode{Lines: strings.Split(string(src), "\n")}
			res, err = lint.ProcessSource(ctx, engine, stdinName, src)
			if err != nil {
				return err
			}
		} else {
			opts := lint.Options{Root: rootDir}
			if !noProgress && format != "json" && isatty.IsTerminal(os.Stderr.Fd()) {
				opts.Progress = os.Stderr
			}
			res, err = lint.ProcessPaths(ctx, logger, engine, args, opts)
			if err != nil {
				return err
			}
		}

		out, closeOut, err := openOutput(cmd, outPath)
		if err != nil {
			return err
		}
		defer closeOut()

		if err := printRecords(out, res.Records, format, code); err != nil {
			return err
		}
		if report.Failing(res.Records) {
			return ErrFailing
		}
		return nil
	},
}

func init() {
	lintCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of rule codes or kinds to ignore")
	lintCmd.Flags().StringVar(&ignorePaths, "ignore-paths", "", "Comma-separated list of paths to ignore")
	lintCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output records in JSON format (same as --format json)")
	lintCmd.Flags().StringVar(&outputFormat, "format", "pretty", "Output format: pretty, text or json")
	lintCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path")
	lintCmd.Flags().StringVar(&colorMode, "color", "auto", "Color output: auto, always or never")
	lintCmd.Flags().StringVar(&rootDir, "root", "", "Import root used to name modules")
	lintCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show the progress bar")
}

// newEngine builds an engine from the configuration and the shared
// ignore flags.
func newEngine() (*internal.Engine, error) {
	engine, err := lint.New(".", cfgFile, logger)
	if err != nil {
		logger.Error("Failed to initialize engine", zap.Error(err))
		return nil, err
	}
	engine.SetVerbose(verbose)

	for _, rule := range splitList(ignoreRules) {
		engine.IgnoreRule(rule)
	}
	for _, path := range splitList(ignorePaths) {
		engine.IgnorePath(path)
	}
	return engine, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// openOutput returns the command's stdout, or the file at path.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// printRecords writes records in the requested format. code, when set,
// is the source of every record, as for standard input.
func printRecords(w io.Writer, recs []report.Record, format string, code *internal.SourceCode) error {
	switch format {
	case "json":
		return report.WriteJSON(w, report.NewRunID(), recs)
	case "text":
		return report.WriteText(w, recs)
	case "pretty":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if f, ok := w.(*os.File); ok {
		formatter.SetColor(colorMode, f)
	} else {
		formatter.SetColor("never", nil)
	}

	recsByFile := make(map[string][]report.Record)
	for _, rec := range recs {
		recsByFile[rec.File] = append(recsByFile[rec.File], rec)
	}

	sortedFiles := make([]string, 0, len(recsByFile))
	for filename := range recsByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	for _, filename := range sortedFiles {
		sourceCode := code
		if sourceCode == nil {
			var err error
			sourceCode, err = internal.ReadSourceCode(filename)
			if err != nil {
				logger.Warn("Error reading source file", zap.String("file", filename), zap.Error(err))
			}
		}
		if _, err := fmt.Fprint(w, formatter.GenerateFormattedIssue(recsByFile[filename], sourceCode)); err != nil {
			return err
		}
	}
	return nil
}
