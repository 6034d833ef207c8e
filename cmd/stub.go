package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/stub"
	"github.com/gnolang/dealint/lint"
)

var stubDir string

var stubCmd = &cobra.Command{
	Use:   "stub [paths...]",
	Short: "Generate effect stubs for Python modules",
	Long: `Infers which exceptions and markers the functions of each module have
and writes them as stub files that later runs can load through the
"stubs" configuration entry. Without --dir the stub of a single module is
printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		res, err := lint.ProcessPaths(ctx, logger, engine, args, lint.Options{Root: rootDir})
		if err != nil {
			return err
		}
		if stubDir == "" && len(res.Units) != 1 {
			return fmt.Errorf("%d modules found, use --dir to write their stubs", len(res.Units))
		}

		summary := func(qual string) *effect.Summary {
			s, _ := res.Index.Lookup(qual)
			return s
		}
		for _, u := range res.Units {
			f := stub.Generate(u, summary)
			if stubDir == "" {
				return f.Write(cmd.OutOrStdout())
			}
			data, err := stub.Encode(f)
			if err != nil {
				return err
			}
			path := filepath.Join(stubDir, u.Module+".json")
			if err := os.MkdirAll(stubDir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing stub: %w", err)
			}
			logger.Info("Stub written", zap.String("module", u.Module), zap.Int("functions", len(f)))
		}
		return nil
	},
}

func init() {
	stubCmd.Flags().StringVar(&rootDir, "root", "", "Import root used to name modules")
	stubCmd.Flags().StringVar(&stubDir, "dir", "", "Directory the stubs are written to")
}
