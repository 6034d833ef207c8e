package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/dealint/internal"
	"github.com/gnolang/dealint/lint"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-run the analysis whenever a Python file changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		root := dir
		if rootDir != "" {
			root = rootDir
		}

		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		w := internal.NewWatcher(engine, root,
			func() ([]string, error) { return lint.CollectFiles(engine, []string{dir}) },
			func(res *internal.Result, err error) {
				if err != nil {
					logger.Error("Analysis failed", zap.Error(err))
					return
				}
				fmt.Fprintf(out, "[%s] %d records\n", time.Now().Format(time.TimeOnly), len(res.Records))
				if err := printRecords(out, res.Records, outputFormat, nil); err != nil {
					logger.Error("Error printing records", zap.Error(err))
				}
			})
		w.Debounce = watchDebounce
		return w.Watch(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&rootDir, "root", "", "Import root used to name modules")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", internal.DefaultDebounce, "Wait this long after the last change before analyzing")
	watchCmd.Flags().StringVar(&outputFormat, "format", "pretty", "Output format: pretty, text or json")
}
