package cmd

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/lint"
)

var showEffects bool

// funcContracts is one entry of the contracts listing.
type funcContracts struct {
	Name      string          `json:"name"`
	File      string          `json:"file"`
	Contracts contract.Specs  `json:"contracts"`
	Effects   *effect.Summary `json:"effects,omitempty"`
}

var contractsCmd = &cobra.Command{
	Use:   "contracts [paths...]",
	Short: "List the contracts of every function and class as JSON",
	Args:  cobra.MinimumNArgs(1),
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

		files := map[string]string{}
		for _, u := range res.Units {
			for _, d := range u.Decls {
				files[d.QualName] = u.Path
			}
		}

		out := []funcContracts{}
		for qual, specs := range res.Specs {
			entry := funcContracts{Name: qual, File: files[qual], Contracts: specs}
			if showEffects {
				entry.Effects, _ = res.Index.Lookup(qual)
			}
			out = append(out, entry)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	contractsCmd.Flags().StringVar(&rootDir, "root", "", "Import root used to name modules")
	contractsCmd.Flags().BoolVar(&showEffects, "effects", false, "Include the inferred effects of each function")
}
