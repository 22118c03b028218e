package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/coffeeshop/internal/app"
)

func seedCmd(g *globals) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the coffee shop catalog into the configured storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.SeedCatalog(cmd.Context(), g.cfg, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog seeded: sub_categories=%d products=%d\n", result.SubCategories, result.Products)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML (default: built-in catalog)")
	return cmd
}
