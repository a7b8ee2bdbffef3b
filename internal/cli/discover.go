package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [category]",
	Short: "Run PubMed searches and register new articles",
	Long: `Run the configured searches and register every hit. Unknown PMIDs get a
fresh record with all stages pending; already-known ones get the category
added to their set. Discovery never re-runs completed stages.

With a category argument, only that category's terms are searched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		categories := a.cfg.Pipeline.Categories
		if len(args) == 1 {
			categories = nil
			for _, c := range a.cfg.Pipeline.Categories {
				if c.Name == args[0] {
					categories = append(categories, c)
				}
			}
			if len(categories) == 0 {
				return fmt.Errorf("unknown category %q", args[0])
			}
		}

		w := cmd.OutOrStdout()
		for _, cat := range categories {
			for _, term := range cat.Terms {
				res, err := a.eng.Discover(cmd.Context(), cat.Name, term, a.cfg.Pipeline.MaxResults)
				if err != nil {
					return fmt.Errorf("discover %q: %w", term, err)
				}
				fmt.Fprintf(w, "%-24s %-36q found %3d  new %3d\n", cat.Name, term, len(res.PMIDs), res.Created)
			}
		}
		return nil
	},
}
