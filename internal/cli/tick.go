package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick [pmid]",
	Short: "Advance the pipeline",
	Long: `Advance articles through their stages. Without arguments, every article
with open stages is processed once. With a PMID, that article is advanced by
a single stage attempt, which is useful for debugging a stuck record.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			outcome, err := a.eng.Tick(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s: %s", args[0], outcome.Kind)
			if outcome.Stage != "" {
				fmt.Fprintf(w, " (%s)", outcome.Stage)
			}
			if outcome.Err != nil {
				fmt.Fprintf(w, ": %v", outcome.Err)
			}
			fmt.Fprintln(w)
			return nil
		}

		stats, err := a.eng.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "processed %d articles: %d advanced, %d failed, %d corrupt\n",
			stats.Articles, stats.Advanced, stats.Failed, stats.Corrupt)
		return nil
	},
}
