package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/f8ai/pubpipe/internal/stats"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status across all articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		snaps, err := a.records.List(cmd.Context())
		if err != nil {
			return err
		}
		report := stats.Build(snaps)

		var daily *stats.Daily
		if a.events != nil {
			daily, err = stats.BuildDaily(cmd.Context(), a.events)
			if err != nil {
				return fmt.Errorf("daily stats: %w", err)
			}
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			out := struct {
				*stats.Report
				Daily *stats.Daily `json:"daily,omitempty"`
			}{Report: report, Daily: daily}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Articles:   %d (%d complete, %d blocked)\n",
			report.Articles, report.Complete, report.Blocked)
		if report.Scored > 0 {
			fmt.Fprintf(w, "Relevance:  avg %.2f, p50 %.2f, p95 %.2f (%d scored)\n",
				report.AvgScore, report.P50Score, report.P95Score, report.Scored)
		}
		if daily != nil {
			fmt.Fprintf(w, "Discovered: %d today, %d this week\n",
				daily.DiscoveredToday, daily.DiscoveredWeek)
		}

		fmt.Fprintf(w, "\n%-10s %-8s %-12s %-6s %-8s %s\n",
			"STAGE", "PENDING", "IN_PROGRESS", "DONE", "FAILED", "SKIPPED")
		fmt.Fprintf(w, "%-10s %-8s %-12s %-6s %-8s %s\n",
			strings.Repeat("-", 10), strings.Repeat("-", 8), strings.Repeat("-", 12),
			strings.Repeat("-", 6), strings.Repeat("-", 8), strings.Repeat("-", 7))
		for _, sc := range report.Stages {
			fmt.Fprintf(w, "%-10s %-8d %-12d %-6d %-8d %d\n",
				sc.Stage, sc.Pending, sc.InProgress, sc.Done, sc.Failed, sc.Skipped)
		}

		if len(report.Categories) > 0 {
			names := make([]string, 0, len(report.Categories))
			for name := range report.Categories {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintln(w)
			for _, name := range names {
				fmt.Fprintf(w, "%-40s %d\n", name, report.Categories[name])
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
