package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f8ai/pubpipe/internal/feeds"
	"github.com/f8ai/pubpipe/internal/gitsync"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Regenerate the published RSS feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		p := &a.cfg.Pipeline

		gen := feeds.NewGenerator(a.records, a.blobs,
			filepath.Join(p.DocsDir, "feeds"), p.Feeds.BaseURL,
			a.log.With("component", "feeds"))
		written, err := gen.GenerateAll(cmd.Context())
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}

		if p.Git.Enabled {
			sync := gitsync.NewSyncer(&gitsync.ExecGit{}, p.Git.RepoDir, p.Git.Branch,
				a.log.With("component", "gitsync"))
			if err := sync.ForceSync("Update RSS feeds"); err != nil {
				return fmt.Errorf("publish feeds: %w", err)
			}
		}
		return nil
	},
}
