package cli

import (
	"github.com/spf13/cobra"

	"github.com/f8ai/pubpipe/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status web UI",
	Long: `Start a read-only browser UI on localhost showing the enrichment state of
every article, stage history, and relevance scores.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		port := a.cfg.Pipeline.Web.Port
		if flagPort, _ := cmd.Flags().GetInt("port"); flagPort != 0 {
			port = flagPort
		}

		srv := web.NewServer(a.records, a.events, port, a.log.With("component", "web"))
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}
