package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/penwyp/claudequota/internal"
)

func newWatchCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompute the report whenever the logs change",
		Long: `Watch the conversation logs and print one compact JSON report per line,
after every change and at least once per --interval. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := internal.NewWatchApplication(c.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}

	cmd.Flags().Duration("interval", 0, "refresh interval (default 5m)")
	cmd.Flags().Duration("debounce", 0, "delay before reacting to a file change (default 500ms)")
	return cmd
}
