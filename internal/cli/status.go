package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"github.com/station-console/station/internal/poller"
	"github.com/station-console/station/internal/wire"
)

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show station files, worker processes and hints",
		Long: `Fetch /api/status once and print the derived flags (dynamo worker,
loop worker, station db, agent queue), process details and control hints.
With --watch the status is polled on --poll-interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !watch {
				app, err := openApp(cmd, wire.Options{})
				if err != nil {
					return err
				}
				defer app.Close()
				app.Poller.Poll(cmd.Context())
				state := app.Poller.State()
				printStatus(out, state)
				if state.LastError != "" {
					return fmt.Errorf("status poll failed: %s", state.LastError)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			var mu sync.Mutex
			app, err := openApp(cmd, wire.Options{OnStatus: func(s poller.State) {
				if s.Phase != poller.Updated && s.Phase != poller.Failed {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				printStatus(out, s)
				fmt.Fprintln(out)
			}})
			if err != nil {
				return err
			}
			defer app.Close()
			app.Poller.Run(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling until interrupted")

	return cmd
}
