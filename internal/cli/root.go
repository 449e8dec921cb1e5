// Package cli is the station-console command tree. With no subcommand it
// opens the interactive console; subcommands run one operation and exit.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/station-console/station/internal/config"
	"github.com/station-console/station/internal/console"
	"github.com/station-console/station/internal/wire"
)

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "station-console",
		Short: "Operator console for a Station backend",
		Long: `station-console inspects and drives a Station backend: live status,
guarded ops actions (workers, git, deploys), room conversations and the
local key store. Run without a subcommand for the interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, wire.Options{LogToFile: true})
			if err != nil {
				return err
			}
			defer app.Close()
			return console.Run(app)
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(StatusCmd())
	root.AddCommand(ActionsCmd())
	root.AddCommand(DoCmd())
	root.AddCommand(KeysCmd())
	root.AddCommand(RoomsCmd())
	root.AddCommand(URLCmd())
	return root
}

// openApp loads configuration from the command's flags and assembles the
// app. One-shot commands log to stderr at warn unless told otherwise.
func openApp(cmd *cobra.Command, opts wire.Options) (*wire.App, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if !opts.LogToFile {
		if !cmd.Flags().Changed("log-level") && os.Getenv("STATION_LOG_LEVEL") == "" {
			cfg.Log.Level = "warn"
		}
		if opts.LogOutput == nil {
			opts.LogOutput = cmd.ErrOrStderr()
		}
	}
	return wire.Build(cfg, opts)
}
