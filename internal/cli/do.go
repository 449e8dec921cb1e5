package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/station-console/station/internal/dispatch"
	"github.com/station-console/station/internal/guard"
	"github.com/station-console/station/internal/wire"
)

// ActionsCmd lists the action registry.
func ActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List backend actions and whether the current keys unlock them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			ks := app.KeySet()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACTION\tMETHOD\tPATH\tACCESS\tSUMMARY")
			for _, spec := range dispatch.Actions() {
				access := "open"
				if spec.Privileged() {
					if res := guard.Evaluate(spec.Guard, ks); res.Permitted {
						access = okText("unlocked")
					} else {
						access = warnText("locked")
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", spec.Name, spec.Method, spec.Path, access, spec.Summary)
			}
			return tw.Flush()
		},
	}
}

// DoCmd runs one action through the dispatcher.
func DoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "do <action> [key=value ...]",
		Short: "Run a backend action",
		Long: `Run one action from the registry (see "actions"). Parameters are
key=value words; a word without '=' continues the previous value:

  station-console do git_push message=ship the console branch=main
  station-console do ops_start worker=loop`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := strings.ToLower(args[0])
			if _, ok := dispatch.Lookup(action); !ok {
				return fmt.Errorf("unknown action %q (see `station-console actions`)", action)
			}
			params, err := dispatch.ParseParams(args[1:])
			if err != nil {
				return err
			}

			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			res := app.Session.Call(cmd.Context(), action, params)
			printResult(cmd.OutOrStdout(), res)
			return res.Err()
		},
	}
	return cmd
}

// URLCmd shows or sets the saved backend URL.
func URLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url [backend_url]",
		Short: "Show or save the backend base URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, app.Dispatcher.BaseURL())
				return nil
			}
			normalized, err := app.SetBackendURL(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s backend set to %s\n", okText("OK"), normalized)
			return nil
		},
	}
}
