package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/station-console/station/internal/keys"
	"github.com/station-console/station/internal/wire"
)

// KeysCmd returns the keys command group.
func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the local key store",
	}
	cmd.AddCommand(keysShowCmd())
	cmd.AddCommand(keysSetCmd())
	cmd.AddCommand(keysImportCmd())
	cmd.AddCommand(keysExportCmd())
	cmd.AddCommand(keysPushCmd())
	cmd.AddCommand(keysPullCmd())
	return cmd
}

func keysShowCmd() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print every key (secrets masked unless --reveal)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			ks := app.KeySet()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, f := range keys.Fields() {
				value := ks.Get(f)
				if f.Sensitive() && !reveal {
					value = keys.Mask(value)
				}
				if value == "" {
					value = dimText("(unset)")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Label(), string(f), value)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show secrets in full")
	return cmd
}

func keysSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <field> [value]",
		Short: "Set one key; an omitted value clears it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, ok := keys.ParseField(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", keys.ErrUnknownField, args[0])
			}
			value := ""
			if len(args) == 2 {
				value = args[1]
			}

			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			next, err := app.KeySet().Set(field, value)
			if err != nil {
				return err
			}
			if err := app.SaveKeySet(next); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s saved\n", okText("OK"), field)
			return nil
		},
	}
}

func keysImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge keys from a JSON (comments allowed) file",
		Long: `Merge keys from a JSON file. Comments and trailing commas are
accepted. The file may be {"keys": {...}} or a flat object, with camelCase
or snake_case names. Masked values such as "abcd...wxyz" are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var body any
			if err := json.Unmarshal(jsonc.ToJSON(data), &body); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			merged, changed := keys.MergeRemote(app.KeySet(), body)
			if changed > 0 {
				if err := app.SaveKeySet(merged); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s imported %d key(s)\n", okText("OK"), changed)
			return nil
		},
	}
}

func keysExportCmd() *cobra.Command {
	var format string
	var reveal bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the key store as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (json|yaml)", format)
			}
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			values := app.KeySet().Masked()
			if reveal {
				values = app.KeySet().Strings()
			}
			doc := map[string]any{"version": keys.SchemaVersion, "keys": values}

			out := cmd.OutOrStdout()
			if format == "yaml" {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(doc); err != nil {
					return fmt.Errorf("encoding yaml: %w", err)
				}
				return enc.Close()
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json|yaml)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Export secrets in full")
	return cmd
}

func keysPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Save the local keys to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			res := app.Session.Call(cmd.Context(), "config_save", nil)
			printResult(cmd.OutOrStdout(), res)
			return res.Err()
		},
	}
}

func keysPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Merge the backend's stored keys into the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			res := app.Session.Call(cmd.Context(), "config_load", nil)
			if !res.OK() {
				printResult(cmd.OutOrStdout(), res)
				return res.Err()
			}
			merged, changed := keys.MergeRemote(app.KeySet(), res.Body)
			if changed > 0 {
				if err := app.SaveKeySet(merged); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s pulled %d key(s)\n", okText("OK"), changed)
			return nil
		},
	}
}
