package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/cardsmith/internal/app"
	"github.com/zjrosen/cardsmith/internal/settings"
)

var settingsTemplate string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change render settings",
	Long: `Render settings resolve from three layers: the built-in schema
defaults, the application file (settings_dir/app.yaml) and an optional
per-template file (settings_dir/template.<id>.yaml). Later layers win.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			eff, err := a.ResolveSettings(settingsTemplate)
			if err != nil {
				return err
			}
			writeSettings(cmd.OutOrStdout(), eff)
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <section> <name> <value>",
	Short: "Save an override in the application or template layer",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			path, schema, err := a.SettingsFile(settingsTemplate)
			if err != nil {
				return err
			}
			k := settings.K(args[0], args[1])
			if err := settings.SaveOverride(path, schema, k, args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", k, args[2], path)
			return nil
		})
	},
}

var settingsDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show what a template's layer changes from the application settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if settingsTemplate == "" {
			return errors.New("--template is required")
		}
		return withApp(func(a *app.App) error {
			base, err := a.ResolveSettings("")
			if err != nil {
				return err
			}
			tmpl, err := a.ResolveSettings(settingsTemplate)
			if err != nil {
				return err
			}
			diff := settings.Diff(base, tmpl)
			if diff == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s uses the application settings unchanged\n", settingsTemplate)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsDiffCmd)
	settingsCmd.PersistentFlags().StringVarP(&settingsTemplate, "template", "t", "",
		"template id (default: application layer only)")
}

// writeSettings prints the dump followed by the layer each overridden key
// came from.
func writeSettings(w io.Writer, eff *settings.EffectiveConfig) {
	fmt.Fprint(w, eff.Dump())
	var overridden []string
	for _, k := range eff.Keys() {
		if src, ok := eff.Source(k); ok && src != settings.LayerBase {
			overridden = append(overridden, fmt.Sprintf("  %s from %s", k, src))
		}
	}
	if len(overridden) == 0 {
		return
	}
	fmt.Fprintln(w, "\noverrides:")
	for _, line := range overridden {
		fmt.Fprintln(w, line)
	}
}
