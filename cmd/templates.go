package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/zjrosen/cardsmith/internal/app"
	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/config"
	"github.com/zjrosen/cardsmith/internal/log"
	"github.com/zjrosen/cardsmith/internal/templates"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"template"},
	Short:   "Inspect the template registry",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates grouped by layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			reg := a.Templates()
			groups := reg.List()
			defaults := make(map[card.LayoutClass]string, len(groups))
			for _, g := range groups {
				if d, _, err := reg.Resolve(g.Layout, ""); err == nil {
					defaults[g.Layout] = d.ID
				}
			}
			writeTemplateList(cmd.OutOrStdout(), groups, defaults)
			return nil
		})
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template's description and options",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			desc, ok := a.Templates().Lookup(args[0])
			if !ok {
				return &templates.NoTemplateError{ID: args[0]}
			}
			out, err := renderMarkdown(templateMarkdown(desc))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var templatesReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload plugin templates and report what loaded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(a *app.App) error {
			reg := a.Templates()
			if err := reg.Reload(); err != nil {
				return fmt.Errorf("reloading templates: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generation %d: %d templates\n", reg.Generation(), len(reg.All()))
			return nil
		})
	},
}

var templatesDefaultCmd = &cobra.Command{
	Use:   "default <layout> <template-id>",
	Short: "Make a template the default for a layout",
	Long: `Record the template used for a layout when no --template is given.
The choice is written to templates.defaults in the config file.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, id := card.LayoutClass(args[0]), args[1]
		return withApp(func(a *app.App) error {
			if _, _, err := a.Templates().Resolve(layout, id); err != nil {
				return err
			}
			path := configPath()
			if err := config.SaveTemplateDefault(path, string(layout), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now renders with %s (%s)\n", layout, id, path)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd, templatesShowCmd, templatesReloadCmd, templatesDefaultCmd)
}

// withApp runs fn against an app that never talks to the editor bridge.
func withApp(fn func(*app.App) error) error {
	a, err := app.New(cfg, app.Options{Prompts: app.PromptAuto, DryRun: true})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			log.ErrorErr(log.CatCLI, "Closing app", cerr)
		}
	}()
	return fn(a)
}

// writeTemplateList prints one row per template and layout, marking the
// template each layout resolves to when no template is requested.
func writeTemplateList(w io.Writer, groups []templates.Group, defaults map[card.LayoutClass]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LAYOUT", "ID", "NAME", "SOURCE", "DEFAULT")
	for _, g := range groups {
		for _, d := range g.Templates {
			source := "built-in"
			if !d.Builtin() {
				source = d.Plugin
			}
			mark := ""
			if defaults[g.Layout] == d.ID {
				mark = "*"
			}
			t.Row(string(g.Layout), d.ID, d.Name, source, mark)
		}
	}
	fmt.Fprintln(w, t.String())
}

func templateMarkdown(d *templates.Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Name)
	if d.Description != "" {
		b.WriteString(d.Description)
		b.WriteString("\n\n")
	}
	layouts := make([]string, len(d.Layouts))
	for i, l := range d.Layouts {
		layouts[i] = "`" + string(l) + "`"
	}
	fmt.Fprintf(&b, "- **ID:** `%s`\n- **Layouts:** %s\n", d.ID, strings.Join(layouts, ", "))
	if !d.Builtin() {
		fmt.Fprintf(&b, "- **Plugin:** %s\n", d.Plugin)
	}
	if len(d.Options) > 0 {
		b.WriteString("\n## Options\n\n| Option | Type | Default |\n|---|---|---|\n")
		for _, o := range d.Options {
			fmt.Fprintf(&b, "| %s | %s | %v |\n", o.Key, o.Type, o.Default)
		}
	}
	return b.String()
}

// renderMarkdown styles md for the terminal, or leaves it unstyled when
// stdout is not a color terminal.
func renderMarkdown(md string) (string, error) {
	style := "light"
	switch {
	case termenv.NewOutput(os.Stdout).Profile == termenv.Ascii:
		style = "notty"
	case lipgloss.HasDarkBackground():
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
