package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/app"
	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/config"
	"github.com/zjrosen/cardsmith/internal/history"
	"github.com/zjrosen/cardsmith/internal/render"
	"github.com/zjrosen/cardsmith/internal/settings"
	"github.com/zjrosen/cardsmith/internal/templates"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"render", "target"},
		{"render", "all"},
		{"templates", "list"},
		{"templates", "show"},
		{"templates", "reload"},
		{"settings", "show"},
		{"settings", "set"},
		{"settings", "diff"},
		{"history"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		require.Equal(t, path[len(path)-1], c.Name())
	}
}

func TestRenderFlags(t *testing.T) {
	for _, name := range []string{"tui", "yes", "stop-on-failure", "dry-run"} {
		require.NotNil(t, renderCmd.PersistentFlags().Lookup(name), name)
	}
	require.NotNil(t, renderTargetCmd.Flags().Lookup("template"))
	require.NotNil(t, renderAllCmd.Flags().Lookup("dir"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
}

func TestPromptMode(t *testing.T) {
	t.Cleanup(func() { renderYes, renderTUI = false, false })

	tests := []struct {
		yes, tui bool
		want     app.PromptMode
	}{
		{false, false, app.PromptConsole},
		{false, true, app.PromptTUI},
		{true, false, app.PromptAuto},
		{true, true, app.PromptAuto},
	}
	for _, tt := range tests {
		renderYes, renderTUI = tt.yes, tt.tui
		require.Equal(t, tt.want, promptMode())
	}
}

func TestPrintResult(t *testing.T) {
	job := render.JobInfo{Index: 2, Total: 3, Card: "Opt"}

	var buf bytes.Buffer
	printResult(&buf, job, render.JobResult{Status: render.StatusSucceeded, OutputPath: "out/Opt.png", Warnings: []string{"no flavor"}})
	require.Equal(t, "[2/3] ✓ Opt → out/Opt.png\n    warning: no flavor\n", buf.String())

	buf.Reset()
	printResult(&buf, job, render.JobResult{Status: render.StatusFailed, Stage: render.StageData, Err: errors.New("card not found")})
	require.Equal(t, "[2/3] ✗ Opt: data failed: card not found\n", buf.String())

	buf.Reset()
	printResult(&buf, render.JobInfo{Index: 1, Total: 1}, render.JobResult{Art: "art/Opt.png", Status: render.StatusSkipped, Reason: render.ReasonCancelled})
	require.Equal(t, "[1/1] ↷ Opt.png skipped: batch cancelled\n", buf.String())
}

func TestPrintReport(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := render.BatchReport{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Cancelled:  true,
		Results: []render.JobResult{
			{Status: render.StatusSucceeded},
			{Status: render.StatusSkipped},
			{Art: "art/Bad.png", Status: render.StatusFailed, Stage: render.StageDraw, Err: errors.New("boom")},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()
	require.Contains(t, out, "1 rendered, 1 skipped, 1 failed in 1.5s")
	require.Contains(t, out, "Batch was cancelled.")
	require.Contains(t, out, "✗ Bad.png (draw): boom")
}

func TestWriteTemplateList(t *testing.T) {
	normal := &templates.Descriptor{ID: "normal", Name: "Normal", Layouts: []card.LayoutClass{card.ClassNormal}}
	plugin := &templates.Descriptor{ID: "borderless", Name: "Borderless", Plugin: "extras", Layouts: []card.LayoutClass{card.ClassNormal}}
	groups := []templates.Group{{Layout: card.ClassNormal, Templates: []*templates.Descriptor{normal, plugin}}}

	var buf bytes.Buffer
	writeTemplateList(&buf, groups, map[card.LayoutClass]string{card.ClassNormal: "borderless"})
	out := buf.String()
	require.Contains(t, out, "built-in")
	require.Contains(t, out, "extras")
	require.Regexp(t, `borderless\s*│\s*Borderless\s*│\s*extras\s*│\s*\*`, out)
	require.NotRegexp(t, `normal\s*│\s*Normal\s*│\s*built-in\s*│\s*\*`, out)
}

func TestTemplateMarkdown(t *testing.T) {
	d := &templates.Descriptor{
		ID:          "saga",
		Name:        "Saga",
		Layouts:     []card.LayoutClass{card.ClassSaga},
		Description: "Chapter boxes on the left.",
		Options:     []settings.Option{{Key: settings.K("SAGA", "Chapter.Style"), Type: settings.TypeEnum, Default: "roman"}},
	}
	md := templateMarkdown(d)
	require.Contains(t, md, "# Saga")
	require.Contains(t, md, "Chapter boxes on the left.")
	require.Contains(t, md, "`saga`")
	require.Contains(t, md, "| [SAGA] Chapter.Style | enum | roman |")
	require.NotContains(t, md, "Plugin")
}

func TestWriteBatches(t *testing.T) {
	var buf bytes.Buffer
	writeBatches(&buf, nil)
	require.Equal(t, "No batches recorded.\n", buf.String())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buf.Reset()
	writeBatches(&buf, []history.Batch{{
		ID: "b-1", StartedAt: start, FinishedAt: start.Add(3 * time.Second),
		Succeeded: 2, Failed: 1, Cancelled: true,
	}})
	out := buf.String()
	require.Contains(t, out, "b-1")
	require.Contains(t, out, "3s")
	require.Contains(t, out, "cancelled")
}

// useTempConfig points the package config at a scratch directory.
func useTempConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	c := config.Defaults()
	c.Paths = config.PathsConfig{
		ArtDir:      filepath.Join(root, "art"),
		OutDir:      filepath.Join(root, "out"),
		PluginsDir:  filepath.Join(root, "plugins"),
		SettingsDir: filepath.Join(root, "settings"),
	}
	c.History.DBPath = filepath.Join(root, "history.db")
	c.Tracing.Enabled = false
	c.Flags = map[string]bool{}
	require.NoError(t, os.MkdirAll(c.Paths.SettingsDir, 0o755))

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev; settingsTemplate = "" })
	return c
}

func TestSettingsSetThenShow(t *testing.T) {
	c := useTempConfig(t)

	var out bytes.Buffer
	settingsSetCmd.SetOut(&out)
	require.NoError(t, settingsSetCmd.RunE(settingsSetCmd, []string{"APP.FILES", "Output.Filetype", "png"}))
	require.Contains(t, out.String(), filepath.Join(c.Paths.SettingsDir, render.AppLayerFile))

	out.Reset()
	settingsShowCmd.SetOut(&out)
	require.NoError(t, settingsShowCmd.RunE(settingsShowCmd, nil))
	require.Contains(t, out.String(), "Output.Filetype = png")
	require.Contains(t, out.String(), "[APP.FILES] Output.Filetype from application")
}

func TestSettingsSet_RejectsInvalidValue(t *testing.T) {
	useTempConfig(t)

	err := settingsSetCmd.RunE(settingsSetCmd, []string{"APP.FILES", "Save.Artist.Name", "maybe"})
	var verr *settings.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSettingsDiff_RequiresTemplate(t *testing.T) {
	useTempConfig(t)
	require.EqualError(t, settingsDiffCmd.RunE(settingsDiffCmd, nil), "--template is required")
}

func TestHistory_NoDatabase(t *testing.T) {
	useTempConfig(t)

	var out bytes.Buffer
	historyCmd.SetOut(&out)
	require.NoError(t, historyCmd.RunE(historyCmd, nil))
	require.Equal(t, "No batches recorded.\n", out.String())
}

func TestRenderMarkdown_PlainWhenNotATerminal(t *testing.T) {
	out, err := renderMarkdown("# Saga\n\nChapter boxes.")
	require.NoError(t, err)
	require.Contains(t, out, "Saga")
	require.Contains(t, out, "Chapter boxes.")
	require.NotContains(t, out, "\x1b[")
}

func TestTemplatesDefault_WritesConfig(t *testing.T) {
	useTempConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })

	var out bytes.Buffer
	templatesDefaultCmd.SetOut(&out)
	require.NoError(t, templatesDefaultCmd.RunE(templatesDefaultCmd, []string{"saga", "saga"}))
	require.Contains(t, out.String(), "saga now renders with saga")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "saga: saga")

	err = templatesDefaultCmd.RunE(templatesDefaultCmd, []string{"saga", "planeswalker"})
	var incompatible *templates.IncompatibleTemplateError
	require.ErrorAs(t, err, &incompatible)
}
