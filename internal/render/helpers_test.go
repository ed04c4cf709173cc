package render_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/render"
	"github.com/zjrosen/cardsmith/internal/settings"
	"github.com/zjrosen/cardsmith/internal/templates"
	"github.com/zjrosen/cardsmith/internal/testutil"
)

// fixture wires an orchestrator over fakes rooted in a temp directory.
type fixture struct {
	t           *testing.T
	src         *testutil.ScriptedSource
	editor      *testutil.FakeEditor
	operator    *testutil.RecordingOperator
	registry    *templates.Registry
	settingsDir string
	artDir      string
	outDir      string
	schema      *settings.Schema // Defaults to the built-in schema
	opts        render.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		t:           t,
		src:         testutil.NewScriptedSource(),
		editor:      testutil.NewFakeEditor(),
		operator:    testutil.NewRecordingOperator(),
		registry:    templates.NewRegistry(templates.Options{}),
		settingsDir: filepath.Join(root, "settings"),
		artDir:      filepath.Join(root, "art"),
		outDir:      filepath.Join(root, "out"),
	}
	require.NoError(t, os.MkdirAll(f.settingsDir, 0o755))
	require.NoError(t, os.MkdirAll(f.artDir, 0o755))
	return f
}

func (f *fixture) orchestrator() *render.Orchestrator {
	f.t.Helper()
	schema := f.schema
	if schema == nil {
		var err error
		schema, err = settings.Base()
		require.NoError(f.t, err)
	}

	opts := f.opts
	opts.Schema = schema
	opts.Layers = render.DirLayers(f.settingsDir)
	opts.Data = f.src.Provider()
	opts.Templates = f.registry
	if opts.Editor == nil {
		opts.Editor = f.editor
	}
	if opts.Operator == nil {
		opts.Operator = f.operator
	}
	return render.New(opts)
}

// appSettings writes the application override layer. Each entry is
// "SECTION Key=value".
func (f *fixture) appSettings(entries ...string) {
	f.t.Helper()
	sections := map[string][]string{}
	var order []string
	for _, e := range entries {
		section, kv, ok := strings.Cut(e, " ")
		require.True(f.t, ok, e)
		k, v, ok := strings.Cut(kv, "=")
		require.True(f.t, ok, e)
		if _, seen := sections[section]; !seen {
			order = append(order, section)
		}
		sections[section] = append(sections[section], "  "+k+": "+v)
	}
	var b strings.Builder
	for _, s := range order {
		b.WriteString(s + ":\n" + strings.Join(sections[s], "\n") + "\n")
	}
	path := filepath.Join(f.settingsDir, render.AppLayerFile)
	require.NoError(f.t, os.WriteFile(path, []byte(b.String()), 0o644))
}

// templateSettings writes the override layer of the template id.
func (f *fixture) templateSettings(id, section, kv string) {
	f.t.Helper()
	desc := &templates.Descriptor{ID: id}
	k, v, ok := strings.Cut(kv, "=")
	require.True(f.t, ok, kv)
	body := section + ":\n  " + k + ": " + v + "\n"
	require.NoError(f.t, os.WriteFile(filepath.Join(f.settingsDir, desc.OverrideFile()), []byte(body), 0o644))
}

// schemaWithout is the built-in schema minus keys.
func (f *fixture) schemaWithout(keys ...settings.Key) *settings.Schema {
	f.t.Helper()
	base, err := settings.Base()
	require.NoError(f.t, err)
	var opts []settings.Option
	for _, o := range base.Options() {
		if !slices.Contains(keys, o.Key) {
			opts = append(opts, o)
		}
	}
	s, err := settings.NewSchema(opts...)
	require.NoError(f.t, err)
	return s
}

// job builds a job for an art file named after the card.
func (f *fixture) job(artName string) render.Job {
	f.t.Helper()
	b := render.Builder{OutputDir: f.outDir, NewID: func() string { return "job-" + artName }}
	job, err := b.ForTarget(filepath.Join(f.artDir, artName+".jpg"), "")
	require.NoError(f.t, err)
	return job
}

func (f *fixture) jobs(names ...string) []render.Job {
	out := make([]render.Job, len(names))
	for i, n := range names {
		out[i] = f.job(n)
	}
	return out
}

func statuses(r render.BatchReport) []render.Status {
	out := make([]render.Status, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Status
	}
	return out
}
