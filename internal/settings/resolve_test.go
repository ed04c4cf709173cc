package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testSchema(t testing.TB) *Schema {
	s, err := NewSchema(
		Option{Key: K("APP", "Filetype"), Type: TypeEnum, Default: "jpg", Options: []string{"jpg", "png", "psd"}},
		Option{Key: K("APP", "Skip"), Type: TypeBool, Default: false},
		Option{Key: K("TEXT", "Stroke"), Type: TypeNumeric, Default: 6.0},
		Option{Key: K("TEXT", "Symbol"), Type: TypeString, Default: "MTG"},
		Option{Key: K("SYS", "Dev"), Type: TypeBool, Default: false, Disabled: true},
	)
	require.NoError(t, err)
	return s
}

func TestResolve_DefaultsOnly(t *testing.T) {
	cfg, err := Resolve(testSchema(t))
	require.NoError(t, err)

	ft, err := cfg.Enum(K("APP", "Filetype"))
	require.NoError(t, err)
	require.Equal(t, "jpg", ft)

	src, ok := cfg.Source(K("APP", "Filetype"))
	require.True(t, ok)
	require.Equal(t, LayerBase, src)
	require.Equal(t, 5, cfg.Len())
}

func TestResolve_PrecedenceIgnoresArgumentOrder(t *testing.T) {
	s := testSchema(t)
	app := NewLayer(LayerApplication, "app").With(K("APP", "Filetype"), "png").With(K("TEXT", "Stroke"), "4")
	tmpl := NewLayer(LayerTemplate, "tmpl").With(K("APP", "Filetype"), "psd")

	cfg, err := Resolve(s, tmpl, app)
	require.NoError(t, err)

	ft, _ := cfg.Enum(K("APP", "Filetype"))
	require.Equal(t, "psd", ft)
	stroke, _ := cfg.Number(K("TEXT", "Stroke"))
	require.Equal(t, 4.0, stroke)

	src, _ := cfg.Source(K("TEXT", "Stroke"))
	require.Equal(t, LayerApplication, src)
}

func TestResolve_CollectsEveryViolation(t *testing.T) {
	s := testSchema(t)
	app := NewLayer(LayerApplication, "app.yaml").
		With(K("APP", "Filetype"), "gif").
		With(K("APP", "Skip"), "sometimes").
		With(K("NOPE", "Missing"), "1")

	_, err := Resolve(s, app)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 3)
	require.ElementsMatch(t, []Key{K("APP", "Filetype"), K("APP", "Skip"), K("NOPE", "Missing")}, verr.Keys())
	require.Contains(t, err.Error(), "app.yaml")
}

func TestResolve_DisabledOptionKeepsDefault(t *testing.T) {
	s := testSchema(t)
	for _, kind := range []LayerKind{LayerApplication, LayerTemplate} {
		t.Run(kind.String(), func(t *testing.T) {
			layer := NewLayer(kind, "overrides.yaml").With(K("SYS", "Dev"), "true")

			cfg, err := Resolve(s, layer)
			require.NoError(t, err)

			dev, err := cfg.Bool(K("SYS", "Dev"))
			require.NoError(t, err)
			require.False(t, dev)
			src, _ := cfg.Source(K("SYS", "Dev"))
			require.Equal(t, LayerBase, src)
		})
	}
}

func TestEffectiveConfig_NoImplicitNulls(t *testing.T) {
	cfg, err := Resolve(testSchema(t))
	require.NoError(t, err)

	_, err = cfg.Bool(K("APP", "Unknown"))
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = cfg.Number(K("APP", "Skip"))
	require.ErrorIs(t, err, ErrWrongType)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, K("APP", "Skip"), cerr.Key)

	var nilCfg *EffectiveConfig
	_, err = nilCfg.String(K("TEXT", "Symbol"))
	require.True(t, errors.Is(err, ErrMissingKey))
}

func TestLoadLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
APP:
  Filetype: png   # prefer lossless
  Skip: yes
TEXT:
  Stroke: 2.5
EMPTY:
`), 0o600))

	layer, err := LoadLayer(LayerApplication, path)
	require.NoError(t, err)
	require.Equal(t, map[Key]any{
		K("APP", "Filetype"): "png",
		K("APP", "Skip"):     "yes",
		K("TEXT", "Stroke"):  "2.5",
	}, layer.Values)

	cfg, err := Resolve(testSchema(t), layer)
	require.NoError(t, err)
	skip, _ := cfg.Bool(K("APP", "Skip"))
	require.True(t, skip)

	missing, err := LoadLayer(LayerTemplate, filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	require.Empty(t, missing.Values)
}

func TestLoadLayer_RejectsNestedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("APP:\n  Filetype: [png]\n"), 0o600))

	_, err := LoadLayer(LayerApplication, path)
	require.ErrorContains(t, err, "must be a scalar")
}

// A key present only in the base schema resolves to its default, and a key
// set in all three layers resolves to the template value.
func TestResolve_LayerPrecedenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "options")
		opts := make([]Option, n)
		for i := range opts {
			opts[i] = Option{Key: K("S", fmt.Sprintf("K%d", i)), Type: TypeNumeric, Default: float64(i)}
		}
		s, err := NewSchema(opts...)
		if err != nil {
			t.Fatal(err)
		}

		base := NewLayer(LayerBase, "base")
		app := NewLayer(LayerApplication, "app")
		tmpl := NewLayer(LayerTemplate, "tmpl")
		want := map[Key]float64{}
		for _, o := range opts {
			want[o.Key] = o.Default.(float64)
			inAll := rapid.Bool().Draw(t, "in-all-"+o.Name)
			if !inAll {
				continue
			}
			b := rapid.Float64Range(-100, 100).Draw(t, "base-"+o.Name)
			a := rapid.Float64Range(-100, 100).Draw(t, "app-"+o.Name)
			v := rapid.Float64Range(-100, 100).Draw(t, "tmpl-"+o.Name)
			base = base.With(o.Key, b)
			app = app.With(o.Key, a)
			tmpl = tmpl.With(o.Key, v)
			want[o.Key] = v
		}

		layers := []Layer{base, app, tmpl}
		perm := rapid.Permutation(layers).Draw(t, "order")

		cfg, err := Resolve(s, perm...)
		if err != nil {
			t.Fatal(err)
		}
		got := map[Key]float64{}
		for _, k := range cfg.Keys() {
			got[k], _ = cfg.Number(k)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("resolved values mismatch (-want +got):\n%s", diff)
		}
	})
}

// Every enum option rejects any value outside its allowed values.
func TestResolve_EnumRejectionProperty(t *testing.T) {
	s, err := Base()
	require.NoError(t, err)

	var enums []Option
	for _, o := range s.Options() {
		if o.Type == TypeEnum {
			enums = append(enums, o)
		}
	}
	require.NotEmpty(t, enums)

	rapid.Check(t, func(t *rapid.T) {
		opt := rapid.SampledFrom(enums).Draw(t, "option")
		value := rapid.StringMatching(`[a-z]{1,8}`).Filter(func(v string) bool {
			for _, allowed := range opt.Options {
				if v == allowed {
					return false
				}
			}
			return true
		}).Draw(t, "value")
		kind := rapid.SampledFrom([]LayerKind{LayerBase, LayerApplication, LayerTemplate}).Draw(t, "layer")

		_, err := Resolve(s, NewLayer(kind, "prop").With(opt.Key, value))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError for %s=%q, got %v", opt.Key, value, err)
		}
		if verr.Violations[0].Key != opt.Key {
			t.Fatalf("violation reported %s, want %s", verr.Violations[0].Key, opt.Key)
		}
	})
}
