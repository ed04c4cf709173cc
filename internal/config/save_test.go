package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, yaml.Unmarshal(data, &out))
	return out
}

func TestSaveTemplateDefault_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SaveTemplateDefault(path, "saga", "saga-classic"))

	out := readYAML(t, path)
	templates := out["templates"].(map[string]any)
	defaults := templates["defaults"].(map[string]any)
	require.Equal(t, "saga-classic", defaults["saga"])
}

func TestSaveTemplateDefault_PreservesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	original := `# top comment
data:
  max_attempts: 5 # keep me
templates:
  hot_reload: true
  defaults:
    normal: classic
`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	require.NoError(t, SaveTemplateDefault(path, "normal", "borderless"))
	require.NoError(t, SaveTemplateDefault(path, "planeswalker", "pw-extended"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# top comment")
	require.Contains(t, string(data), "# keep me")

	out := readYAML(t, path)
	defaults := out["templates"].(map[string]any)["defaults"].(map[string]any)
	require.Equal(t, "borderless", defaults["normal"])
	require.Equal(t, "pw-extended", defaults["planeswalker"])
	require.Equal(t, true, out["templates"].(map[string]any)["hot_reload"])
	require.Equal(t, 5, out["data"].(map[string]any)["max_attempts"])
}

func TestSetYAMLValue_ReplacesNullPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  defaults:\n"), 0o600))

	require.NoError(t, SetYAMLValue(path, []string{"templates", "defaults", "token"}, "token-basic"))

	out := readYAML(t, path)
	require.Equal(t, "token-basic", out["templates"].(map[string]any)["defaults"].(map[string]any)["token"])
}

func TestSetYAMLValue_RejectsNonMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))

	err := SetYAMLValue(path, []string{"x"}, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a mapping")
}

func TestSaveTemplateDefault_RequiresArguments(t *testing.T) {
	require.Error(t, SaveTemplateDefault(filepath.Join(t.TempDir(), "c.yaml"), "", "x"))
}
