package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveOverride_RoundTrips(t *testing.T) {
	s := testSchema(t)
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# my overrides\nAPP:\n  Skip: true\n"), 0o600))

	require.NoError(t, SaveOverride(path, s, K("APP", "Filetype"), "png"))
	require.NoError(t, SaveOverride(path, s, K("TEXT", "Stroke"), "2.50"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# my overrides")

	layer, err := LoadLayer(LayerApplication, path)
	require.NoError(t, err)
	cfg, err := Resolve(s, layer)
	require.NoError(t, err)

	ft, _ := cfg.Enum(K("APP", "Filetype"))
	require.Equal(t, "png", ft)
	stroke, _ := cfg.Number(K("TEXT", "Stroke"))
	require.Equal(t, 2.5, stroke)
	skip, _ := cfg.Bool(K("APP", "Skip"))
	require.True(t, skip)
}

func TestSaveOverride_Rejects(t *testing.T) {
	s := testSchema(t)
	path := filepath.Join(t.TempDir(), "app.yaml")

	tests := []struct {
		name  string
		key   Key
		value string
	}{
		{"enum outside options", K("APP", "Filetype"), "gif"},
		{"disabled option", K("SYS", "Dev"), "true"},
		{"unknown key", K("APP", "Nope"), "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SaveOverride(path, s, tt.key, tt.value)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.key, verr.Violations[0].Key)
		})
	}

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "rejected overrides must not create the file")
}
