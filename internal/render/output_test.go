package render_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/render"
)

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		card   string
		ft     editor.Filetype
		naming render.Naming
		want   string
	}{
		{"plain", "Opt", editor.FiletypeJPG, render.Naming{Overwrite: true}, "Opt.jpg"},
		{"suffix", "Opt", editor.FiletypePNG, render.Naming{Suffix: "Borderless", Overwrite: true}, "Opt (Borderless).png"},
		{"artist only", "Opt", editor.FiletypePSD, render.Naming{Artist: "Tyler Jacobson", Overwrite: true}, "Opt (Tyler Jacobson).psd"},
		{"suffix and artist", "Opt", editor.FiletypeJPG, render.Naming{Suffix: "Extended", Artist: "Tyler Jacobson", Overwrite: true}, "Opt (Extended Tyler Jacobson).jpg"},
		{"sanitized", `Who/What/When?`, editor.FiletypeJPG, render.Naming{Overwrite: true}, "WhoWhatWhen.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := render.OutputPath(dir, tt.card, tt.ft, tt.naming)
			require.NoError(t, err)
			require.Equal(t, filepath.Join(dir, tt.want), got)
		})
	}
}

func TestOutputPath_NumbersDuplicates(t *testing.T) {
	dir := t.TempDir()
	naming := render.Naming{Suffix: "Borderless"}

	for _, existing := range []string{"Opt (Borderless).jpg", "Opt (Borderless) (1).jpg", "Opt (Borderless) (3).jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, existing), nil, 0o644))
	}

	got, err := render.OutputPath(dir, "Opt", editor.FiletypeJPG, naming)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Opt (Borderless) (2).jpg"), got, "lowest free number")

	got, err = render.OutputPath(dir, "Opt", editor.FiletypePNG, naming)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Opt (Borderless).png"), got, "other extensions do not collide")

	naming.Overwrite = true
	got, err = render.OutputPath(dir, "Opt", editor.FiletypeJPG, naming)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Opt (Borderless).jpg"), got)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "Fire  Ice", render.SanitizeFilename(" Fire // Ice "))
	require.Equal(t, "Who What", render.SanitizeFilename("Who? What*\t"))

	// Flags are two code points each; truncation must not split one.
	long := strings.Repeat("🇯🇵", 30)
	got := render.SanitizeFilename(long)
	require.LessOrEqual(t, len(got), 200)
	require.Zero(t, len(got)%len("🇯🇵"))
	require.True(t, strings.HasPrefix(long, got))
}
