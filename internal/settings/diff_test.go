package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	s := testSchema(t)
	base, err := Resolve(s)
	require.NoError(t, err)

	require.Empty(t, Diff(base, base))

	changed, err := Resolve(s, NewLayer(LayerTemplate, "t").With(K("APP", "Filetype"), "png"))
	require.NoError(t, err)

	out := Diff(base, changed)
	require.Contains(t, out, "- Filetype = jpg\n")
	require.Contains(t, out, "+ Filetype = png\n")
	require.Contains(t, out, "  [APP]\n")
}

func TestDump_GroupsBySection(t *testing.T) {
	cfg, err := Resolve(testSchema(t))
	require.NoError(t, err)

	require.Equal(t, "[APP]\nFiletype = jpg\nSkip = false\n\n[TEXT]\nStroke = 6\nSymbol = MTG\n\n[SYS]\nDev = false\n", cfg.Dump())
}
