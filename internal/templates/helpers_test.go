package templates

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/settings"
)

// recordingCanvas collects every layer drawn.
type recordingCanvas struct {
	mu     sync.Mutex
	layers []editor.LayerSpec
	failOn string
}

func (c *recordingCanvas) Draw(_ context.Context, spec editor.LayerSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if spec.Name == c.failOn {
		return &editor.DocumentError{Op: "draw", Path: spec.Name, Err: editor.ErrNoDocument}
	}
	c.layers = append(c.layers, spec)
	return nil
}

func (c *recordingCanvas) layer(name string) (editor.LayerSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.layers {
		if l.Name == name {
			return l, true
		}
	}
	return editor.LayerSpec{}, false
}

func (c *recordingCanvas) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.layers))
	for i, l := range c.layers {
		out[i] = l.Name
	}
	return out
}

func effective(t *testing.T, overrides map[settings.Key]any) *settings.EffectiveConfig {
	t.Helper()
	base, err := settings.Base()
	require.NoError(t, err)
	layer := settings.NewLayer(settings.LayerApplication, "test")
	for k, v := range overrides {
		layer = layer.With(k, v)
	}
	cfg, err := settings.Resolve(base, layer)
	require.NoError(t, err)
	return cfg
}

// writePlugin creates <dir>/<name>/ with the given files.
func writePlugin(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	pluginDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(pluginDir, file), []byte(content), 0o644))
	}
}

const borderlessManifest = `name: Borderless
templates:
  - id: borderless
    name: Borderless
    layouts: [normal, snow]
    script: borderless.lua
    suffix: Borderless
    default: true
    description: |
      # Borderless
      Edge to edge art.
`

const borderlessScript = `
function draw(doc, card, cfg)
  doc:image("Art Frame", 0, 0, 1500, 2100)
  doc:text("Name", card.display)
  doc:visible("Flavor Divider", cfg["BASE.TEXT"]["Flavor.Divider"])
end
`
