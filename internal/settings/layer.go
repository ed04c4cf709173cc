package settings

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// LayerKind orders override layers. Higher kinds win.
type LayerKind int

const (
	LayerBase LayerKind = iota
	LayerApplication
	LayerTemplate
)

func (k LayerKind) String() string {
	switch k {
	case LayerBase:
		return "base"
	case LayerApplication:
		return "application"
	case LayerTemplate:
		return "template"
	default:
		return fmt.Sprintf("layer(%d)", int(k))
	}
}

// Layer is one set of overrides. Values hold raw scalars; they are
// validated against the schema during Resolve.
type Layer struct {
	Kind   LayerKind
	Source string
	Values map[Key]any
}

// NewLayer returns an empty layer of the given kind.
func NewLayer(kind LayerKind, source string) Layer {
	return Layer{Kind: kind, Source: source, Values: map[Key]any{}}
}

// With returns a copy of l with k set to v.
func (l Layer) With(k Key, v any) Layer {
	values := maps.Clone(l.Values)
	if values == nil {
		values = map[Key]any{}
	}
	values[k] = v
	l.Values = values
	return l
}

// LoadLayer reads an override file of the form
//
//	SECTION:
//	  Key: value
//
// Values are kept as the raw scalar text. A missing file yields an empty
// layer.
func LoadLayer(kind LayerKind, path string) (Layer, error) {
	layer := NewLayer(kind, path)

	data, err := os.ReadFile(path) //nolint:gosec // G304: override paths come from config
	if os.IsNotExist(err) {
		return layer, nil
	}
	if err != nil {
		return layer, fmt.Errorf("reading %s layer: %w", kind, err)
	}
	if err := layer.parse(data); err != nil {
		return layer, fmt.Errorf("%s layer %s: %w", kind, path, err)
	}
	return layer, nil
}

func (l *Layer) parse(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping of sections")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		section, body := root.Content[i].Value, root.Content[i+1]
		if body.Kind == yaml.ScalarNode && body.Tag == "!!null" {
			continue
		}
		if body.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: section %s is not a mapping", body.Line, section)
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			name, value := body.Content[j].Value, body.Content[j+1]
			if value.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %s must be a scalar", value.Line, K(section, name))
			}
			l.Values[K(section, name)] = value.Value
		}
	}
	return nil
}
