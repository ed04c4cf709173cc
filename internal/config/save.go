package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveTemplateDefault records id as the default template for layout in the
// config file, preserving comments and formatting elsewhere in the file.
func SaveTemplateDefault(configPath, layout, id string) error {
	if layout == "" || id == "" {
		return fmt.Errorf("layout and template id are required")
	}
	return SetYAMLValue(configPath, []string{"templates", "defaults", layout}, id)
}

// SetYAMLValue sets the value at the nested mapping path keys inside the
// YAML file at path. Missing mappings are created; comments on untouched
// nodes survive. The file is replaced atomically.
func SetYAMLValue(path string, keys []string, value any) error {
	if len(keys) == 0 {
		return fmt.Errorf("empty key path")
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: caller-chosen config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}

	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}

	node := root
	for i, key := range keys {
		last := i == len(keys)-1
		child := lookupKey(node, key)
		switch {
		case child == nil && last:
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &valueNode)
		case child == nil:
			child = &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
			node = child
		case last:
			valueNode.LineComment = child.LineComment
			*child = valueNode
		default:
			if child.Kind != yaml.MappingNode {
				// A scalar or null placeholder (e.g. "defaults:") becomes a mapping.
				*child = yaml.Node{Kind: yaml.MappingNode, HeadComment: child.HeadComment}
			}
			node = child
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	_ = encoder.Close()

	return WriteFileAtomic(path, buf.Bytes())
}

func lookupKey(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// WriteFileAtomic writes data to a temp file beside path and renames it
// into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".cardsmith.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
