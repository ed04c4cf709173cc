package settings

import (
	"fmt"

	"github.com/zjrosen/cardsmith/internal/config"
	"github.com/zjrosen/cardsmith/internal/log"
)

// SaveOverride validates value against the schema and writes it into the
// override file at path, keeping the file's other content and comments.
func SaveOverride(path string, schema *Schema, k Key, value string) error {
	opt, ok := schema.Lookup(k)
	if !ok {
		return &ValidationError{Violations: []Violation{{Source: path, Key: k, Value: value, Reason: "unknown setting"}}}
	}
	if opt.Disabled {
		return &ValidationError{Violations: []Violation{{Source: path, Key: k, Value: value, Reason: "setting is not user-settable"}}}
	}
	canonical, err := opt.Coerce(value)
	if err != nil {
		return &ValidationError{Violations: []Violation{{Source: path, Key: k, Value: value, Reason: err.Error()}}}
	}

	if err := config.SetYAMLValue(path, []string{k.Section, k.Name}, formatValue(canonical)); err != nil {
		return fmt.Errorf("saving %s: %w", k, err)
	}
	log.Info(log.CatSettings, "Saved override", "key", k.String(), "value", value, "path", path)
	return nil
}
